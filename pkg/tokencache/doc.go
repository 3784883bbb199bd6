// Package tokencache stores short-lived bearer tokens so that processes
// sharing a credential do not each mint their own.
//
// Three stores are provided: Memory for a single process, Badger for a
// token that survives restarts on one host, and Redis for a fleet. Entries
// expire with the token; an expired entry reads as ErrNotFound.
package tokencache
