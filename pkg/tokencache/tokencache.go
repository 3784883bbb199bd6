package tokencache

import (
	"context"
	"errors"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when no unexpired token is cached for a key.
	ErrNotFound = errors.New("tokencache: not found")
)

// Token is a cached bearer credential.
type Token struct {
	Value  string    `msgpack:"v"`
	Expiry time.Time `msgpack:"e"`
}

// Valid reports whether the token is usable for at least leeway more.
// A zero Expiry never expires.
func (t Token) Valid(leeway time.Duration) bool {
	if t.Value == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return time.Now().Add(leeway).Before(t.Expiry)
}

// ttl returns how long the store should keep the token, or zero for no
// expiry. An already expired token yields a negative value.
func (t Token) ttl() time.Duration {
	if t.Expiry.IsZero() {
		return 0
	}
	return time.Until(t.Expiry)
}

// Store caches tokens by key.
type Store interface {
	// Get returns the token for key, or ErrNotFound.
	Get(ctx context.Context, key string) (Token, error)

	// Set stores a token. It expires from the store at tok.Expiry.
	Set(ctx context.Context, key string, tok Token) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key string) error
}

func encode(tok Token) ([]byte, error) {
	return msgpack.Marshal(&tok)
}

func decode(data []byte) (Token, error) {
	var tok Token
	err := msgpack.Unmarshal(data, &tok)
	return tok, err
}
