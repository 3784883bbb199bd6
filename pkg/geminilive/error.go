package geminilive

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNotConnected is returned by Send when no connection is established.
	ErrNotConnected = errors.New("geminilive: not connected")

	// ErrClosed is returned by operations on a closed session or connector.
	ErrClosed = errors.New("geminilive: closed")

	// ErrTurnInFlight is returned when a completed user turn is sent while a
	// previous turn is still awaiting the model's response.
	ErrTurnInFlight = errors.New("geminilive: turn already awaiting response")

	// ErrReconnectExhausted is reported when the reconnect policy gives up.
	ErrReconnectExhausted = errors.New("geminilive: reconnect attempts exhausted")
)

// TransportError reports a connect or send failure on the socket.
type TransportError struct {
	// Op is the failed operation: "dial", "send", "read" or "handshake".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("geminilive: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError reports a structurally malformed inbound frame. The frame is
// dropped; the connection stays open.
type DecodeError struct {
	Frame []byte
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("geminilive: decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// InvalidStateError reports caller misuse, such as sending while
// disconnected. It is never retried.
type InvalidStateError struct {
	Op    string
	State ConnectionState
	Turn  TurnState
	Err   error
}

func (e *InvalidStateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geminilive: %s in state %s/%s: %v", e.Op, e.State, e.Turn, e.Err)
	}
	return fmt.Sprintf("geminilive: %s in state %s/%s", e.Op, e.State, e.Turn)
}

func (e *InvalidStateError) Unwrap() error {
	return e.Err
}

// DuplicateToolError is returned when a tool name is registered twice.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("geminilive: tool %q already registered", e.Name)
}

// ToolInvocationError reports a tool handler failure or an unknown tool name.
// It is converted into an error-carrying function response for the peer.
type ToolInvocationError struct {
	Name   string
	CallID string
	Err    error
}

func (e *ToolInvocationError) Error() string {
	if e.CallID != "" {
		return fmt.Sprintf("geminilive: tool %s (id=%s): %v", e.Name, e.CallID, e.Err)
	}
	return fmt.Sprintf("geminilive: tool %s: %v", e.Name, e.Err)
}

func (e *ToolInvocationError) Unwrap() error {
	return e.Err
}

// Error is an error frame sent by the server.
type Error struct {
	Code    int         `json:"code,omitzero"`
	Status  ErrorStatus `json:"status,omitzero"`
	Message string      `json:"message,omitzero"`
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("geminilive: server error %d %s: %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("geminilive: server error: %s", e.Message)
}

// Retryable reports whether the server marked the condition as transient.
func (e *Error) Retryable() bool {
	switch e.Status {
	case ErrorStatusUnavailable, ErrorStatusResourceExhausted, ErrorStatusDeadlineExceeded, ErrorStatusInternal:
		return true
	}
	return false
}

// AsError attempts to cast an error to *Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsTransportError reports whether err is, or wraps, a TransportError.
func IsTransportError(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}
