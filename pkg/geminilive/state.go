package geminilive

// ConnectionState is the lifecycle state of a session's connection. States
// only move forward, except Reconnecting and Connected which may alternate.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosing
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TurnState is the lifecycle state of the current exchange.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnAwaitingResponse
	TurnModelSpeaking
	TurnInterrupted
	TurnFinished
)

func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnAwaitingResponse:
		return "awaiting_response"
	case TurnModelSpeaking:
		return "model_speaking"
	case TurnInterrupted:
		return "interrupted"
	case TurnFinished:
		return "finished"
	}
	return "unknown"
}

func (s TurnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// canTransition reports whether the connection may move from s to next.
func (s ConnectionState) canTransition(next ConnectionState) bool {
	switch s {
	case StateDisconnected:
		return next == StateConnecting || next == StateClosing || next == StateClosed
	case StateConnecting:
		return next == StateConnected || next == StateDisconnected || next == StateClosing || next == StateClosed
	case StateConnected:
		return next == StateReconnecting || next == StateClosing || next == StateClosed
	case StateReconnecting:
		return next == StateConnected || next == StateClosing || next == StateClosed
	case StateClosing:
		return next == StateClosed
	}
	return false
}
