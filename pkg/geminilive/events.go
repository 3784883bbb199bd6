package geminilive

import (
	"time"

	"google.golang.org/genai"
)

// EventType identifies the kind of an Event.
type EventType string

// Event types.
const (
	// Connection lifecycle
	EventClientCreated   EventType = "client_created"
	EventConnected       EventType = "connected"
	EventDisconnected    EventType = "disconnected"
	EventReconnecting    EventType = "reconnecting"
	EventReconnectFailed EventType = "reconnect_failed"

	// Inbound content
	EventMessageReceived     EventType = "message_received"
	EventAudioBufferReceived EventType = "audio_buffer_received"
	EventTextChunkReceived   EventType = "text_chunk_received"

	// Turn lifecycle
	EventGenerationInterrupted EventType = "generation_interrupted"
	EventTurnStateChanged      EventType = "turn_state_changed"

	// Tools
	EventToolCallReceived  EventType = "tool_call_received"
	EventToolCallCancelled EventType = "tool_call_cancelled"

	EventGoAway        EventType = "go_away"
	EventErrorOccurred EventType = "error_occurred"
)

// Event is delivered to observers. Which fields are set depends on Type.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Time      time.Time `json:"time"`

	// MessageReceived
	Payload *InboundPayload `json:"payload,omitempty"`

	// AudioBufferReceived
	Audio *AudioBuffer `json:"audio,omitempty"`

	// TextChunkReceived
	Text         string `json:"text,omitempty"`
	TurnFinished bool   `json:"turn_finished,omitempty"`

	// TurnStateChanged
	Turn     TurnState `json:"turn,omitempty"`
	PrevTurn TurnState `json:"prev_turn,omitempty"`

	// Reconnecting, ReconnectFailed
	Attempt int `json:"attempt,omitempty"`

	// ToolCallReceived
	ToolCall *genai.FunctionCall `json:"tool_call,omitempty"`

	// ToolCallCancelled
	CancelledIDs []string `json:"cancelled_ids,omitempty"`

	// GoAway
	TimeLeft time.Duration `json:"time_left,omitempty"`

	// ErrorOccurred, Disconnected, ReconnectFailed
	Message string `json:"message,omitempty"`
	Err     error  `json:"-"`
}

// Observer receives events. A returned error, or a panic, is reported as an
// EventErrorOccurred event.
type Observer func(ev *Event) error

func errorEvent(message string, err error) *Event {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &Event{Type: EventErrorOccurred, Message: message, Err: err}
}
