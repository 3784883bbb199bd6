package geminilive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// Encode serializes an outbound message. Exactly one variant must be set.
func Encode(msg *OutboundMessage) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("geminilive: encode nil message")
	}
	n := 0
	if msg.Setup != nil {
		n++
	}
	if msg.ClientContent != nil {
		n++
	}
	if msg.RealtimeInput != nil {
		n++
	}
	if msg.ToolResponse != nil {
		n++
	}
	if n != 1 {
		return nil, fmt.Errorf("geminilive: outbound message must carry exactly one variant, got %d", n)
	}
	return json.Marshal(msg)
}

// Variant keys in decoding priority order. A well-formed frame carries one;
// when several appear the first one wins.
const (
	keyError                   = "error"
	keySetupComplete           = "setupComplete"
	keyToolCall                = "toolCall"
	keyToolCallCancellation    = "toolCallCancellation"
	keyServerContent           = "serverContent"
	keyGoAway                  = "goAway"
	keySessionResumptionUpdate = "sessionResumptionUpdate"
	keyUsageMetadata           = "usageMetadata"
)

var variantKeys = []string{
	keyError,
	keySetupComplete,
	keyToolCall,
	keyToolCallCancellation,
	keyServerContent,
	keyGoAway,
	keySessionResumptionUpdate,
}

// Decode parses a server frame.
//
// Unknown top-level keys are ignored; a frame with none of the known keys
// decodes to PayloadUnknown without error. A DecodeError is returned only
// when the frame is not a JSON object or a known variant has the wrong shape.
func Decode(frame []byte) (*InboundPayload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, &DecodeError{Frame: frame, Err: err}
	}
	if fields == nil {
		return nil, &DecodeError{Frame: frame, Err: errors.New("frame is not a JSON object")}
	}

	p := &InboundPayload{Raw: json.RawMessage(frame)}

	if raw, ok := present(fields, keyUsageMetadata); ok {
		// Usage is side data; a malformed block does not fail the frame.
		var u UsageMetadata
		if err := json.Unmarshal(raw, &u); err == nil {
			p.UsageMetadata = &u
		} else {
			slog.Debug("geminilive: ignoring malformed usage metadata", "error", err)
		}
	}

	var chosen string
	for _, key := range variantKeys {
		if _, ok := present(fields, key); !ok {
			continue
		}
		if chosen == "" {
			chosen = key
			continue
		}
		slog.Debug("geminilive: frame carries several variants", "using", chosen, "ignored", key)
	}
	if chosen == "" {
		return p, nil
	}

	raw := fields[chosen]
	var err error
	switch chosen {
	case keyError:
		p.Kind = PayloadError
		p.Error, err = decodeVariant[Error](raw)
	case keySetupComplete:
		p.Kind = PayloadSetupComplete
		err = expectObject(raw)
	case keyToolCall:
		p.Kind = PayloadToolCall
		p.ToolCall, err = decodeToolCall(raw)
	case keyToolCallCancellation:
		p.Kind = PayloadToolCallCancellation
		p.ToolCallCancellation, err = decodeVariant[genai.LiveServerToolCallCancellation](raw)
	case keyServerContent:
		p.Kind = PayloadServerContent
		p.ServerContent, err = decodeVariant[ServerContent](raw)
		if err == nil && p.ServerContent.onlyTranscriptions() {
			p.Kind = PayloadTranscription
		}
	case keyGoAway:
		p.Kind = PayloadGoAway
		p.GoAway, err = decodeVariant[genai.LiveServerGoAway](raw)
	case keySessionResumptionUpdate:
		p.Kind = PayloadSessionResumptionUpdate
		p.ResumptionUpdate, err = decodeVariant[genai.LiveServerSessionResumptionUpdate](raw)
	}
	if err != nil {
		return nil, &DecodeError{Frame: frame, Err: fmt.Errorf("%s: %w", chosen, err)}
	}
	return p, nil
}

// present returns the raw value for key, treating JSON null as absent.
func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

func decodeVariant[T any](raw json.RawMessage) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	return v, nil
}

func expectObject(raw json.RawMessage) error {
	var m map[string]json.RawMessage
	return json.Unmarshal(raw, &m)
}

type wireFunctionCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// decodeToolCall decodes a toolCall body, accepting string-encoded args.
// Args that cannot be recovered are dropped so the remaining calls in the
// frame are still answered.
func decodeToolCall(raw json.RawMessage) (*genai.LiveServerToolCall, error) {
	var w struct {
		FunctionCalls []wireFunctionCall `json:"functionCalls"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	tc := &genai.LiveServerToolCall{}
	for _, fc := range w.FunctionCalls {
		args, err := decodeArgs(fc.Args)
		if err != nil {
			slog.Warn("geminilive: dropping malformed function call args", "name", fc.Name, "id", fc.ID, "error", err)
		}
		tc.FunctionCalls = append(tc.FunctionCalls, &genai.FunctionCall{ID: fc.ID, Name: fc.Name, Args: args})
	}
	return tc, nil
}
