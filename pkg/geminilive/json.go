package geminilive

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
)

// unmarshalJSON unmarshals JSON data into v, attempting to repair malformed JSON.
// If the initial unmarshal fails with a syntax error, it tries to repair the JSON
// using jsonrepair before retrying.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, err := jsonrepair.JSONRepair(string(data))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

// decodeArgs parses function call arguments. Models occasionally send the
// arguments as a JSON-encoded string, sometimes truncated; both forms are
// accepted.
func decodeArgs(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err == nil {
		return args, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("args must be an object or a string: %w", err)
	}
	if s == "" {
		return nil, nil
	}
	if err := unmarshalJSON([]byte(s), &args); err != nil {
		return nil, fmt.Errorf("unmarshal args %q: %w", s, err)
	}
	return args, nil
}

// toResponseMap shapes a handler result into a function response payload.
// Objects are sent as-is; anything else is wrapped as {"output": v}.
func toResponseMap(v any) map[string]any {
	switch v := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	case string:
		return map[string]any{"output": v}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"output": fmt.Sprint(v)}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err == nil && m != nil {
		return m
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"output": string(data)}
	}
	return map[string]any{"output": out}
}
