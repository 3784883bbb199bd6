package jsontime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration for config files. It marshals to the duration
// string ("1m30s") in JSON and YAML. JSON input may also be an integer number
// of nanoseconds.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return d.UnmarshalText([]byte(s))
	}
	var t int64
	if err := json.Unmarshal(b, &t); err != nil {
		return fmt.Errorf("jsontime: invalid duration %s", b)
	}
	*d = Duration(time.Duration(t))
	return nil
}

// MarshalText implements encoding.TextMarshaler. Both YAML libraries in use
// pick it up.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty string is zero.
func (d *Duration) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("jsontime: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying value, or 0 if d is nil.
func (d *Duration) Duration() time.Duration {
	if d == nil {
		return 0
	}
	return time.Duration(*d)
}

// Or returns the underlying value, or def when d is nil or zero.
func (d *Duration) Or(def time.Duration) time.Duration {
	if d == nil || *d == 0 {
		return def
	}
	return time.Duration(*d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// FromDuration creates a Duration pointer from a time.Duration.
func FromDuration(d time.Duration) *Duration {
	v := Duration(d)
	return &v
}
