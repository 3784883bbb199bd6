// Package jsontime provides time types for JSON and YAML documents.
package jsontime

import (
	"encoding/json"
	"time"
)

// Milli is a time.Time that serializes to Unix milliseconds in JSON.
type Milli time.Time

// Time returns the underlying time.Time value.
func (ep Milli) Time() time.Time {
	return time.Time(ep)
}

// IsZero reports whether ep is the zero time.
func (ep Milli) IsZero() bool {
	return time.Time(ep).IsZero()
}

func (ep Milli) String() string {
	return time.Time(ep).String()
}

// UnmarshalJSON implements json.Unmarshaler.
func (ep *Milli) UnmarshalJSON(b []byte) error {
	var t int64
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	*ep = Milli(time.UnixMilli(t))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (ep Milli) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(ep).UnixMilli())
}
