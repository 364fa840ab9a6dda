package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that decodes from human-readable strings like
// "600s" or "1m30s" in YAML, CUE, and JSON. Bare numbers are taken as
// nanoseconds for compatibility with encoded values.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String returns the human-readable form.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return d.set(v)
}

// UnmarshalYAML implements yaml.Unmarshaler for yaml.v3.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v interface{}
	if err := unmarshal(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v interface{}) error {
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
		return nil
	case float64:
		*d = Duration(time.Duration(val))
		return nil
	case int:
		*d = Duration(time.Duration(val))
		return nil
	case int64:
		*d = Duration(time.Duration(val))
		return nil
	default:
		return fmt.Errorf("invalid duration type %T", v)
	}
}
