package httputil

import (
	"bytes"
	"encoding/json"
)

// OptionalString is a JSON string field that tells absent apart from null,
// which *string cannot. A move body uses it for parent_id: absent keeps
// the current parent, null moves the item to the root.
type OptionalString struct {
	Present bool
	Value   *string
}

// UnmarshalJSON is only called when the field is in the body.
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Present = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// Resolve returns the value that was sent, or asks current for the
// stored one when the field was absent.
func (o OptionalString) Resolve(current func() (*string, error)) (*string, error) {
	if o.Present {
		return o.Value, nil
	}
	return current()
}
