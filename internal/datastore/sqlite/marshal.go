package sqlite

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// marshalData serializes an event payload for storage. HTML escaping is
// disabled so payloads round-trip byte-comparable. A nil payload stores
// as an empty object.
func marshalData(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return "", fmt.Errorf("marshal event data: %w", err)
	}
	// Encode appends a trailing newline
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// unmarshalData deserializes a stored event payload.
func unmarshalData(raw string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("unmarshal event data: %w", err)
	}
	return data, nil
}
