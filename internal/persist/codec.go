package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalValues converts field values to JSON TEXT for storage.
// Map keys come out sorted, so equal rows store equal text.
func marshalValues(values map[string]any) (string, error) {
	if values == nil {
		values = map[string]any{}
	}
	return encode(values)
}

func encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal values: %w", err)
	}
	// Encoder adds a trailing newline.
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalValues parses stored JSON TEXT. Numbers decode as float64.
func unmarshalValues(data string) (map[string]any, error) {
	out := map[string]any{}
	if data == "" || data == "{}" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	return out, nil
}
