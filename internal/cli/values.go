package cli

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseAssignments turns "field=value" pairs into a value map. Values are
// read as YAML scalars or flow collections, so "2" is a number, "[a, b]" a
// list and an empty value clears the field.
func parseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q: want field=value", p)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}
