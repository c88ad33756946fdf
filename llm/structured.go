package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON parses a model reply that is expected to be a JSON object.
// Markdown code fences and text around the outermost object are ignored.
func DecodeJSON(content string, v any) error {
	s := strings.TrimSpace(content)
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("model reply is not valid JSON: %w", err)
	}
	return nil
}

// MustSchema marshals a JSON schema literal for ToolSchema.Parameters.
func MustSchema(schema map[string]any) json.RawMessage {
	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("llm: invalid tool schema: %v", err))
	}
	return data
}
