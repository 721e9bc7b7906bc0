// Package jsonx recovers structured data from LLM output that is supposed to
// be JSON but often is not quite.
package jsonx

import (
	"encoding/json"
	"regexp"
	"strings"
)

var braceBlock = regexp.MustCompile(`\{[\s\S]*\}`)

// ParseLoose extracts a JSON object from text, tolerating prose around it.
// It tries a strict parse first, then the first {...} block. The second return
// value reports whether an object was recovered; on false the map is empty,
// never nil, so call sites can read defaults off it directly.
func ParseLoose(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err == nil && m != nil {
		return m, true
	}
	if block := braceBlock.FindString(text); block != "" {
		if err := json.Unmarshal([]byte(block), &m); err == nil && m != nil {
			return m, true
		}
	}
	return map[string]any{}, false
}

// StringField reads a string value from a loosely parsed object, returning ""
// when the key is absent or holds a non-string.
func StringField(m map[string]any, key string) string {
	v, ok := m[key].(string)
	if !ok {
		return ""
	}
	return v
}

// BoolField reads a bool value, defaulting to false for absent or mistyped keys.
func BoolField(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

// StringList reads a list of strings, dropping entries that are not strings.
func StringList(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
