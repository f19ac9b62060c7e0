// Package jsonutil provides safe JSON extraction helpers shared by
// backend parsers. These functions extract typed values from
// map[string]any produced by encoding/json.Unmarshal — no transformation
// logic, no validation.
package jsonutil

import "strings"

// GetString safely extracts a string field from a map.
func GetString(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// GetInt safely extracts a numeric field as int from a map. JSON numbers
// decode as float64.
func GetInt(m map[string]any, key string) int {
	v, ok := m[key].(float64)
	if !ok {
		return 0
	}
	return int(v)
}

// GetFloat safely extracts a float64 field from a map.
func GetFloat(m map[string]any, key string) float64 {
	v, _ := m[key].(float64)
	return v
}

// GetBool safely extracts a bool field from a map.
func GetBool(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

// GetMap safely extracts a nested map from a map.
func GetMap(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

// GetSlice safely extracts a nested slice from a map.
func GetSlice(m map[string]any, key string) []any {
	v, _ := m[key].([]any)
	return v
}

// GetStringSlice extracts a slice field as []string, skipping any
// element that isn't itself a string.
func GetStringSlice(m map[string]any, key string) []string {
	raw := GetSlice(m, key)
	if raw == nil {
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

// ContainsNull reports whether s contains a null byte.
func ContainsNull(s string) bool {
	return strings.ContainsRune(s, '\x00')
}
