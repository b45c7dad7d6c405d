package venue

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Helpers for walking decoded JSON where venues mix numbers and numeric
// strings freely.

func AsMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func AsSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func StringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := AsString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func AsString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

// FloatField returns the first parseable numeric value among keys.
func FloatField(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if f, ok := AsFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func AsFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func IntFromAny(v any, fallback int) int {
	if f, ok := AsFloat(v); ok {
		return int(f)
	}
	return fallback
}
