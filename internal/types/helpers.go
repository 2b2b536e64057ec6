package types

import "encoding/json"

// StringPtr returns a pointer to the given string.
func StringPtr(s string) *string {
	return &s
}

// BoolPtr returns a pointer to the given bool.
func BoolPtr(b bool) *bool {
	return &b
}

// IntFromAny converts a JSON-decoded numeric value to int.
// Handles float64, int, int64 and json.Number.
func IntFromAny(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}

// CanonicalStopReasons are the stop_reason values a Messages client understands.
var CanonicalStopReasons = map[string]bool{
	"end_turn":      true,
	"max_tokens":    true,
	"stop_sequence": true,
	"tool_use":      true,
	"pause_turn":    true,
	"refusal":       true,
}

// MapFinishReason converts an upstream finish reason into a Messages stop_reason.
// Values that are already Messages stop reasons pass through. Returns "" for
// unknown or empty input.
func MapFinishReason(reason string) string {
	if CanonicalStopReasons[reason] {
		return reason
	}
	switch reason {
	case "tool_calls", "function_call":
		return "tool_use"
	case "stop", "STOP", "completed", "content_filter":
		return "end_turn"
	case "length", "max_output_tokens", "MAX_TOKENS":
		return "max_tokens"
	case "SAFETY", "RECITATION":
		return "stop_sequence"
	}
	return ""
}
