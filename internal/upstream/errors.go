package upstream

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const previewLen = 280

// messagePaths are tried in order against an error body. Gemini wraps its
// error object in a one-element array, which the leading "0." variants cover.
var messagePaths = []string{
	"error.message", "message", "detail", "error_description", "error",
	"errors.0.message", "errors.0", "title", "reason",
	"0.error.message", "0.message",
}

// ErrorMessage describes a failed upstream response for the client: status,
// the upstream's own message or a compact body preview, and the upstream
// request id when one was sent.
func ErrorMessage(status int, body []byte, headers http.Header) string {
	code := fmt.Sprintf("%d", status)
	if text := http.StatusText(status); text != "" {
		code += " " + text
	}

	var msg string
	switch {
	case extractMessage(body) != "":
		msg = fmt.Sprintf("Upstream returned HTTP %s: %s", code, extractMessage(body))
	case preview(body) != "":
		msg = fmt.Sprintf("Upstream returned HTTP %s with unparsed body: %s", code, preview(body))
	default:
		msg = fmt.Sprintf("Upstream returned HTTP %s with empty error body", code)
	}
	if headers != nil {
		if id := RequestID(headers); id != "" {
			msg += " (request_id: " + id + ")"
		}
	}
	return msg
}

// extractMessage returns the first non-empty string at a known error path.
func extractMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range messagePaths {
		v := gjson.GetBytes(body, path)
		if v.Type == gjson.String {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

func preview(body []byte) string {
	clean := strings.Join(strings.Fields(string(body)), " ")
	if len(clean) <= previewLen {
		return clean
	}
	return clean[:previewLen] + "..."
}

// ErrorType maps an upstream HTTP status to a Messages API error type.
func ErrorType(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "authentication_error"
	case status == http.StatusForbidden:
		return "permission_error"
	case status == http.StatusNotFound:
		return "not_found_error"
	case status == http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case status == http.StatusTooManyRequests:
		return "rate_limit_error"
	case status == 529:
		return "overloaded_error"
	case status < http.StatusInternalServerError:
		return "invalid_request_error"
	}
	return "api_error"
}
