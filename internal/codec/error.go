package codec

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/n0madic/go-llmbridge/internal/errs"
	"github.com/n0madic/go-llmbridge/internal/types"
)

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteAnthropicError writes an Anthropic-format error response.
func WriteAnthropicError(w http.ResponseWriter, status int, errorType, message string) {
	if strings.TrimSpace(errorType) == "" {
		errorType = "api_error"
	}
	if strings.TrimSpace(message) == "" {
		message = http.StatusText(status)
	}
	WriteJSON(w, status, types.AnthropicErrorResponse{
		Type: "error",
		Error: types.AnthropicErrorBody{
			Type:    errorType,
			Message: message,
		},
	})
}

// WriteEngineError maps a transformation error to its HTTP status and
// writes it as an Anthropic error envelope.
func WriteEngineError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	log.Error().Err(err).Int("status", status).Msg("transformation failed")
	WriteAnthropicError(w, status, errs.ClientType(err), err.Error())
}
