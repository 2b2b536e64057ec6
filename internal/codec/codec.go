// Package codec decodes inbound client requests into the canonical model and
// writes client-facing HTTP envelopes.
package codec

import (
	"net/http"

	"github.com/n0madic/go-llmbridge/internal/audit"
	"github.com/n0madic/go-llmbridge/internal/types"
)

// Decoder converts a raw request body into a CanonicalRequest.
type Decoder interface {
	Decode(body []byte, col *audit.Collector) (*types.CanonicalRequest, error)
}

// WriteStreamHeaders prepares w for an SSE response.
func WriteStreamHeaders(w http.ResponseWriter, statusCode int) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(statusCode)
}
