package engine

import (
	"net/http"
	"strings"
)

// DefaultDropHeaderPrefixes are client SDK headers never forwarded upstream.
var DefaultDropHeaderPrefixes = []string{"anthropic-", "x-stainless-", "x-api-key", "x-app"}

var hopHeaders = map[string]bool{
	"content-length":    true,
	"host":              true,
	"connection":        true,
	"transfer-encoding": true,
	"accept-encoding":   true,
}

// mapHeaders copies in without hop-by-hop headers and without headers whose
// lowercase name starts with one of drop.
func mapHeaders(in http.Header, drop []string) http.Header {
	out := make(http.Header, len(in))
	for key, values := range in {
		lower := strings.ToLower(key)
		if hopHeaders[lower] || hasAnyPrefix(lower, drop) {
			continue
		}
		out[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	return out
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
