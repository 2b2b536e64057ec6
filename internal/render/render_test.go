package render

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/n0madic/go-llmbridge/internal/audit"
	"github.com/n0madic/go-llmbridge/internal/codec"
	"github.com/n0madic/go-llmbridge/internal/types"
)

// parse decodes a Messages body the way the parse stage does.
func parse(t *testing.T, col *audit.Collector, body string) *types.CanonicalRequest {
	t.Helper()
	req, err := (&codec.AnthropicDecoder{}).Decode([]byte(body), col)
	require.NoError(t, err)
	return req
}

func marshalMap(t *testing.T, v any) map[string]any {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}
