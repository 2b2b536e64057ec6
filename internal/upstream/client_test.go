package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"https://api.example.com", "/v1/responses", "https://api.example.com/v1/responses"},
		{"https://api.example.com/v1/", "/v1/chat/completions", "https://api.example.com/v1/chat/completions"},
		{"https://gw.example.com/codex", "v1/responses", "https://gw.example.com/codex/v1/responses"},
		{"https://gw.example.com", "", "https://gw.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, JoinURL(tt.base, tt.path))
		})
	}
}

func TestDoSingleAttempt(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"a":1}`, string(body))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		w.Header().Set("x-request-id", "req_1")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(time.Second, false)
	resp, err := c.Do(context.Background(), Request{
		URL:     JoinURL(srv.URL, "/v1/responses"),
		Headers: http.Header{"Authorization": {"Bearer k"}},
		Body:    []byte(`{"a":1}`),
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "req_1", RequestID(resp.Header))
	assert.Equal(t, 1, calls)
}

func TestDoHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(0, false).Do(ctx, Request{URL: srv.URL})
	assert.ErrorIs(t, err, context.Canceled)
}
