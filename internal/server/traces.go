package server

import (
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/n0madic/go-llmbridge/internal/codec"
	"github.com/n0madic/go-llmbridge/internal/engine"
)

// TraceStore keeps the most recent transformation traces.
type TraceStore struct {
	cache *lru.Cache[string, *engine.Trace]
}

// NewTraceStore creates a store holding up to size traces.
func NewTraceStore(size int) *TraceStore {
	if size <= 0 {
		size = 256
	}
	c, _ := lru.New[string, *engine.Trace](size)
	return &TraceStore{cache: c}
}

// Add records t. Nil stores and traces are ignored.
func (ts *TraceStore) Add(t *engine.Trace) {
	if ts == nil || t == nil {
		return
	}
	ts.cache.Add(t.ID, t)
}

// Get returns the trace with id.
func (ts *TraceStore) Get(id string) (*engine.Trace, bool) {
	if ts == nil {
		return nil, false
	}
	return ts.cache.Get(id)
}

// IDs lists stored trace ids, oldest first.
func (ts *TraceStore) IDs() []string {
	if ts == nil {
		return nil
	}
	return ts.cache.Keys()
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	if s.Traces == nil {
		http.NotFound(w, r)
		return
	}
	t, ok := s.Traces.Get(r.PathValue("id"))
	if !ok {
		codec.WriteAnthropicError(w, http.StatusNotFound, "not_found_error", "trace not found")
		return
	}
	codec.WriteJSON(w, http.StatusOK, t)
}

func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	if s.Traces == nil {
		http.NotFound(w, r)
		return
	}
	codec.WriteJSON(w, http.StatusOK, map[string][]string{"ids": s.Traces.IDs()})
}
