// Package server exposes the Messages API and forwards transformed
// requests to the configured suppliers.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/n0madic/go-llmbridge/internal/config"
	"github.com/n0madic/go-llmbridge/internal/engine"
	"github.com/n0madic/go-llmbridge/internal/limits"
	"github.com/n0madic/go-llmbridge/internal/tokens"
	"github.com/n0madic/go-llmbridge/internal/upstream"
)

const (
	messagesSuffix    = "/v1/messages"
	countTokensSuffix = "/v1/messages/count_tokens"

	tokenizerHeuristic = "heuristic"
	tokenCacheSize     = 1024
)

// Server is the HTTP gateway.
type Server struct {
	Config    *config.ServerConfig
	Suppliers *config.Suppliers
	Engine    *engine.Engine
	Upstream  *upstream.Client
	Estimator *tokens.Estimator
	// Credentials mints tokens for suppliers configured with oauth.
	Credentials *upstream.Credentials
	// Limits holds the last rate-limit headers seen per supplier.
	Limits *limits.Tracker
	// Traces is nil unless debug mode is on.
	Traces *TraceStore

	httpServer *http.Server
}

// New wires the engine, upstream client and routes for cfg.
func New(cfg *config.ServerConfig, sups *config.Suppliers) *Server {
	if sups == nil {
		sups = &config.Suppliers{}
	}
	est := tokens.NewHeuristic(tokenCacheSize)
	if cfg.Tokenizer != "" && cfg.Tokenizer != tokenizerHeuristic {
		est = tokens.New(cfg.Tokenizer, tokenCacheSize)
	}
	s := &Server{
		Config:    cfg,
		Suppliers: sups,
		Estimator: est,
		Engine:    engine.New(engine.WithEstimator(est)),
		Upstream:  upstream.NewClient(cfg.UpstreamTimeout, cfg.Debug),
		Limits:    &limits.Tracker{},

		Credentials: &upstream.Credentials{},
	}
	if cfg.Debug {
		s.Traces = NewTraceStore(cfg.TraceCacheSize)
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /debug/traces", s.handleListTraces)
	mux.HandleFunc("GET /debug/traces/{id}", s.handleTrace)
	mux.HandleFunc("POST /", s.route)

	return recoverMiddleware(requestIDMiddleware(accessLogMiddleware(corsMiddleware(bodyLimitMiddleware(s.Config.MaxBodyBytes, mux)))))
}

// route dispatches Messages endpoints under any supplier path prefix.
func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, countTokensSuffix):
		s.handleCountTokens(w, r)
	case strings.HasSuffix(r.URL.Path, messagesSuffix):
		s.handleMessages(w, r)
	default:
		http.NotFound(w, r)
	}
}

// ListenAndServe starts the server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
