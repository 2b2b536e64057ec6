package engine

import (
	"net/http"

	"github.com/n0madic/go-llmbridge/internal/audit"
	"github.com/n0madic/go-llmbridge/internal/render"
	"github.com/n0madic/go-llmbridge/internal/response"
	"github.com/n0madic/go-llmbridge/internal/sse"
	"github.com/n0madic/go-llmbridge/internal/toolname"
	"github.com/n0madic/go-llmbridge/internal/types"
)

// Chain names accepted in supplier configuration.
const (
	ChainCodex      = "codex"
	ChainOpenAIChat = "openai-chat"
	ChainGemini     = "gemini"
)

// Protocol describes one client -> upstream protocol pair.
type Protocol struct {
	Pair string
	// Path returns the upstream request path.
	Path   func(model string, stream bool) string
	Render func(req *types.CanonicalRequest, cfg render.Config, col *audit.Collector) (any, toolname.Map)
	// Validate is optional.
	Validate func(req any, col *audit.Collector) []error
	Response response.Func
	Stream   func(opts sse.Options) sse.Transformer
	// Auth installs the supplier credential.
	Auth func(h http.Header, key string)
	// AlwaysStreams is set when the upstream request always streams, so a
	// non-streaming client needs the SSE body collected.
	AlwaysStreams bool
}

func bearer(h http.Header, key string) {
	h.Set("Authorization", "Bearer "+key)
}

var protocols = map[string]Protocol{
	ChainCodex: {
		Pair: "anthropic-to-codex",
		Path: func(string, bool) string { return "/v1/responses" },
		Render: func(req *types.CanonicalRequest, cfg render.Config, col *audit.Collector) (any, toolname.Map) {
			return render.RenderCodex(req, cfg, col)
		},
		Validate:      render.ValidateCodex,
		Response:      response.Codex,
		Stream:        func(opts sse.Options) sse.Transformer { return sse.NewCodex(opts) },
		Auth:          bearer,
		AlwaysStreams: true,
	},
	ChainOpenAIChat: {
		Pair: "anthropic-to-openai-chat",
		Path: func(string, bool) string { return "/v1/chat/completions" },
		Render: func(req *types.CanonicalRequest, cfg render.Config, col *audit.Collector) (any, toolname.Map) {
			return render.RenderChat(req, cfg, col)
		},
		Response: response.Chat,
		Stream:   func(opts sse.Options) sse.Transformer { return sse.NewChat(opts) },
		Auth:     bearer,
	},
	ChainGemini: {
		Pair: "anthropic-to-gemini",
		Path: render.GeminiPath,
		Render: func(req *types.CanonicalRequest, cfg render.Config, col *audit.Collector) (any, toolname.Map) {
			return render.RenderGemini(req, cfg, col)
		},
		Response: response.Gemini,
		Stream:   func(opts sse.Options) sse.Transformer { return sse.NewGemini(opts) },
		Auth:     func(h http.Header, key string) { h.Set("x-goog-api-key", key) },
	},
}

// Known reports whether name is a configured protocol chain.
func Known(name string) bool {
	_, ok := protocols[name]
	return ok
}

// Lookup returns the protocol for a chain name.
func Lookup(name string) (Protocol, bool) {
	p, ok := protocols[name]
	return p, ok
}
