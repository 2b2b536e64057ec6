// Package engine selects a protocol chain for a supplier and runs the
// parse, render and validate stages that turn a Messages request into an
// upstream request.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/n0madic/go-llmbridge/internal/audit"
	"github.com/n0madic/go-llmbridge/internal/codec"
	"github.com/n0madic/go-llmbridge/internal/config"
	"github.com/n0madic/go-llmbridge/internal/errs"
	"github.com/n0madic/go-llmbridge/internal/pipeline"
	"github.com/n0madic/go-llmbridge/internal/render"
	"github.com/n0madic/go-llmbridge/internal/response"
	"github.com/n0madic/go-llmbridge/internal/session"
	"github.com/n0madic/go-llmbridge/internal/sse"
	"github.com/n0madic/go-llmbridge/internal/stream"
	"github.com/n0madic/go-llmbridge/internal/tokens"
	"github.com/n0madic/go-llmbridge/internal/toolname"
	"github.com/n0madic/go-llmbridge/internal/types"
)

// Request is an inbound client request bound to a supplier.
type Request struct {
	Supplier *config.Supplier
	Method   string
	Path     string
	Headers  http.Header
	Body     []byte
	Stream   bool
}

// Result is the upstream request to send plus what the response side needs.
type Result struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte

	NeedsResponseTransform bool
	// UpstreamStreams is set when the upstream will answer with SSE.
	UpstreamStreams bool

	Chain        string
	Model        string
	ShortNameMap toolname.Map
	// EstimatedInputTokens is nil when no estimator is configured.
	EstimatedInputTokens *int
	Trace                *Trace
}

// Engine is safe for concurrent use.
type Engine struct {
	decoder   codec.Decoder
	estimator *tokens.Estimator
	sessions  *session.Cache
}

// Option configures an Engine.
type Option func(*Engine)

// WithEstimator enables input token estimates for stream usage fallbacks.
func WithEstimator(e *tokens.Estimator) Option {
	return func(en *Engine) { en.estimator = e }
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{decoder: &codec.AnthropicDecoder{}, sessions: session.NewCache(session.DefaultSize)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transform converts a client request for its supplier. On failure the
// returned Result still carries the trace.
func (e *Engine) Transform(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	sup := req.Supplier
	if sup == nil {
		sup = &config.Supplier{}
	}
	model := gjson.GetBytes(req.Body, "model").String()
	trace := &Trace{
		ID:        uuid.NewString(),
		Timestamp: start,
		Supplier:  sup.Name,
		Model:     model,
		Steps:     []pipeline.StepResult{},
	}
	logger := log.Ctx(ctx).With().Str("supplier", sup.Name).Str("model", model).Logger()

	chain, override, ok := sup.ChainFor(model)
	if !ok {
		res := e.passthrough(req, sup, trace)
		trace.Duration = time.Since(start)
		logger.Debug().Msg("no transformer configured, passing request through")
		return res, nil
	}

	name := chain.Name()
	trace.Chain = name
	trace.ChainSteps = chain.StepNames()
	trace.ChainType = ChainTypeDefault
	if override {
		trace.ChainType = ChainTypeModelOverride
	}
	res := &Result{Chain: name, Model: model, Trace: trace}

	proto, known := protocols[name]
	if !known {
		err := &errs.ConfigurationError{Supplier: sup.Name, Chain: name, Message: "unknown transformer chain", Err: errs.ErrUnknownChain}
		trace.fail(err)
		trace.Duration = time.Since(start)
		return res, err
	}
	trace.ProtocolPair = proto.Pair

	cfg, err := renderConfig(sup, chain)
	if err != nil {
		trace.fail(err)
		trace.Duration = time.Since(start)
		return res, err
	}

	col := audit.New()
	var canonical *types.CanonicalRequest
	var shortNames toolname.Map
	stages := []pipeline.Stage{
		{Name: "parse", Run: func(input any, col *audit.Collector) pipeline.Result {
			c, err := e.decoder.Decode(input.([]byte), col)
			if err != nil {
				return pipeline.Result{Errors: []error{err}}
			}
			if cfg.DeriveSessionID && c.SessionID == "" {
				c.SessionID = e.sessions.Resolve(c)
				col.AddDefaulted(audit.Defaulted{
					Path:   "/prompt_cache_key",
					Source: audit.SourceInferred,
					Reason: "session id derived from system text and first user message",
					Value:  c.SessionID,
				})
			}
			canonical = c
			return pipeline.Result{Data: c}
		}},
		{Name: "render", Run: func(input any, col *audit.Collector) pipeline.Result {
			out, names := proto.Render(input.(*types.CanonicalRequest), cfg, col)
			shortNames = names
			return pipeline.Result{Data: out}
		}},
	}
	if proto.Validate != nil {
		stages = append(stages, pipeline.Stage{Name: "validate", Run: func(input any, col *audit.Collector) pipeline.Result {
			return pipeline.Result{Data: input, Errors: proto.Validate(input, col)}
		}})
	}

	out := pipeline.Run(stages, req.Body, col, pipeline.Options{})
	col.Finalize()
	trace.Steps = out.Steps
	trace.Audit = col.Audit()
	if !out.Success {
		for _, err := range out.Errors {
			trace.fail(err)
		}
		trace.Duration = time.Since(start)
		logger.Warn().Err(out.FirstError()).Str("chain", name).Msg("transformation failed")
		return res, out.FirstError()
	}

	body, err := json.Marshal(out.Data)
	if err != nil {
		err = errs.Wrap("encode", fmt.Errorf("marshal upstream request: %w", err))
		trace.fail(err)
		trace.Duration = time.Since(start)
		return res, err
	}

	streaming := req.Stream || canonical.Stream
	headers := mapHeaders(req.Headers, dropPrefixes(sup))
	headers.Set("Content-Type", "application/json")
	if streaming || proto.AlwaysStreams {
		headers.Set("Accept", "text/event-stream")
	}
	if name == ChainCodex {
		config.ApplyCodexHeaders(headers, canonical.SessionID)
	}
	if sup.APIKey != "" {
		proto.Auth(headers, sup.APIKey)
	}
	for k, v := range sup.Headers {
		headers.Set(k, v)
	}

	res.Method = http.MethodPost
	res.Path = proto.Path(canonical.Model, streaming)
	res.Headers = headers
	res.Body = body
	res.NeedsResponseTransform = true
	res.UpstreamStreams = streaming || proto.AlwaysStreams
	res.ShortNameMap = shortNames
	if e.estimator != nil {
		n := e.estimator.EstimateRequest(canonical)
		res.EstimatedInputTokens = &n
	}

	trace.Success = true
	trace.Duration = time.Since(start)
	logger.Debug().
		Str("chain", name).
		Str("chain_type", trace.ChainType).
		Str("path", res.Path).
		Int("body_bytes", len(body)).
		Dur("duration", trace.Duration).
		Msg("request transformed")
	return res, nil
}

func (e *Engine) passthrough(req Request, sup *config.Supplier, trace *Trace) *Result {
	trace.ChainType = ChainTypePassthrough
	trace.Success = true
	trace.Warnings = append(trace.Warnings, "supplier has no transformer for this model; request forwarded unchanged")
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	return &Result{
		Method:          method,
		Path:            req.Path,
		Headers:         mapHeaders(req.Headers, nil),
		Body:            req.Body,
		UpstreamStreams: req.Stream,
		Model:           trace.Model,
		Trace:           trace,
	}
}

// renderConfig overlays every step's options onto the supplier settings.
func renderConfig(sup *config.Supplier, chain config.Chain) (render.Config, error) {
	cfg := sup.Render
	for _, step := range chain {
		if len(step.Options) == 0 {
			continue
		}
		raw, err := json.Marshal(step.Options)
		if err != nil {
			return cfg, &errs.ConfigurationError{Supplier: sup.Name, Chain: chain.Name(), Message: "step " + step.Name + " options", Err: err}
		}
		var o render.Config
		if err := json.Unmarshal(raw, &o); err != nil {
			return cfg, &errs.ConfigurationError{Supplier: sup.Name, Chain: chain.Name(), Message: "step " + step.Name + " options", Err: err}
		}
		cfg = cfg.Merge(o)
	}
	return cfg, nil
}

func dropPrefixes(sup *config.Supplier) []string {
	if len(sup.DropHeaderPrefixes) > 0 {
		return sup.DropHeaderPrefixes
	}
	return DefaultDropHeaderPrefixes
}

func (e *Engine) protocolFor(sup *config.Supplier, model string) (Protocol, bool) {
	chain, _, ok := sup.ChainFor(model)
	if !ok {
		return Protocol{}, false
	}
	return Lookup(chain.Name())
}

// TransformResponse converts a complete upstream body into a Messages
// response. Bodies for passthrough suppliers are returned unchanged.
func (e *Engine) TransformResponse(sup *config.Supplier, model string, body []byte, contentType string, shortNames toolname.Map) ([]byte, error) {
	proto, ok := e.protocolFor(sup, model)
	if !ok {
		return body, nil
	}
	if strings.Contains(strings.ToLower(contentType), "text/event-stream") {
		if !proto.AlwaysStreams {
			return nil, &errs.TransformError{Type: errs.TypeSSE, Step: "response", Message: "unexpected event stream for a non-streaming request"}
		}
		collected, err := stream.CollectResponse(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		body = collected
	}
	out, err := proto.Response(body, response.Options{Model: model, ShortNames: shortNames})
	if err != nil {
		return nil, errs.Wrap("response", err)
	}
	return out, nil
}

// NewStream returns the stream transformer for the supplier's chain, or nil
// when the stream should be passed through.
func (e *Engine) NewStream(sup *config.Supplier, model string, opts sse.Options) sse.Transformer {
	proto, ok := e.protocolFor(sup, model)
	if !ok {
		return nil
	}
	if opts.Model == "" {
		opts.Model = model
	}
	if opts.CustomToolCallStrategy == "" {
		opts.CustomToolCallStrategy = sup.CustomToolCallStrategy
	}
	return proto.Stream(opts)
}
