package engine

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/n0madic/go-llmbridge/internal/config"
	"github.com/n0madic/go-llmbridge/internal/errs"
	"github.com/n0madic/go-llmbridge/internal/render"
	"github.com/n0madic/go-llmbridge/internal/sse"
	"github.com/n0madic/go-llmbridge/internal/toolname"
)

const longTool = "mcp__filesystem_server__read_multiple_files_with_metadata"

func testSupplier() *config.Supplier {
	return &config.Supplier{
		Name:    "mixed",
		BaseURL: "https://upstream.example",
		APIKey:  "sk-upstream",
		Headers: map[string]string{"X-Extra": "1"},
		Transformer: &config.TransformerConfig{
			Default: config.Chain{{Name: ChainCodex}},
			Models: map[string]config.Chain{
				"gpt-4o":         {{Name: ChainOpenAIChat, Options: map[string]any{"tool_name_limit": 32}}},
				"gemini-2.5-pro": {{Name: ChainGemini}},
			},
		},
	}
}

func clientHeaders() http.Header {
	h := http.Header{}
	h.Set("Anthropic-Version", "2023-06-01")
	h.Set("Anthropic-Beta", "tools-2024")
	h.Set("X-Stainless-Os", "Linux")
	h.Set("X-Api-Key", "client-key")
	h.Set("X-App", "cli")
	h.Set("Content-Length", "123")
	h.Set("Authorization", "Bearer client")
	h.Set("X-Custom", "kept")
	return h
}

func TestTransformCodex(t *testing.T) {
	body := []byte(`{"model":"gpt-5","max_tokens":100,"stream":true,"metadata":{"user_id":"user_abc_account__session_0d9e"},"messages":[{"role":"user","content":"hi"}]}`)

	res, err := New().Transform(context.Background(), Request{Supplier: testSupplier(), Method: "POST", Path: "/v1/messages", Headers: clientHeaders(), Body: body})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, res.Method)
	assert.Equal(t, "/v1/responses", res.Path)
	assert.Equal(t, ChainCodex, res.Chain)
	assert.True(t, res.NeedsResponseTransform)
	assert.True(t, res.UpstreamStreams)

	h := res.Headers
	for _, dropped := range []string{"Anthropic-Version", "Anthropic-Beta", "X-Stainless-Os", "X-Api-Key", "X-App", "Content-Length"} {
		assert.Empty(t, h.Get(dropped), dropped)
	}
	assert.Equal(t, "kept", h.Get("X-Custom"))
	assert.Equal(t, "1", h.Get("X-Extra"))
	assert.Equal(t, "Bearer sk-upstream", h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, "text/event-stream", h.Get("Accept"))
	assert.Equal(t, config.CodexClientVersion, h.Get("version"))
	assert.NotEmpty(t, h.Get("originator"))

	assert.Equal(t, "gpt-5", gjson.GetBytes(res.Body, "model").String())
	assert.True(t, gjson.GetBytes(res.Body, "stream").Bool())

	tr := res.Trace
	require.NotNil(t, tr)
	assert.True(t, tr.Success)
	assert.Equal(t, ChainTypeDefault, tr.ChainType)
	assert.Equal(t, []string{ChainCodex}, tr.ChainSteps)
	assert.Equal(t, "anthropic-to-codex", tr.ProtocolPair)
	require.Len(t, tr.Steps, 3)
	for i, name := range []string{"parse", "render", "validate"} {
		assert.Equal(t, name, tr.Steps[i].Name)
		assert.True(t, tr.Steps[i].Success)
	}
	assert.Contains(t, tr.Audit.SourcePaths, "/model")
	assert.NotEmpty(t, tr.Audit.TargetPaths)
	assert.NotEmpty(t, tr.ID)
}

func TestTransformModelOverride(t *testing.T) {
	body := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"tools":[{"name":"` + longTool + `","input_schema":{"type":"object"}}]}`)

	res, err := New().Transform(context.Background(), Request{Supplier: testSupplier(), Headers: http.Header{}, Body: body})
	require.NoError(t, err)

	assert.Equal(t, "/v1/chat/completions", res.Path)
	assert.Equal(t, ChainTypeModelOverride, res.Trace.ChainType)
	assert.Len(t, res.Trace.Steps, 2)
	assert.False(t, res.UpstreamStreams)
	assert.Empty(t, res.Headers.Get("Accept"))
	assert.Empty(t, res.Headers.Get("originator"))

	assert.True(t, res.ShortNameMap.Changed())
	short := res.ShortNameMap.Short(longTool)
	assert.LessOrEqual(t, len(short), 32)
	assert.Equal(t, short, gjson.GetBytes(res.Body, "tools.0.function.name").String())
}

func TestTransformGemini(t *testing.T) {
	body := []byte(`{"model":"gemini-2.5-pro","stream":true,"messages":[{"role":"user","content":"hi"}]}`)

	res, err := New().Transform(context.Background(), Request{Supplier: testSupplier(), Headers: clientHeaders(), Body: body})
	require.NoError(t, err)

	assert.Equal(t, render.GeminiPath("gemini-2.5-pro", true), res.Path)
	assert.Equal(t, "sk-upstream", res.Headers.Get("x-goog-api-key"))
	assert.Equal(t, "Bearer client", res.Headers.Get("Authorization"))
	assert.Equal(t, "anthropic-to-gemini", res.Trace.ProtocolPair)
}

func TestTransformStepOptions(t *testing.T) {
	sup := testSupplier()
	sup.Transformer.Default = config.Chain{{Name: ChainCodex, Options: map[string]any{"reasoning_effort": "low"}}}
	body := []byte(`{"model":"gpt-5","messages":[{"role":"user","content":"hi"}]}`)

	res, err := New().Transform(context.Background(), Request{Supplier: sup, Body: body})
	require.NoError(t, err)
	assert.Equal(t, "low", gjson.GetBytes(res.Body, "reasoning.effort").String())
}

func TestTransformDerivesSessionID(t *testing.T) {
	sup := testSupplier()
	sup.Transformer.Default = config.Chain{{Name: ChainCodex, Options: map[string]any{"derive_session_id": true}}}
	first := []byte(`{"model":"gpt-5","system":"be brief","messages":[{"role":"user","content":"hi"}]}`)
	next := []byte(`{"model":"gpt-5","system":"be brief","messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"},{"role":"user","content":"again"}]}`)

	e := New()
	res1, err := e.Transform(context.Background(), Request{Supplier: sup, Body: first})
	require.NoError(t, err)
	res2, err := e.Transform(context.Background(), Request{Supplier: sup, Body: next})
	require.NoError(t, err)

	key := gjson.GetBytes(res1.Body, "prompt_cache_key").String()
	assert.NotEmpty(t, key)
	assert.Equal(t, key, gjson.GetBytes(res2.Body, "prompt_cache_key").String())
	assert.Equal(t, key, res1.Headers.Get("session_id"))

	var found bool
	for _, d := range res1.Trace.Audit.Defaulted {
		if d.Path == "/prompt_cache_key" {
			found = true
		}
	}
	assert.True(t, found, "derived key should be recorded as defaulted")

	withMeta := []byte(`{"model":"gpt-5","metadata":{"user_id":"u_session_abc"},"messages":[{"role":"user","content":"hi"}]}`)
	res3, err := e.Transform(context.Background(), Request{Supplier: sup, Body: withMeta})
	require.NoError(t, err)
	assert.Equal(t, "abc", gjson.GetBytes(res3.Body, "prompt_cache_key").String())
}

func TestTransformPassthrough(t *testing.T) {
	body := []byte(`{"model":"claude-x", "messages":[]}`)
	sup := &config.Supplier{Name: "anthropic"}

	res, err := New().Transform(context.Background(), Request{Supplier: sup, Method: "POST", Path: "/v1/messages", Headers: clientHeaders(), Body: body, Stream: true})
	require.NoError(t, err)

	assert.Equal(t, body, res.Body)
	assert.Equal(t, "/v1/messages", res.Path)
	assert.False(t, res.NeedsResponseTransform)
	assert.True(t, res.UpstreamStreams)
	assert.Equal(t, "2023-06-01", res.Headers.Get("Anthropic-Version"))
	assert.Empty(t, res.Headers.Get("Content-Length"))

	assert.Equal(t, ChainTypePassthrough, res.Trace.ChainType)
	assert.True(t, res.Trace.Success)
	assert.NotEmpty(t, res.Trace.Warnings)
}

func TestTransformUnknownChain(t *testing.T) {
	sup := &config.Supplier{Name: "broken", Transformer: &config.TransformerConfig{Default: config.Chain{{Name: "bogus"}}}}

	res, err := New().Transform(context.Background(), Request{Supplier: sup, Body: []byte(`{"model":"m","messages":[]}`)})
	require.Error(t, err)

	var ce *errs.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "bogus", ce.Chain)
	assert.True(t, errors.Is(err, errs.ErrUnknownChain))
	assert.Equal(t, http.StatusInternalServerError, errs.HTTPStatus(err))

	require.NotNil(t, res)
	assert.False(t, res.Trace.Success)
	assert.NotEmpty(t, res.Trace.Errors)
}

func TestTransformParseFailure(t *testing.T) {
	res, err := New().Transform(context.Background(), Request{Supplier: testSupplier(), Body: []byte(`{"messages":[]}`)})
	require.Error(t, err)

	var pe *errs.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "/model", pe.Path)
	assert.Equal(t, http.StatusBadRequest, errs.HTTPStatus(err))

	tr := res.Trace
	assert.False(t, tr.Success)
	require.Len(t, tr.Steps, 1)
	assert.Equal(t, "parse", tr.Steps[0].Name)
	assert.False(t, tr.Steps[0].Success)
}

func TestKnown(t *testing.T) {
	for _, name := range []string{ChainCodex, ChainOpenAIChat, ChainGemini} {
		assert.True(t, Known(name), name)
	}
	assert.False(t, Known("anthropic"))
}

func TestTransformResponse(t *testing.T) {
	e := New()
	sup := testSupplier()

	sseBody := strings.Join([]string{
		`event: response.output_item.done`,
		`data: {"type":"response.output_item.done","item":{"type":"message","content":[{"type":"output_text","text":"Hi"}]}}`,
		``,
		`event: response.completed`,
		`data: {"type":"response.completed","response":{"id":"resp_7","model":"gpt-5","status":"completed","output":[],"usage":{"input_tokens":3,"output_tokens":1}}}`,
		``,
		``,
	}, "\n")
	out, err := e.TransformResponse(sup, "gpt-5", []byte(sseBody), "text/event-stream; charset=utf-8", toolname.Map{})
	require.NoError(t, err)
	assert.Equal(t, "resp_7", gjson.GetBytes(out, "id").String())
	assert.Equal(t, "Hi", gjson.GetBytes(out, "content.0.text").String())
	assert.Equal(t, "end_turn", gjson.GetBytes(out, "stop_reason").String())

	chat := []byte(`{"id":"c1","choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`)
	out, err = e.TransformResponse(sup, "gpt-4o", chat, "application/json", toolname.Map{})
	require.NoError(t, err)
	assert.Equal(t, "ok", gjson.GetBytes(out, "content.0.text").String())

	_, err = e.TransformResponse(sup, "gpt-4o", chat, "text/event-stream", toolname.Map{})
	var te *errs.TransformError
	assert.True(t, errors.As(err, &te))

	raw := []byte(`{"anything":true}`)
	out, err = e.TransformResponse(&config.Supplier{Name: "plain"}, "m", raw, "application/json", toolname.Map{})
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestNewStream(t *testing.T) {
	e := New()
	sup := testSupplier()

	assert.Nil(t, e.NewStream(&config.Supplier{}, "m", sse.Options{}))
	assert.IsType(t, &sse.CodexTransformer{}, e.NewStream(sup, "gpt-5", sse.Options{}))
	assert.IsType(t, &sse.ChatTransformer{}, e.NewStream(sup, "gpt-4o", sse.Options{}))
	assert.IsType(t, &sse.GeminiTransformer{}, e.NewStream(sup, "gemini-2.5-pro", sse.Options{}))

	sup.CustomToolCallStrategy = sse.CustomToolError
	tr := e.NewStream(sup, "gpt-5", sse.Options{})
	res := sse.Transform(tr, nil)
	assert.True(t, res.StreamEnd)
	assert.Equal(t, "gpt-5", tr.State().Model)
}
