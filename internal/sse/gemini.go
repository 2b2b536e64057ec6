package sse

import (
	"strings"

	"github.com/google/uuid"

	"github.com/n0madic/go-llmbridge/internal/stream"
)

// GeminiTransformer converts a streamGenerateContent (alt=sse) stream.
// Function calls arrive whole, so each one becomes a complete tool_use block.
type GeminiTransformer struct {
	m        machine
	finished bool
}

// NewGemini creates a transformer for one Gemini stream.
func NewGemini(opts Options) *GeminiTransformer {
	return &GeminiTransformer{m: newMachine(opts, false)}
}

// State returns the live stream state.
func (t *GeminiTransformer) State() *StreamState { return t.m.st }

// Abort ends the stream without a synthetic stop.
func (t *GeminiTransformer) Abort() { t.m.abort() }

// Finalize closes the stream at end of input.
func (t *GeminiTransformer) Finalize() Result { return t.m.finalize(t.finished) }

// Push consumes one chunk.
func (t *GeminiTransformer) Push(ev stream.Event) Result {
	m := &t.m
	if m.st.Ended {
		return Result{StreamEnd: true}
	}
	if e := ev.Get("error"); e.Exists() {
		return m.fail(first(e.Get("message").String(), e.String()))
	}
	m.capture(ev.Get("responseId").String(), ev.Get("modelVersion").String())
	m.start()

	if u, ok := stream.GeminiUsage(ev.Get("usageMetadata")); ok {
		m.setUsage(u)
	}
	cand := ev.Get("candidates.0")
	for _, part := range cand.Get("content.parts").Array() {
		switch {
		case part.Get("functionCall").Exists():
			call := part.Get("functionCall")
			m.st.HasToolCall = true
			id := call.Get("id").String()
			if id == "" {
				id = "toolu_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
			}
			m.open(BlockTool, id, m.originalName(call.Get("name").String()))
			args := call.Get("args").Raw
			if args == "" {
				args = "{}"
			}
			m.inputJSON(args)
			m.close()
		case part.Get("thought").Bool():
			m.thinking(part.Get("text").String())
		default:
			m.text(part.Get("text").String())
		}
	}
	if reason := cand.Get("finishReason").String(); reason != "" {
		m.st.UpstreamStopReason = reason
		t.finished = true
		m.close()
	}
	return m.flush(false)
}
