package sse

import (
	"github.com/n0madic/go-llmbridge/internal/stream"
)

// ChatTransformer converts a Chat Completions chunk stream. finish_reason
// is remembered but the stream only ends on Finalize, since usage arrives in
// a trailing chunk.
type ChatTransformer struct {
	m machine
	// toolIndex is the upstream tool_calls index of the open tool block.
	toolIndex int
	finished  bool
}

// NewChat creates a transformer for one Chat Completions stream.
func NewChat(opts Options) *ChatTransformer {
	return &ChatTransformer{m: newMachine(opts, false), toolIndex: -1}
}

// State returns the live stream state.
func (t *ChatTransformer) State() *StreamState { return t.m.st }

// Abort ends the stream without a synthetic stop.
func (t *ChatTransformer) Abort() { t.m.abort() }

// Finalize closes the stream after [DONE] or end of input.
func (t *ChatTransformer) Finalize() Result { return t.m.finalize(t.finished) }

// Push consumes one chunk.
func (t *ChatTransformer) Push(ev stream.Event) Result {
	m := &t.m
	if m.st.Ended {
		return Result{StreamEnd: true}
	}
	if e := ev.Get("error"); e.Exists() {
		return m.fail(first(e.Get("message").String(), e.String()))
	}
	m.capture(ev.Get("id").String(), ev.Get("model").String())
	m.start()

	if u, ok := stream.ChatUsage(ev.Get("usage")); ok {
		m.setUsage(u)
	}
	choice := ev.Get("choices.0")
	if !choice.Exists() {
		return m.flush(false)
	}
	delta := choice.Get("delta")
	m.thinking(first(delta.Get("reasoning_content").String(), delta.Get("reasoning").String()))
	m.text(delta.Get("content").String())

	for _, call := range delta.Get("tool_calls").Array() {
		idx := int(call.Get("index").Int())
		if id := call.Get("id").String(); id != "" {
			m.st.HasToolCall = true
			t.toolIndex = idx
			m.open(BlockTool, id, m.originalName(call.Get("function.name").String()))
			m.inputJSON("")
		} else if idx != t.toolIndex {
			// Arguments for a call whose block is no longer open.
			m.col.SetMetadata(MetaUnexpectedFunctionCallDelta, true)
			continue
		}
		if args := call.Get("function.arguments").String(); args != "" {
			if !m.inputJSON(args) {
				m.col.SetMetadata(MetaUnexpectedFunctionCallDelta, true)
			}
		}
	}

	if reason := choice.Get("finish_reason").String(); reason != "" {
		m.st.UpstreamStopReason = reason
		t.finished = true
		m.close()
	}
	return m.flush(false)
}
