package sse

import (
	"encoding/json"

	"github.com/n0madic/go-llmbridge/internal/stream"
)

// CodexTransformer converts a Responses API event stream.
type CodexTransformer struct {
	m    machine
	args *stream.ToolBuffer
	// toolItem is the upstream item id of the open tool block.
	toolItem   string
	customTool bool
	// custom buffers custom_tool_call input until the item is done.
	custom map[string]string
	// opened holds item ids that already had a tool block.
	opened map[string]bool
}

// NewCodex creates a transformer for one Responses stream.
func NewCodex(opts Options) *CodexTransformer {
	if opts.CustomToolCallStrategy == "" {
		opts.CustomToolCallStrategy = CustomToolWrapObject
	}
	return &CodexTransformer{m: newMachine(opts, true), args: stream.NewToolBuffer(), custom: map[string]string{}, opened: map[string]bool{}}
}

// State returns the live stream state.
func (t *CodexTransformer) State() *StreamState { return t.m.st }

// Abort ends the stream without a synthetic stop.
func (t *CodexTransformer) Abort() { t.m.abort() }

// Finalize handles graceful end of input without response.completed.
func (t *CodexTransformer) Finalize() Result { return t.m.finalize(t.m.st.CompletedReceived) }

// Push consumes one upstream event.
func (t *CodexTransformer) Push(ev stream.Event) Result {
	m := &t.m
	if m.st.Ended {
		return Result{StreamEnd: true}
	}
	m.capture(first(ev.Get("response.id").String(), ev.Get("id").String()),
		first(ev.Get("response.model").String(), ev.Get("model").String()))
	m.start()

	switch ev.Type {
	case "response.content_part.added":
		if ev.Get("part.type").String() != "reasoning_text" {
			m.ensure(BlockText)
		}
	case "response.output_text.delta":
		m.text(ev.Get("delta").String())
	case "response.content_part.done":
		m.closeIf(BlockText)

	case "response.reasoning_summary_part.added":
		m.ensure(BlockThinking)
	case "response.reasoning_text.delta", "response.reasoning_summary_text.delta":
		m.thinking(ev.Get("delta").String())
	case "response.reasoning_summary_part.done":
		m.closeIf(BlockThinking)

	case "response.output_item.added":
		return t.itemAdded(ev)
	case "response.function_call_arguments.delta":
		t.argsDelta(ev.Get("item_id").String(), ev.Get("delta").String())
	case "response.function_call_arguments.done":
		if id := ev.Get("item_id").String(); id == t.toolItem && m.st.OpenBlock == BlockTool {
			t.argsDelta(id, t.args.Remainder(id, ev.Get("arguments").String()))
		}
	case "response.custom_tool_call_input.delta":
		t.custom[ev.Get("item_id").String()] += ev.Get("delta").String()
	case "response.output_item.done":
		t.itemDone(ev)

	case "response.completed", "response.incomplete":
		m.st.CompletedReceived = true
		resp := ev.Get("response")
		for _, path := range []string{"stop_reason", "metadata.stop_reason"} {
			if v := resp.Get(path).String(); v != "" {
				m.st.UpstreamStopReason = v
				break
			}
		}
		if m.st.UpstreamStopReason == "" {
			m.st.UpstreamStopReason = resp.Get("incomplete_details.reason").String()
		}
		if u, ok := stream.ResponsesUsage(resp.Get("usage")); ok {
			m.setUsage(u)
		}
		m.finish(true)
		return m.flush(true)

	case "response.failed", "error":
		return m.fail(stream.FailureMessage(ev))
	}
	return m.flush(false)
}

func (t *CodexTransformer) itemAdded(ev stream.Event) Result {
	m := &t.m
	item := ev.Get("item")
	kind := item.Get("type").String()
	if kind != "function_call" && kind != "custom_tool_call" {
		return m.flush(false)
	}
	if kind == "custom_tool_call" && m.opts.CustomToolCallStrategy == CustomToolError {
		m.col.SetMetadata(MetaCustomToolCallRejected, item.Get("name").String())
		return m.fail("custom tool call " + item.Get("name").String() + " is not supported by this client")
	}
	m.st.HasToolCall = true
	t.toolItem = first(item.Get("id").String(), item.Get("call_id").String())
	t.customTool = kind == "custom_tool_call"
	t.opened[t.toolItem] = true
	m.open(BlockTool, first(item.Get("call_id").String(), item.Get("id").String()), m.originalName(item.Get("name").String()))
	m.inputJSON("")
	return m.flush(false)
}

func (t *CodexTransformer) argsDelta(itemID, delta string) {
	m := &t.m
	if delta == "" {
		return
	}
	if m.st.OpenBlock != BlockTool || t.customTool {
		m.col.SetMetadata(MetaUnexpectedFunctionCallDelta, true)
		return
	}
	if itemID == "" {
		itemID = t.toolItem
	}
	if itemID != t.toolItem {
		m.col.SetMetadata(MetaUnexpectedFunctionCallDelta, true)
		return
	}
	if t.args.Append(itemID, delta) {
		m.inputJSON(delta)
	}
}

func (t *CodexTransformer) itemDone(ev stream.Event) {
	m := &t.m
	item := ev.Get("item")
	switch item.Get("type").String() {
	case "message":
		m.closeIf(BlockText)
	case "reasoning":
		m.closeIf(BlockThinking)
	case "function_call":
		id := first(item.Get("id").String(), item.Get("call_id").String())
		if m.st.OpenBlock != BlockTool || id != t.toolItem {
			if t.opened[id] {
				// Its block was closed early by other output; the rest is dropped.
				m.col.SetMetadata(MetaUnexpectedFunctionCallDelta, true)
				return
			}
			// A call reported only on completion.
			m.st.HasToolCall = true
			t.toolItem, t.customTool = id, false
			t.opened[id] = true
			m.open(BlockTool, first(item.Get("call_id").String(), id), m.originalName(item.Get("name").String()))
			m.inputJSON("")
		}
		t.argsDelta(id, t.args.Remainder(id, item.Get("arguments").String()))
		m.close()
	case "custom_tool_call":
		if m.st.OpenBlock != BlockTool || !t.customTool {
			return
		}
		id := t.toolItem
		input, ok := t.custom[id]
		if !ok {
			input = item.Get("input").String()
		}
		wrapped, _ := json.Marshal(map[string]string{"input": input})
		m.inputJSON(string(wrapped))
		delete(t.custom, id)
		m.close()
	}
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
