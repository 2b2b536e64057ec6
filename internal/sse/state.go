package sse

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/n0madic/go-llmbridge/internal/audit"
	"github.com/n0madic/go-llmbridge/internal/stream"
	"github.com/n0madic/go-llmbridge/internal/toolname"
	"github.com/n0madic/go-llmbridge/internal/types"
)

// Audit metadata keys raised while streaming.
const (
	MetaClosedOverlappingBlock      = "closedOverlappingBlock"
	MetaUnexpectedFunctionCallDelta = "unexpectedFunctionCallDelta"
	MetaMissingUpstreamCompleted    = "missingUpstreamCompleted"
	MetaMissingEstimatedInputTokens = "missingEstimatedInputTokens"
	MetaUpstreamReasoningTokens     = "upstream_reasoning_tokens"
	MetaCustomToolCallRejected      = "customToolCallRejected"
)

// Custom tool call strategies.
const (
	CustomToolWrapObject = "wrap_object"
	CustomToolError      = "error"
)

// BlockKind is the kind of the open content block.
type BlockKind string

const (
	BlockNone     BlockKind = ""
	BlockText     BlockKind = "text"
	BlockThinking BlockKind = "thinking"
	BlockTool     BlockKind = "tool_use"
)

// Block is the accumulated content of one emitted block.
type Block struct {
	Kind BlockKind
	ID   string
	Name string
	Text strings.Builder
}

// Options configure a transformer for one stream.
type Options struct {
	// Model and MessageID are used in message_start until the upstream reports its own.
	Model     string
	MessageID string
	// ShortNames restores original tool names.
	ShortNames toolname.Map
	// EstimatedInputTokens feeds fallback usage when the upstream reports none.
	EstimatedInputTokens *int
	// CustomToolCallStrategy is CustomToolWrapObject (default) or CustomToolError.
	CustomToolCallStrategy string
	Audit                  *audit.Collector
}

// StreamState is everything a transformer knows about one stream.
type StreamState struct {
	MessageID string
	Model     string

	MessageStarted bool
	MessageStopped bool
	Ended          bool

	// BlockIndex is the index of the open block, or of the next one when none is open.
	BlockIndex int
	OpenBlock  BlockKind
	Blocks     []*Block

	HasToolCall        bool
	CompletedReceived  bool
	UpstreamStopReason string
	Usage              *types.AnthropicUsage
	FinalUsageEmitted  bool

	EstimatedInputTokens *int
	OutputChars          int
}

// Result is the output of one Push or Finalize call.
type Result struct {
	Events    []Event
	StreamEnd bool
}

// Transformer converts one upstream stream.
type Transformer interface {
	// Push consumes one upstream event in arrival order.
	Push(ev stream.Event) Result
	// Finalize closes the stream after graceful end of input.
	Finalize() Result
	// Abort ends the stream without emitting anything.
	Abort()
	State() *StreamState
}

// Transform pushes every event and finalizes when the stream has not ended.
// The output is identical to driving t incrementally.
func Transform(t Transformer, events []stream.Event) Result {
	var out Result
	for _, ev := range events {
		res := t.Push(ev)
		out.Events = append(out.Events, res.Events...)
		if res.StreamEnd {
			out.StreamEnd = true
		}
	}
	if !out.StreamEnd {
		res := t.Finalize()
		out.Events = append(out.Events, res.Events...)
		out.StreamEnd = res.StreamEnd
	}
	return out
}

func newState(opts Options) *StreamState {
	return &StreamState{
		MessageID:            opts.MessageID,
		Model:                opts.Model,
		EstimatedInputTokens: opts.EstimatedInputTokens,
	}
}

// machine holds the block discipline shared by all transformers.
type machine struct {
	st   *StreamState
	opts Options
	col  *audit.Collector
	out  []Event
	// explicitClose is set for upstreams that signal block ends themselves;
	// only then is an implicit close reported as an overlap.
	explicitClose bool
}

func newMachine(opts Options, explicitClose bool) machine {
	col := opts.Audit
	if col == nil {
		col = audit.New()
	}
	return machine{st: newState(opts), opts: opts, col: col, explicitClose: explicitClose}
}

func (m *machine) emit(e Event) {
	m.out = append(m.out, e)
}

// flush hands back the events produced since the last call.
func (m *machine) flush(end bool) Result {
	res := Result{Events: m.out, StreamEnd: end}
	m.out = nil
	return res
}

func (m *machine) capture(id, model string) {
	if m.st.MessageStarted {
		return
	}
	if id != "" {
		m.st.MessageID = id
	}
	if model != "" {
		m.st.Model = model
	}
}

func (m *machine) start() {
	if m.st.MessageStarted {
		return
	}
	m.st.MessageStarted = true
	if m.st.MessageID == "" {
		m.st.MessageID = "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	m.emit(Event{Type: EventMessageStart, Message: &types.AnthropicMessageResponse{
		ID:      m.st.MessageID,
		Type:    "message",
		Role:    types.RoleAssistant,
		Model:   m.st.Model,
		Content: []types.AnthropicContentOut{},
	}})
}

// open starts a block of kind, force-closing a block of another kind first.
func (m *machine) open(kind BlockKind, id, name string) {
	if m.st.OpenBlock != BlockNone {
		if m.explicitClose {
			m.col.SetMetadata(MetaClosedOverlappingBlock, true)
		}
		m.close()
	}
	m.start()
	block := &types.AnthropicBlockStart{Type: string(kind)}
	empty := ""
	switch kind {
	case BlockText:
		block.Text = &empty
	case BlockThinking:
		block.Thinking = &empty
	case BlockTool:
		block.ID, block.Name, block.Input = id, name, map[string]any{}
	}
	m.st.OpenBlock = kind
	m.st.Blocks = append(m.st.Blocks, &Block{Kind: kind, ID: id, Name: name})
	m.emit(Event{Type: EventContentBlockStart, Index: m.st.BlockIndex, ContentBlock: block})
}

func (m *machine) ensure(kind BlockKind) {
	if m.st.OpenBlock != kind {
		m.open(kind, "", "")
	}
}

func (m *machine) close() {
	if m.st.OpenBlock == BlockNone {
		return
	}
	m.emit(Event{Type: EventContentBlockStop, Index: m.st.BlockIndex})
	m.st.OpenBlock = BlockNone
	m.st.BlockIndex++
}

func (m *machine) closeIf(kind BlockKind) {
	if m.st.OpenBlock == kind {
		m.close()
	}
}

func (m *machine) current() *Block {
	return m.st.Blocks[len(m.st.Blocks)-1]
}

func (m *machine) text(delta string) {
	if delta == "" {
		return
	}
	m.ensure(BlockText)
	m.record(delta)
	m.emit(Event{Type: EventContentBlockDelta, Index: m.st.BlockIndex, Delta: &types.AnthropicContentDelta{Type: "text_delta", Text: &delta}})
}

func (m *machine) thinking(delta string) {
	if delta == "" {
		return
	}
	m.ensure(BlockThinking)
	m.record(delta)
	m.emit(Event{Type: EventContentBlockDelta, Index: m.st.BlockIndex, Delta: &types.AnthropicContentDelta{Type: "thinking_delta", Thinking: &delta}})
}

// inputJSON appends to the open tool block. It reports false when no tool block is open.
func (m *machine) inputJSON(partial string) bool {
	if m.st.OpenBlock != BlockTool {
		return false
	}
	m.record(partial)
	m.emit(Event{Type: EventContentBlockDelta, Index: m.st.BlockIndex, Delta: &types.AnthropicContentDelta{Type: "input_json_delta", PartialJSON: &partial}})
	return true
}

func (m *machine) record(delta string) {
	m.current().Text.WriteString(delta)
	m.st.OutputChars += utf8.RuneCountInString(delta)
}

func (m *machine) originalName(short string) string {
	return m.opts.ShortNames.Original(short)
}

func (m *machine) setUsage(u stream.Usage) {
	m.st.Usage = &types.AnthropicUsage{
		InputTokens:          u.Uncached(),
		OutputTokens:         u.Output,
		CacheReadInputTokens: u.Cached,
	}
	if u.Reasoning > 0 {
		m.col.SetMetadata(MetaUpstreamReasoningTokens, u.Reasoning)
	}
}

// stopReason is decided once, at the end of the stream.
func (m *machine) stopReason() string {
	reason := types.MapFinishReason(strings.TrimSpace(m.st.UpstreamStopReason))
	if reason == "" || (reason == "end_turn" && m.st.HasToolCall) {
		if m.st.HasToolCall {
			return "tool_use"
		}
		return "end_turn"
	}
	return reason
}

func (m *machine) finalUsage() *types.AnthropicUsage {
	if m.st.Usage != nil {
		return m.st.Usage
	}
	input := 0
	if m.st.EstimatedInputTokens != nil {
		input = *m.st.EstimatedInputTokens
	} else {
		m.col.SetMetadata(MetaMissingEstimatedInputTokens, true)
	}
	return &types.AnthropicUsage{
		InputTokens:  input,
		OutputTokens: (m.st.OutputChars + 2) / 3,
	}
}

// finish closes the open block, emits message_delta once when withUsage is
// set, then message_stop once.
func (m *machine) finish(withUsage bool) {
	m.close()
	if withUsage && !m.st.FinalUsageEmitted {
		m.st.FinalUsageEmitted = true
		m.emit(Event{
			Type:         EventMessageDelta,
			MessageDelta: &types.AnthropicMessageDelta{StopReason: m.stopReason()},
			Usage:        m.finalUsage(),
		})
	}
	if !m.st.MessageStopped {
		m.st.MessageStopped = true
		m.emit(Event{Type: EventMessageStop})
	}
	m.st.Ended = true
}

// fail emits one error event and ends the stream without a message_delta.
func (m *machine) fail(msg string) Result {
	m.start()
	m.emit(errorEvent(msg))
	m.finish(false)
	return m.flush(true)
}

// finalize is the shared graceful end-of-input path. completed reports
// whether the upstream sent its terminal event.
func (m *machine) finalize(completed bool) Result {
	if m.st.Ended {
		return Result{StreamEnd: true}
	}
	if !m.st.MessageStarted {
		m.st.Ended = true
		return Result{StreamEnd: true}
	}
	if !completed {
		m.col.SetMetadata(MetaMissingUpstreamCompleted, true)
	}
	m.finish(true)
	return m.flush(true)
}

func (m *machine) abort() {
	m.st.Ended = true
	m.out = nil
}
