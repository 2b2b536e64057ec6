package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0madic/go-llmbridge/internal/audit"
	"github.com/n0madic/go-llmbridge/internal/toolname"
	"github.com/n0madic/go-llmbridge/internal/types"
)

func TestCodexTextStream(t *testing.T) {
	col := audit.New()
	res := Transform(NewCodex(Options{Audit: col}), events(
		`{"type":"response.created","response":{"id":"resp_1","model":"gpt-5"}}`,
		`{"type":"response.content_part.added","part":{"type":"output_text"}}`,
		`{"type":"response.output_text.delta","delta":"Hello"}`,
		`{"type":"response.output_text.delta","delta":" world"}`,
		`{"type":"response.content_part.done"}`,
		`{"type":"response.completed","response":{"id":"resp_1","usage":{"input_tokens":100,"output_tokens":20,"input_tokens_details":{"cached_tokens":30},"output_tokens_details":{"reasoning_tokens":5}}}}`,
	))

	require.True(t, res.StreamEnd)
	assert.Equal(t, []string{
		EventMessageStart,
		EventContentBlockStart, EventContentBlockDelta, EventContentBlockDelta, EventContentBlockStop,
		EventMessageDelta, EventMessageStop,
	}, eventTypes(res.Events))

	start := res.Events[0].Message
	assert.Equal(t, "resp_1", start.ID)
	assert.Equal(t, "gpt-5", start.Model)
	assert.Equal(t, " world", *res.Events[3].Delta.Text)

	md := res.Events[5]
	assert.Equal(t, "end_turn", md.MessageDelta.StopReason)
	assert.Equal(t, types.AnthropicUsage{InputTokens: 70, OutputTokens: 20, CacheReadInputTokens: 30}, *md.Usage)

	reasoning, _ := col.Metadata(MetaUpstreamReasoningTokens)
	assert.Equal(t, 5, reasoning)
	_, overlapped := col.Metadata(MetaClosedOverlappingBlock)
	assert.False(t, overlapped)
}

func TestCodexToolCallStream(t *testing.T) {
	names := toolname.BuildWithLimit([]string{"mcp__server__read_file"}, 16)
	short := names.Short("mcp__server__read_file")
	require.NotEqual(t, "mcp__server__read_file", short)

	res := Transform(NewCodex(Options{ShortNames: names, EstimatedInputTokens: intPtr(42)}), events(
		`{"type":"response.created","response":{"id":"resp_2"}}`,
		`{"type":"response.output_item.added","item":{"type":"function_call","id":"fc_1","call_id":"call_1","name":"`+short+`"}}`,
		`{"type":"response.function_call_arguments.delta","item_id":"fc_1","delta":"{\"a\":"}`,
		`{"type":"response.function_call_arguments.delta","item_id":"fc_1","delta":"1}"}`,
		`{"type":"response.function_call_arguments.done","item_id":"fc_1","arguments":"{\"a\":1}"}`,
		`{"type":"response.output_item.done","item":{"type":"function_call","id":"fc_1","call_id":"call_1","name":"`+short+`","arguments":"{\"a\":1}"}}`,
		`{"type":"response.completed","response":{"id":"resp_2"}}`,
	))

	assert.Equal(t, []string{
		EventMessageStart,
		EventContentBlockStart, EventContentBlockDelta, EventContentBlockDelta, EventContentBlockDelta, EventContentBlockStop,
		EventMessageDelta, EventMessageStop,
	}, eventTypes(res.Events))

	block := res.Events[1].ContentBlock
	assert.Equal(t, "tool_use", block.Type)
	assert.Equal(t, "call_1", block.ID)
	assert.Equal(t, "mcp__server__read_file", block.Name)
	assert.Equal(t, map[string]any{}, block.Input)
	assert.Equal(t, "", *res.Events[2].Delta.PartialJSON)

	md := res.Events[6]
	assert.Equal(t, "tool_use", md.MessageDelta.StopReason)
	assert.Equal(t, types.AnthropicUsage{InputTokens: 42, OutputTokens: 3}, *md.Usage)
}

func TestCodexToolCallReportedOnlyOnDone(t *testing.T) {
	res := Transform(NewCodex(Options{}), events(
		`{"type":"response.output_item.done","item":{"type":"function_call","id":"fc_1","call_id":"call_1","name":"read","arguments":"{\"p\":\"x\"}"}}`,
		`{"type":"response.completed","response":{}}`,
	))

	deltas := findType(res.Events, EventContentBlockDelta)
	require.Len(t, deltas, 2)
	assert.Equal(t, `{"p":"x"}`, *deltas[1].Delta.PartialJSON)
	assert.Equal(t, "tool_use", findType(res.Events, EventMessageDelta)[0].MessageDelta.StopReason)
}

func TestCodexFallbackUsage(t *testing.T) {
	col := audit.New()
	tr := NewCodex(Options{Audit: col})
	res := Transform(tr, events(
		`{"type":"response.created","response":{"id":"resp_3"}}`,
		`{"type":"response.output_text.delta","delta":"Hello world!"}`,
	))

	require.True(t, res.StreamEnd)
	md := findType(res.Events, EventMessageDelta)
	require.Len(t, md, 1)
	assert.Equal(t, types.AnthropicUsage{OutputTokens: 4}, *md[0].Usage)
	assert.Equal(t, "end_turn", md[0].MessageDelta.StopReason)
	assert.Equal(t, EventMessageStop, res.Events[len(res.Events)-1].Type)

	for _, key := range []string{MetaMissingUpstreamCompleted, MetaMissingEstimatedInputTokens} {
		v, ok := col.Metadata(key)
		assert.True(t, ok, key)
		assert.Equal(t, true, v, key)
	}
	assert.Equal(t, 12, tr.State().OutputChars)
	assert.Equal(t, "Hello world!", tr.State().Blocks[0].Text.String())
}

func TestCodexFailedEmitsSingleError(t *testing.T) {
	tr := NewCodex(Options{})
	res := Transform(tr, events(
		`{"type":"response.created","response":{"id":"resp_4"}}`,
		`{"type":"response.output_text.delta","delta":"Hi"}`,
		`{"type":"response.failed","response":{"error":{"message":"quota exceeded"}}}`,
		`{"type":"response.output_text.delta","delta":"late"}`,
	))

	assert.True(t, res.StreamEnd)
	assert.Equal(t, []string{
		EventMessageStart, EventContentBlockStart, EventContentBlockDelta,
		EventError, EventContentBlockStop, EventMessageStop,
	}, eventTypes(res.Events))
	assert.Equal(t, "quota exceeded", res.Events[3].Error.Message)
	assert.Empty(t, findType(res.Events, EventMessageDelta))

	assert.Empty(t, tr.Finalize().Events)
}

func TestCodexAbortEmitsNothing(t *testing.T) {
	tr := NewCodex(Options{})
	res := tr.Push(events(`{"type":"response.output_text.delta","delta":"partial"}`)[0])
	require.NotEmpty(t, res.Events)

	tr.Abort()

	fin := tr.Finalize()
	assert.True(t, fin.StreamEnd)
	assert.Empty(t, fin.Events)
	assert.Empty(t, tr.Push(events(`{"type":"response.completed","response":{}}`)[0]).Events)
	assert.False(t, tr.State().MessageStopped)
}

func TestCodexBatchMatchesIncremental(t *testing.T) {
	upstream := events(
		`{"type":"response.created","response":{"id":"resp_5","model":"gpt-5"}}`,
		`{"type":"response.reasoning_summary_part.added"}`,
		`{"type":"response.reasoning_summary_text.delta","delta":"plan"}`,
		`{"type":"response.reasoning_summary_part.done"}`,
		`{"type":"response.output_text.delta","delta":"ok"}`,
		`{"type":"response.output_item.added","item":{"type":"function_call","id":"fc","call_id":"c","name":"f"}}`,
		`{"type":"response.function_call_arguments.delta","item_id":"fc","delta":"{}"}`,
		`{"type":"response.output_item.done","item":{"type":"function_call","id":"fc","call_id":"c","name":"f","arguments":"{}"}}`,
	)

	batch := Transform(NewCodex(Options{}), upstream)

	tr := NewCodex(Options{})
	var incremental []Event
	for _, ev := range upstream {
		incremental = append(incremental, tr.Push(ev).Events...)
	}
	incremental = append(incremental, tr.Finalize().Events...)

	assert.Equal(t, string(EncodeAll(batch.Events)), string(EncodeAll(incremental)))
}

func TestCodexBlockIndexesAreMonotonic(t *testing.T) {
	col := audit.New()
	res := Transform(NewCodex(Options{Audit: col}), events(
		`{"type":"response.reasoning_summary_part.added"}`,
		`{"type":"response.reasoning_summary_text.delta","delta":"a"}`,
		`{"type":"response.reasoning_text.delta","delta":"b"}`,
		`{"type":"response.output_text.delta","delta":"c"}`,
		`{"type":"response.completed","response":{}}`,
	))

	starts := findType(res.Events, EventContentBlockStart)
	require.Len(t, starts, 2)
	assert.Equal(t, "thinking", starts[0].ContentBlock.Type)
	assert.Equal(t, 0, starts[0].Index)
	assert.Equal(t, 1, starts[1].Index)
	assert.Len(t, findType(res.Events, EventContentBlockDelta), 3)

	v, _ := col.Metadata(MetaClosedOverlappingBlock)
	assert.Equal(t, true, v)
}

func TestCodexUnexpectedArgumentsDelta(t *testing.T) {
	col := audit.New()
	res := Transform(NewCodex(Options{Audit: col}), events(
		`{"type":"response.function_call_arguments.delta","item_id":"fc","delta":"{}"}`,
		`{"type":"response.completed","response":{}}`,
	))

	assert.Empty(t, findType(res.Events, EventContentBlockDelta))
	v, _ := col.Metadata(MetaUnexpectedFunctionCallDelta)
	assert.Equal(t, true, v)
}

func TestCodexIncompleteMapsMaxTokens(t *testing.T) {
	res := Transform(NewCodex(Options{}), events(
		`{"type":"response.output_text.delta","delta":"cut"}`,
		`{"type":"response.incomplete","response":{"incomplete_details":{"reason":"max_output_tokens"}}}`,
	))
	assert.Equal(t, "max_tokens", findType(res.Events, EventMessageDelta)[0].MessageDelta.StopReason)
}

func TestCodexCustomToolCall(t *testing.T) {
	upstream := events(
		`{"type":"response.output_item.added","item":{"type":"custom_tool_call","id":"ctc_1","call_id":"call_9","name":"apply_patch"}}`,
		`{"type":"response.custom_tool_call_input.delta","item_id":"ctc_1","delta":"*** Begin"}`,
		`{"type":"response.output_item.done","item":{"type":"custom_tool_call","id":"ctc_1","call_id":"call_9","name":"apply_patch","input":"*** Begin"}}`,
		`{"type":"response.completed","response":{}}`,
	)

	t.Run("wrap_object", func(t *testing.T) {
		res := Transform(NewCodex(Options{}), upstream)
		deltas := findType(res.Events, EventContentBlockDelta)
		require.Len(t, deltas, 2)
		assert.Equal(t, `{"input":"*** Begin"}`, *deltas[1].Delta.PartialJSON)
		assert.Equal(t, "tool_use", findType(res.Events, EventMessageDelta)[0].MessageDelta.StopReason)
	})

	t.Run("error", func(t *testing.T) {
		col := audit.New()
		res := Transform(NewCodex(Options{CustomToolCallStrategy: CustomToolError, Audit: col}), upstream)
		assert.Equal(t, []string{EventMessageStart, EventError, EventMessageStop}, eventTypes(res.Events))
		v, _ := col.Metadata(MetaCustomToolCallRejected)
		assert.Equal(t, "apply_patch", v)
	})
}

func TestCodexToolBlockClosedByTextIsNotReopened(t *testing.T) {
	col := audit.New()
	res := Transform(NewCodex(Options{Audit: col}), events(
		`{"type":"response.created","response":{"id":"resp_3"}}`,
		`{"type":"response.output_item.added","item":{"type":"function_call","id":"fc","call_id":"c","name":"lookup"}}`,
		`{"type":"response.output_text.delta","delta":"stray"}`,
		`{"type":"response.function_call_arguments.delta","item_id":"fc","delta":"{}"}`,
		`{"type":"response.output_item.done","item":{"type":"function_call","id":"fc","call_id":"c","name":"lookup","arguments":"{}"}}`,
		`{"type":"response.completed","response":{"id":"resp_3"}}`,
	))

	require.True(t, res.StreamEnd)
	var toolStarts int
	for _, s := range findType(res.Events, EventContentBlockStart) {
		if s.ContentBlock.Type == "tool_use" {
			toolStarts++
			assert.Equal(t, "c", s.ContentBlock.ID)
		}
	}
	assert.Equal(t, 1, toolStarts)
	assert.Equal(t, "tool_use", findType(res.Events, EventMessageDelta)[0].MessageDelta.StopReason)

	v, _ := col.Metadata(MetaUnexpectedFunctionCallDelta)
	assert.Equal(t, true, v)
}
