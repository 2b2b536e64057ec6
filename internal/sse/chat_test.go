package sse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0madic/go-llmbridge/internal/audit"
	"github.com/n0madic/go-llmbridge/internal/types"
)

func TestChatStream(t *testing.T) {
	col := audit.New()
	res := Transform(NewChat(Options{Audit: col}), events(
		`{"id":"chatcmpl-1","model":"gpt-4o","choices":[{"delta":{"role":"assistant","content":"Hi"}}]}`,
		`{"id":"chatcmpl-1","choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"read","arguments":""}}]}}]}`,
		`{"id":"chatcmpl-1","choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"p\":1}"}}]}}]}`,
		`{"id":"chatcmpl-1","choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`{"id":"chatcmpl-1","choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"prompt_tokens_details":{"cached_tokens":2}}}`,
	))

	require.True(t, res.StreamEnd)
	assert.Equal(t, []string{
		EventMessageStart,
		EventContentBlockStart, EventContentBlockDelta, EventContentBlockStop,
		EventContentBlockStart, EventContentBlockDelta, EventContentBlockDelta, EventContentBlockStop,
		EventMessageDelta, EventMessageStop,
	}, eventTypes(res.Events))

	assert.Equal(t, "chatcmpl-1", res.Events[0].Message.ID)
	assert.Equal(t, "gpt-4o", res.Events[0].Message.Model)
	tool := res.Events[4]
	assert.Equal(t, 1, tool.Index)
	assert.Equal(t, "call_1", tool.ContentBlock.ID)
	assert.Equal(t, `{"p":1}`, *res.Events[6].Delta.PartialJSON)

	md := res.Events[8]
	assert.Equal(t, "tool_use", md.MessageDelta.StopReason)
	assert.Equal(t, types.AnthropicUsage{InputTokens: 8, OutputTokens: 5, CacheReadInputTokens: 2}, *md.Usage)

	_, overlapped := col.Metadata(MetaClosedOverlappingBlock)
	assert.False(t, overlapped)
	_, missing := col.Metadata(MetaMissingUpstreamCompleted)
	assert.False(t, missing)
}

func TestChatReasoningAndLength(t *testing.T) {
	res := Transform(NewChat(Options{}), events(
		`{"choices":[{"delta":{"reasoning_content":"hmm"}}]}`,
		`{"choices":[{"delta":{"content":"ok"},"finish_reason":"length"}]}`,
	))

	starts := findType(res.Events, EventContentBlockStart)
	require.Len(t, starts, 2)
	assert.Equal(t, "thinking", starts[0].ContentBlock.Type)
	assert.Equal(t, "text", starts[1].ContentBlock.Type)
	assert.True(t, strings.HasPrefix(res.Events[0].Message.ID, "msg_"))
	assert.Equal(t, "max_tokens", findType(res.Events, EventMessageDelta)[0].MessageDelta.StopReason)
}

func TestChatParallelToolCalls(t *testing.T) {
	names := map[string]string{"a": "alpha_tool"}
	res := Transform(NewChat(Options{ShortNames: toolnameMap(names)}), events(
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"c0","function":{"name":"a","arguments":"{}"}},{"index":1,"id":"c1","function":{"name":"b","arguments":"{}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	))

	starts := findType(res.Events, EventContentBlockStart)
	require.Len(t, starts, 2)
	assert.Equal(t, "alpha_tool", starts[0].ContentBlock.Name)
	assert.Equal(t, "b", starts[1].ContentBlock.Name)
	assert.Equal(t, []int{0, 1}, []int{starts[0].Index, starts[1].Index})
}

func TestChatErrorChunk(t *testing.T) {
	res := Transform(NewChat(Options{}), events(`{"error":{"message":"bad request"}}`))
	assert.Equal(t, []string{EventMessageStart, EventError, EventMessageStop}, eventTypes(res.Events))
	assert.Equal(t, "bad request", res.Events[1].Error.Message)
}

func TestChatArgumentsWithoutToolBlock(t *testing.T) {
	col := audit.New()
	tr := NewChat(Options{Audit: col})
	tr.Push(events(`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"c0","function":{"name":"f"}}]},"finish_reason":"tool_calls"}]}`)[0])
	res := tr.Push(events(`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{}"}}]}}]}`)[0])

	assert.Empty(t, findType(res.Events, EventContentBlockDelta))
	v, _ := col.Metadata(MetaUnexpectedFunctionCallDelta)
	assert.Equal(t, true, v)
}

func TestChatArgumentsForEarlierIndexDoNotOpenBlock(t *testing.T) {
	col := audit.New()
	res := Transform(NewChat(Options{Audit: col}), events(
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"c0","function":{"name":"a","arguments":"{}"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"c1","function":{"name":"b","arguments":"{"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"late\":1"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"function":{"arguments":"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	))

	starts := findType(res.Events, EventContentBlockStart)
	require.Len(t, starts, 2)
	assert.Equal(t, "c0", starts[0].ContentBlock.ID)
	assert.Equal(t, "c1", starts[1].ContentBlock.ID)
	for _, s := range starts {
		assert.NotEmpty(t, s.ContentBlock.Name)
	}

	var second []string
	for _, d := range findType(res.Events, EventContentBlockDelta) {
		if d.Index == 1 && d.Delta.PartialJSON != nil && *d.Delta.PartialJSON != "" {
			second = append(second, *d.Delta.PartialJSON)
		}
	}
	assert.Equal(t, []string{"{", "}"}, second)

	v, _ := col.Metadata(MetaUnexpectedFunctionCallDelta)
	assert.Equal(t, true, v)
}
