package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0madic/go-llmbridge/internal/audit"
	"github.com/n0madic/go-llmbridge/internal/types"
)

func TestRenderChat(t *testing.T) {
	col := audit.New()
	req := parse(t, col, `{
		"model":"gpt-4o",
		"system":"sys",
		"stream":true,
		"max_tokens":100,
		"temperature":0.2,
		"stop_sequences":["END"],
		"messages":[
			{"role":"user","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]},
			{"role":"assistant","content":[{"type":"text","text":"calling"},{"type":"tool_use","id":"call_1","name":"read","input":{"p":1}}]},
			{"role":"user","content":[{"type":"tool_result","tool_use_id":"call_1","content":"file"},{"type":"text","text":"thanks"},{"type":"image","source":{"type":"url","url":"https://x/i.png"}}]}
		],
		"tools":[{"name":"read","input_schema":{"type":"object","properties":{"p":{"type":"integer"}}}},{"type":"web_search_20250305","name":"web_search"}]
	}`)

	out, _ := RenderChat(req, Config{}, col)

	require.Len(t, out.Messages, 5)
	assert.Equal(t, types.ChatMessage{Role: "system", Content: "sys"}, out.Messages[0])
	assert.Equal(t, types.ChatMessage{Role: "user", Content: "a\nb"}, out.Messages[1])

	asst := out.Messages[2]
	assert.Equal(t, "calling", asst.Content)
	require.Len(t, asst.ToolCalls, 1)
	assert.Equal(t, types.FunctionCall{Name: "read", Arguments: `{"p":1}`}, asst.ToolCalls[0].Function)

	assert.Equal(t, types.ChatMessage{Role: "tool", ToolCallID: "call_1", Content: "file"}, out.Messages[3])
	parts, ok := out.Messages[4].Content.([]types.ContentPart)
	require.True(t, ok)
	assert.Equal(t, "https://x/i.png", parts[1].ImageURL.URL)

	require.Len(t, out.Tools, 1)
	assert.Equal(t, "read", out.Tools[0].Function.Name)
	assert.Equal(t, false, out.Tools[0].Function.Parameters.(map[string]any)["additionalProperties"])
	assert.Equal(t, &types.StreamOptions{IncludeUsage: true}, out.StreamOptions)
	assert.Equal(t, 100, out.MaxTokens)
	assert.Equal(t, []string{"END"}, out.Stop)

	skipped, _ := col.Metadata(MetaSkippedBuiltinTool)
	assert.Equal(t, WebSearchToolType, skipped)
}

func TestRenderChatAssistantToolOnlyHasNullContent(t *testing.T) {
	req := parse(t, nil, `{"model":"m","messages":[{"role":"assistant","content":[{"type":"tool_use","id":"c","name":"f","input":{}}]}]}`)
	out, _ := RenderChat(req, Config{}, nil)
	m := marshalMap(t, out)
	msg := m["messages"].([]any)[0].(map[string]any)
	assert.Nil(t, msg["content"])
	assert.Nil(t, out.StreamOptions)
}
