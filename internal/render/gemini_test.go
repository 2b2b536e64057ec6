package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0madic/go-llmbridge/internal/audit"
	"github.com/n0madic/go-llmbridge/internal/types"
)

func TestGeminiPath(t *testing.T) {
	assert.Equal(t, "/v1beta/models/gemini-2.5-pro:generateContent", GeminiPath("gemini-2.5-pro", false))
	assert.Equal(t, "/v1beta/models/gemini-2.5-pro:streamGenerateContent?alt=sse", GeminiPath("gemini-2.5-pro", true))
}

func TestRenderGemini(t *testing.T) {
	col := audit.New()
	req := parse(t, col, `{
		"model":"gemini-2.5-pro",
		"system":"sys",
		"max_tokens":256,
		"top_p":0.9,
		"messages":[
			{"role":"user","content":[{"type":"text","text":"a"},{"type":"text","text":"b"},{"type":"image","source":{"type":"base64","media_type":"image/png","data":"AAA"}}]},
			{"role":"assistant","content":[{"type":"tool_use","id":"toolu_1","name":"lookup","input":{"q":"x"}}]},
			{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"found"},{"type":"tool_result","tool_use_id":"toolu_9","content":"boom","is_error":true}]}
		],
		"tools":[{"name":"lookup","input_schema":{"type":"object","additionalProperties":false,"properties":{"q":{"type":"string"}}}}]
	}`)

	out, _ := RenderGemini(req, Config{}, col)

	require.NotNil(t, out.SystemInstruction)
	assert.Equal(t, "user", out.SystemInstruction.Role)
	assert.Equal(t, "sys", out.SystemInstruction.Parts[0].Text)

	require.Len(t, out.Contents, 3)
	assert.Equal(t, []types.GeminiPart{
		{Text: "ab"},
		{InlineData: &types.GeminiInlineData{MimeType: "image/png", Data: "AAA"}},
	}, out.Contents[0].Parts)

	assert.Equal(t, "model", out.Contents[1].Role)
	assert.Equal(t, &types.GeminiFunctionCall{Name: "lookup", Args: map[string]any{"q": "x"}}, out.Contents[1].Parts[0].FunctionCall)

	results := out.Contents[2].Parts
	assert.Equal(t, &types.GeminiFunctionResponse{ID: "toolu_1", Name: "lookup", Response: map[string]any{"result": "found"}}, results[0].FunctionResponse)
	assert.Equal(t, &types.GeminiFunctionResponse{ID: "toolu_9", Name: "toolu_9", Response: map[string]any{"error": "boom", "is_error": true}}, results[1].FunctionResponse)

	require.Len(t, out.Tools, 1)
	decl := out.Tools[0].FunctionDeclarations[0]
	assert.NotContains(t, decl.Parameters, "additionalProperties")
	assert.Equal(t, 256, out.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, 0.9, *out.GenerationConfig.TopP)
	assert.Nil(t, out.GenerationConfig.Temperature)
}
