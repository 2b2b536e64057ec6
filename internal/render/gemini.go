package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/n0madic/go-llmbridge/internal/audit"
	"github.com/n0madic/go-llmbridge/internal/schema"
	"github.com/n0madic/go-llmbridge/internal/toolname"
	"github.com/n0madic/go-llmbridge/internal/types"
)

// GeminiPath returns the generateContent path for a model. Streaming uses
// streamGenerateContent with SSE framing.
func GeminiPath(model string, stream bool) string {
	if stream {
		return "/v1beta/models/" + model + ":streamGenerateContent?alt=sse"
	}
	return "/v1beta/models/" + model + ":generateContent"
}

// RenderGemini builds a Gemini generateContent request.
func RenderGemini(req *types.CanonicalRequest, cfg Config, col *audit.Collector) (*types.GeminiRequest, toolname.Map) {
	if col == nil {
		col = audit.New()
	}
	limit := cfg.ToolNameLimit
	if limit <= 0 {
		limit = toolname.DefaultLimit
	}
	names := make([]string, 0, len(req.Tools))
	for _, t := range req.Tools {
		if t.Name != "" {
			names = append(names, t.Name)
		}
	}
	shortNames := toolname.BuildWithLimit(names, limit)

	out := &types.GeminiRequest{Contents: []types.GeminiContent{}}
	if req.System.Text != "" {
		out.SystemInstruction = &types.GeminiContent{
			Role:  types.RoleUser,
			Parts: []types.GeminiPart{{Text: req.System.Text}},
		}
	}

	// tool_use id -> upstream function name, for functionResponse.name.
	callNames := map[string]string{}
	for i, msg := range req.Messages {
		role := types.RoleUser
		if msg.Role == types.RoleAssistant {
			role = "model"
		}
		var parts []types.GeminiPart
		for j, b := range msg.Content.Blocks {
			path := fmt.Sprintf("/messages/%d/content/%d", i, j)
			if p, ok := geminiPart(b, shortNames, limit, callNames, col, path); ok {
				parts = append(parts, p)
			}
		}
		out.Contents = append(out.Contents, types.GeminiContent{Role: role, Parts: consolidateText(parts)})
	}

	var decls []types.GeminiFunctionDeclaration
	for _, t := range req.Tools {
		if t.Name == "" {
			col.SetMetadata(MetaSkippedToolWithMissingName, true)
			continue
		}
		d := types.GeminiFunctionDeclaration{Name: shortNames.Short(t.Name), Description: t.Description}
		if t.InputSchema != nil {
			params, _ := schema.Gemini(t.InputSchema, col,
				fmt.Sprintf("/tools/0/functionDeclarations/%d/parameters", len(decls))).(map[string]any)
			d.Parameters = params
		}
		decls = append(decls, d)
	}
	if len(decls) > 0 {
		out.Tools = []types.GeminiTool{{FunctionDeclarations: decls}}
	}

	gc := types.GeminiGenerationConfig{
		MaxOutputTokens: req.MaxTokens,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		StopSequences:   req.StopSequences,
	}
	if gc.MaxOutputTokens > 0 || gc.Temperature != nil || gc.TopP != nil || len(gc.StopSequences) > 0 {
		out.GenerationConfig = &gc
	}

	recordTargets(col, out)
	return out, shortNames
}

func geminiPart(b types.ContentBlock, shortNames toolname.Map, limit int, callNames map[string]string, col *audit.Collector, path string) (types.GeminiPart, bool) {
	switch b.Type {
	case types.BlockText:
		return types.GeminiPart{Text: b.Text}, b.Text != ""
	case types.BlockToolUse:
		name, ok := shortNames.Forward[b.Name]
		if !ok {
			name = toolname.Shorten(b.Name, limit)
		}
		callNames[b.ID] = name
		return types.GeminiPart{FunctionCall: &types.GeminiFunctionCall{Name: name, Args: decodeInput(b.Input)}}, true
	case types.BlockToolResult:
		name, ok := callNames[b.ToolUseID]
		if !ok {
			name = b.ToolUseID
			col.AddDefaulted(audit.Defaulted{
				Path:   path,
				Source: audit.SourceInferred,
				Reason: "functionResponse name falls back to tool_use_id",
			})
		}
		return types.GeminiPart{FunctionResponse: &types.GeminiFunctionResponse{
			ID:       b.ToolUseID,
			Name:     name,
			Response: geminiToolResponse(b, col),
		}}, true
	case types.BlockImage:
		if p, ok := geminiImage(b.Source); ok {
			return p, true
		}
		col.AddDiff(audit.OpRemove, path, nil, b.Source)
	}
	return types.GeminiPart{}, false
}

func geminiToolResponse(b types.ContentBlock, col *audit.Collector) map[string]any {
	if !b.HasContent() {
		col.SetMetadata(MetaToolResultContentMissingFilled, true)
		return map[string]any{"result": ""}
	}
	text, isText := toolResultText(b.Content)
	if b.IsError || (isText && strings.HasPrefix(text, "Error:")) {
		if !isText {
			text = compactJSON(b.Content)
		}
		return map[string]any{"error": text, "is_error": true}
	}
	if isText {
		return map[string]any{"result": text}
	}
	var v any
	if err := json.Unmarshal(b.Content, &v); err != nil {
		return map[string]any{"result": string(b.Content)}
	}
	col.SetMetadata(MetaOutputWasStringified, true)
	return map[string]any{"result": v}
}

func geminiImage(source map[string]any) (types.GeminiPart, bool) {
	mediaType, _ := source["media_type"].(string)
	switch source["type"] {
	case "base64":
		data, _ := source["data"].(string)
		if data == "" {
			return types.GeminiPart{}, false
		}
		return types.GeminiPart{InlineData: &types.GeminiInlineData{MimeType: mediaType, Data: data}}, true
	case "url":
		u, _ := source["url"].(string)
		if u == "" {
			return types.GeminiPart{}, false
		}
		return types.GeminiPart{FileData: &types.GeminiFileData{MimeType: mediaType, FileURI: u}}, true
	}
	return types.GeminiPart{}, false
}

// consolidateText merges adjacent text parts.
func consolidateText(parts []types.GeminiPart) []types.GeminiPart {
	out := make([]types.GeminiPart, 0, len(parts))
	var pending strings.Builder
	for _, p := range parts {
		if p.Text != "" && p.FunctionCall == nil && p.FunctionResponse == nil && p.InlineData == nil && p.FileData == nil {
			pending.WriteString(p.Text)
			continue
		}
		if pending.Len() > 0 {
			out = append(out, types.GeminiPart{Text: pending.String()})
			pending.Reset()
		}
		out = append(out, p)
	}
	if pending.Len() > 0 {
		out = append(out, types.GeminiPart{Text: pending.String()})
	}
	return out
}
