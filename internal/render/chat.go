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

// MetaSkippedBuiltinTool is set when a client built-in tool has no Chat equivalent.
const MetaSkippedBuiltinTool = "skippedBuiltinTool"

// RenderChat builds an OpenAI Chat Completions request.
func RenderChat(req *types.CanonicalRequest, cfg Config, col *audit.Collector) (*types.ChatCompletionRequest, toolname.Map) {
	if col == nil {
		col = audit.New()
	}
	limit := cfg.ToolNameLimit
	if limit <= 0 {
		limit = toolname.DefaultLimit
	}
	names := make([]string, 0, len(req.Tools))
	for _, t := range req.Tools {
		if t.Name != "" && t.Type != WebSearchToolType {
			names = append(names, t.Name)
		}
	}
	shortNames := toolname.BuildWithLimit(names, limit)

	out := &types.ChatCompletionRequest{
		Model:       req.Model,
		Stream:      req.Stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.StopSequences,
		Messages:    []types.ChatMessage{},
	}
	if req.Stream {
		out.StreamOptions = &types.StreamOptions{IncludeUsage: true}
		col.AddExtraTargetPaths("/stream_options/include_usage")
	}
	if req.System.Text != "" {
		out.Messages = append(out.Messages, types.ChatMessage{Role: "system", Content: req.System.Text})
	}
	for _, msg := range req.Messages {
		if msg.Role == types.RoleAssistant {
			out.Messages = append(out.Messages, chatAssistant(msg, shortNames, limit))
			continue
		}
		out.Messages = append(out.Messages, chatUser(msg, len(out.Messages), col)...)
	}
	out.Tools = renderChatTools(req.Tools, shortNames, cfg, col)

	recordTargets(col, out)
	return out, shortNames
}

func chatAssistant(msg types.CanonicalMessage, shortNames toolname.Map, limit int) types.ChatMessage {
	var text strings.Builder
	m := types.ChatMessage{Role: types.RoleAssistant}
	for _, b := range msg.Content.Blocks {
		switch b.Type {
		case types.BlockText:
			text.WriteString(b.Text)
		case types.BlockToolUse:
			name, ok := shortNames.Forward[b.Name]
			if !ok {
				name = toolname.Shorten(b.Name, limit)
			}
			m.ToolCalls = append(m.ToolCalls, types.ToolCall{
				ID:       b.ID,
				Type:     "function",
				Function: types.FunctionCall{Name: name, Arguments: stringifyInput(b.Input)},
			})
		}
	}
	if text.Len() > 0 || len(m.ToolCalls) == 0 {
		m.Content = text.String()
	}
	return m
}

// chatUser splits a user message into tool messages and user content,
// keeping block order. base is the index of the first emitted message.
func chatUser(msg types.CanonicalMessage, base int, col *audit.Collector) []types.ChatMessage {
	var out []types.ChatMessage
	var parts []types.ContentPart
	hasImage := false
	flush := func() {
		if len(parts) == 0 {
			return
		}
		m := types.ChatMessage{Role: types.RoleUser}
		if hasImage {
			m.Content = parts
		} else {
			texts := make([]string, len(parts))
			for i, p := range parts {
				texts[i] = p.Text
			}
			m.Content = strings.Join(texts, "\n")
		}
		out = append(out, m)
		parts, hasImage = nil, false
	}

	for _, b := range msg.Content.Blocks {
		switch b.Type {
		case types.BlockText:
			parts = append(parts, types.ContentPart{Type: "text", Text: b.Text})
		case types.BlockImage:
			if url := imageURL(b.Source); url != "" {
				parts = append(parts, types.ContentPart{Type: "image_url", ImageURL: &types.ImageURL{URL: url}})
				hasImage = true
			}
		case types.BlockToolResult:
			flush()
			content := chatToolResult(b, col, fmt.Sprintf("/messages/%d/content", base+len(out)))
			out = append(out, types.ChatMessage{Role: "tool", ToolCallID: b.ToolUseID, Content: content})
		}
	}
	flush()
	return out
}

func chatToolResult(b types.ContentBlock, col *audit.Collector, path string) string {
	if !b.HasContent() {
		col.SetMetadata(MetaToolResultContentMissingFilled, true)
		col.AddDiff(audit.OpAdd, path, missingToolResultOutput, nil)
		return missingToolResultOutput
	}
	if text, ok := toolResultText(b.Content); ok {
		return text
	}
	col.SetMetadata(MetaOutputWasStringified, true)
	return compactJSON(b.Content)
}

// toolResultText returns the text of a string result or of a result made only
// of text blocks.
func toolResultText(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var blocks []types.AnthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil || len(blocks) == 0 {
		return "", false
	}
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type != types.BlockText {
			return "", false
		}
		sb.WriteString(b.TextValue())
	}
	return sb.String(), true
}

func compactJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// imageURL returns a URL for an image source: the url itself or a base64 data URL.
func imageURL(source map[string]any) string {
	switch source["type"] {
	case "url":
		u, _ := source["url"].(string)
		return u
	case "base64":
		data, _ := source["data"].(string)
		if data == "" {
			return ""
		}
		mediaType, _ := source["media_type"].(string)
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}
		return "data:" + mediaType + ";base64," + data
	}
	return ""
}

func renderChatTools(tools []types.ToolSpec, shortNames toolname.Map, cfg Config, col *audit.Collector) []types.ChatTool {
	var out []types.ChatTool
	for i, t := range tools {
		if t.Type == WebSearchToolType || t.Name == WebSearchToolType {
			col.SetMetadata(MetaSkippedBuiltinTool, WebSearchToolType)
			col.AddDiff(audit.OpRemove, fmt.Sprintf("/tools/%d", i), nil, t.Name)
			continue
		}
		if t.Name == "" {
			col.SetMetadata(MetaSkippedToolWithMissingName, true)
			continue
		}
		path := fmt.Sprintf("/tools/%d/function/parameters", len(out))
		out = append(out, types.ChatTool{
			Type: "function",
			Function: &types.FunctionDef{
				Name:        shortNames.Short(t.Name),
				Description: t.Description,
				Parameters: schema.Strict(inputSchema(t), schema.Options{
					ToolName:             t.Name,
					OutputOnlyProperties: cfg.OutputOnlyProperties,
				}, col, path),
			},
		})
	}
	return out
}
