package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/n0madic/go-llmbridge/internal/audit"
	"github.com/n0madic/go-llmbridge/internal/reasoning"
	"github.com/n0madic/go-llmbridge/internal/schema"
	"github.com/n0madic/go-llmbridge/internal/toolname"
	"github.com/n0madic/go-llmbridge/internal/types"
)

// Audit metadata keys set by the Codex renderer.
const (
	MetaToolResultContentMissingFilled = "toolResultContentMissingFilled"
	MetaOutputWasStringified           = "outputWasStringified"
	MetaSkippedToolWithMissingName     = "skippedToolWithMissingName"
)

// WebSearchToolType is the client built-in web search tool discriminator.
const WebSearchToolType = "web_search_20250305"

const missingToolResultOutput = `{"error":"tool_result.content missing"}`

// RenderCodex builds a Responses API request for a Codex upstream.
func RenderCodex(req *types.CanonicalRequest, cfg Config, col *audit.Collector) (*types.ResponsesRequest, toolname.Map) {
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

	instructions := renderInstructions(req.Model, req.System.Text, cfg, col)
	input, filled := renderCodexInput(req.Messages, shortNames, limit, col)
	rendered := len(input)

	if cfg.InstructionsPolicy != InstructionsTemplateSystem && !cfg.DisableSystemAsDeveloper && strings.TrimSpace(req.System.Text) != "" {
		dev := types.ResponsesInputItem{
			Type:    "message",
			Role:    "developer",
			Content: []types.ResponsesContent{{Type: "input_text", Text: types.StringPtr(req.System.Text)}},
		}
		input = append([]types.ResponsesInputItem{dev}, input...)
		col.AddDefaulted(audit.Defaulted{
			Path:   "/input/0",
			Source: audit.SourceInferred,
			Reason: "client system text injected as developer message",
		})
	}
	if !cfg.DisableSpecialInstruction {
		input = prependSpecialInstruction(input, col)
	}
	offset := len(input) - rendered
	for _, i := range filled {
		col.AddDiff(audit.OpAdd, fmt.Sprintf("/input/%d/output", i+offset), missingToolResultOutput, nil)
	}

	effort := cfg.ReasoningEffort
	if effort == "" {
		effort = reasoning.ExtractFromModelName(req.Model)
	}
	if effort == "" {
		effort = reasoning.DefaultEffort
	}
	effort = reasoning.EffortFromThinking(req.Model, req.Thinking, effort)

	verbosity := cfg.Verbosity
	if verbosity == "" {
		verbosity = "high"
	}

	out := &types.ResponsesRequest{
		Model:             req.Model,
		Instructions:      types.StringPtr(instructions),
		Input:             input,
		Tools:             renderCodexTools(req.Tools, shortNames, cfg, col),
		ToolChoice:        types.StringPtr("auto"),
		ParallelToolCalls: types.BoolPtr(true),
		Reasoning:         reasoning.BuildReasoningParam(effort, cfg.ReasoningSummary),
		Store:             types.BoolPtr(false),
		Stream:            types.BoolPtr(true),
		Include:           []string{"reasoning.encrypted_content"},
		PromptCacheKey:    req.SessionID,
		Text:              &types.ResponsesText{Verbosity: verbosity},
	}
	if req.CacheRetention != "" {
		out.PromptCacheRetention = req.CacheRetention
		col.AddDefaulted(audit.Defaulted{
			Path:   "/prompt_cache_retention",
			Source: audit.SourceInferred,
			Reason: "cache retention from client metadata",
			Value:  req.CacheRetention,
		})
	}

	col.AddExtraTargetPaths("/instructions", "/tool_choice", "/parallel_tool_calls", "/store",
		"/stream", "/include/0", "/reasoning/effort", "/text/verbosity")
	recordTargets(col, out)
	return out, shortNames
}

// renderCodexInput maps messages to input items. filled lists the indexes of
// function_call_output items whose content was missing.
func renderCodexInput(msgs []types.CanonicalMessage, shortNames toolname.Map, limit int, col *audit.Collector) (input []types.ResponsesInputItem, filled []int) {
	for _, msg := range msgs {
		role := types.RoleUser
		textKind := "input_text"
		if msg.Role == types.RoleAssistant {
			role = types.RoleAssistant
			textKind = "output_text"
		}
		current := types.ResponsesInputItem{Type: "message", Role: role}
		flush := func() {
			if len(current.Content) == 0 {
				return
			}
			input = append(input, current)
			current = types.ResponsesInputItem{Type: "message", Role: role}
		}

		for _, b := range msg.Content.Blocks {
			switch b.Type {
			case types.BlockText:
				current.Content = append(current.Content, types.ResponsesContent{Type: textKind, Text: types.StringPtr(b.Text)})
			case types.BlockImage:
				current.Content = append(current.Content, codexImage(b.Source))
			case types.BlockToolUse:
				flush()
				name, ok := shortNames.Forward[b.Name]
				if !ok {
					name = toolname.Shorten(b.Name, limit)
				}
				input = append(input, types.ResponsesInputItem{
					Type:      "function_call",
					CallID:    b.ID,
					Name:      name,
					Arguments: types.StringPtr(stringifyInput(b.Input)),
				})
			case types.BlockToolResult:
				flush()
				if !b.HasContent() {
					filled = append(filled, len(input))
				}
				input = append(input, types.ResponsesInputItem{
					Type:   "function_call_output",
					CallID: b.ToolUseID,
					Output: types.StringPtr(toolResultOutput(b, col)),
				})
			}
		}
		flush()
	}
	if input == nil {
		input = []types.ResponsesInputItem{}
	}
	return input, filled
}

func toolResultOutput(b types.ContentBlock, col *audit.Collector) string {
	if !b.HasContent() {
		col.SetMetadata(MetaToolResultContentMissingFilled, true)
		return missingToolResultOutput
	}
	var s string
	if err := json.Unmarshal(b.Content, &s); err == nil {
		return s
	}
	col.SetMetadata(MetaOutputWasStringified, true)
	var v any
	if err := json.Unmarshal(b.Content, &v); err != nil {
		return string(b.Content)
	}
	out, _ := json.Marshal(v)
	return string(out)
}

// codexImage keeps the source descriptor and adds image_url for upstreams
// that only read that field.
func codexImage(source map[string]any) types.ResponsesContent {
	c := types.ResponsesContent{Type: "input_image", Source: source}
	switch source["type"] {
	case "url":
		c.ImageURL, _ = source["url"].(string)
	case "base64":
		data, _ := source["data"].(string)
		mediaType, _ := source["media_type"].(string)
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}
		if data != "" {
			c.ImageURL = "data:" + mediaType + ";base64," + data
		}
	}
	return c
}

func prependSpecialInstruction(input []types.ResponsesInputItem, col *audit.Collector) []types.ResponsesInputItem {
	if len(input) > 0 {
		first := input[0]
		if first.Type == "message" && first.Role == types.RoleUser && len(first.Content) > 0 &&
			first.Content[0].Type == "input_text" && first.Content[0].Text != nil && *first.Content[0].Text == SpecialInstruction {
			return input
		}
	}
	col.AddDefaulted(audit.Defaulted{
		Path:   "/input/0",
		Source: audit.SourceSpecialInstruction,
		Reason: "special instruction message prepended",
	})
	msg := types.ResponsesInputItem{
		Type:    "message",
		Role:    types.RoleUser,
		Content: []types.ResponsesContent{{Type: "input_text", Text: types.StringPtr(SpecialInstruction)}},
	}
	return append([]types.ResponsesInputItem{msg}, input...)
}

func renderCodexTools(tools []types.ToolSpec, shortNames toolname.Map, cfg Config, col *audit.Collector) []types.ResponsesTool {
	out := make([]types.ResponsesTool, 0, len(tools))
	for _, t := range tools {
		path := fmt.Sprintf("/tools/%d", len(out))
		if t.Type == WebSearchToolType || t.Name == WebSearchToolType {
			col.AddDefaulted(audit.Defaulted{
				Path:   path + "/type",
				Source: audit.SourceSpecialHandling,
				Reason: "client web search tool mapped to built-in web_search",
				Value:  "web_search",
			})
			out = append(out, types.ResponsesTool{Type: "web_search"})
			continue
		}
		if t.Name == "" {
			col.SetMetadata(MetaSkippedToolWithMissingName, true)
			continue
		}

		tool := types.ResponsesTool{
			Type:        "function",
			Name:        shortNames.Short(t.Name),
			Description: t.Description,
		}
		if cfg.SchemaMode == SchemaMinimal {
			tool.Strict = types.BoolPtr(false)
			tool.Parameters = schema.Minimal(inputSchema(t))
		} else {
			tool.Strict = types.BoolPtr(true)
			tool.Parameters = schema.Strict(inputSchema(t), schema.Options{
				ToolName:             t.Name,
				OutputOnlyProperties: cfg.OutputOnlyProperties,
			}, col, path+"/parameters")
		}
		out = append(out, tool)
	}
	return out
}

func inputSchema(t types.ToolSpec) any {
	if t.InputSchema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return t.InputSchema
}
