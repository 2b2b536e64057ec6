package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/n0madic/go-llmbridge/internal/audit"
	"github.com/n0madic/go-llmbridge/internal/errs"
	"github.com/n0madic/go-llmbridge/internal/types"
)

const (
	sessionSeparator  = "_session_"
	sessionIDFallback = 32
)

// AnthropicDecoder parses Anthropic Messages API request bodies.
type AnthropicDecoder struct{}

// Decode validates the body shape, records every leaf path as a source path
// and returns the canonical request.
func (d *AnthropicDecoder) Decode(body []byte, col *audit.Collector) (*types.CanonicalRequest, error) {
	if !gjson.ValidBytes(body) {
		return nil, &errs.ParseError{Message: "request body is not valid JSON"}
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, &errs.ParseError{Message: "request body must be a JSON object"}
	}
	if m := root.Get("model"); !m.Exists() || m.Type != gjson.String {
		return nil, &errs.ParseError{Path: "/model", Message: "model is required and must be a string"}
	}
	if m := root.Get("messages"); !m.Exists() || !m.IsArray() {
		return nil, &errs.ParseError{Path: "/messages", Message: "messages is required and must be an array"}
	}

	if col != nil {
		col.AddSourcePaths(audit.CollectLeafPaths(body)...)
	}

	var req types.AnthropicMessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &errs.ParseError{Message: "malformed request body", Err: err}
	}

	out := &types.CanonicalRequest{
		Model:          req.Model,
		System:         types.SystemText{Text: types.JoinTextFragments(req.System)},
		Stream:         req.Stream,
		SessionID:      extractSessionID(req.Metadata),
		CacheRetention: extractCacheRetention(req.Metadata),
		MaxTokens:      req.MaxTokens,
		Temperature:    req.Temperature,
		TopP:           req.TopP,
		StopSequences:  req.StopSequences,
	}
	if req.Thinking != nil {
		out.Thinking = &types.ThinkingConfig{Type: req.Thinking.Type, BudgetTokens: req.Thinking.BudgetTokens}
	}

	out.Messages = make([]types.CanonicalMessage, 0, len(req.Messages))
	for i, msg := range req.Messages {
		path := audit.Join(audit.Join("", "messages"), i)
		if msg.Role != types.RoleUser && msg.Role != types.RoleAssistant {
			return nil, &errs.ParseError{Path: audit.Join(path, "role"), Message: fmt.Sprintf("invalid role %q", msg.Role)}
		}
		blocks, err := msg.ParseContent()
		if err != nil {
			return nil, &errs.ParseError{Path: audit.Join(path, "content"), Message: "content must be a string or an array", Err: err}
		}
		out.Messages = append(out.Messages, types.CanonicalMessage{
			Role:    msg.Role,
			Content: types.MessageContent{Blocks: canonicalBlocks(blocks, audit.Join(path, "content"), col)},
		})
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, types.ToolSpec{
			Type:        t.Type,
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return out, nil
}

func canonicalBlocks(blocks []types.AnthropicContentBlock, path string, col *audit.Collector) []types.ContentBlock {
	out := make([]types.ContentBlock, 0, len(blocks))
	for j, b := range blocks {
		switch b.Type {
		case "thinking", "redacted_thinking":
			if col != nil {
				col.AddDiff(audit.OpRemove, audit.Join(path, j), nil, b.Type)
			}
			continue
		case types.BlockText:
			out = append(out, types.ContentBlock{Type: types.BlockText, Text: b.TextValue()})
		default:
			out = append(out, types.ContentBlock{
				Type:      b.Type,
				ID:        b.ID,
				Name:      b.Name,
				Input:     b.Input,
				ToolUseID: b.ToolUseID,
				Content:   b.Content,
				IsError:   b.IsError,
				Source:    b.Source,
			})
		}
	}
	return out
}

// extractSessionID derives a prompt cache key from metadata.user_id: the part
// after "_session_" when present, otherwise the first 32 characters.
func extractSessionID(metadata map[string]any) string {
	userID, _ := metadata["user_id"].(string)
	if userID == "" {
		return ""
	}
	if parts := strings.Split(userID, sessionSeparator); len(parts) > 1 {
		return parts[1]
	}
	r := []rune(userID)
	if len(r) > sessionIDFallback {
		r = r[:sessionIDFallback]
	}
	return string(r)
}

func extractCacheRetention(metadata map[string]any) string {
	v, _ := metadata["prompt_cache_retention"].(string)
	switch v {
	case types.CacheRetentionInMemory, types.CacheRetention24h:
		return v
	}
	return ""
}
