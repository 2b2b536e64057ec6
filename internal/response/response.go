// Package response converts complete upstream response bodies into Messages
// responses.
package response

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/n0madic/go-llmbridge/internal/errs"
	"github.com/n0madic/go-llmbridge/internal/stream"
	"github.com/n0madic/go-llmbridge/internal/toolname"
	"github.com/n0madic/go-llmbridge/internal/types"
)

// Options carry request context the upstream body does not.
type Options struct {
	// Model is reported when the upstream body names none.
	Model      string
	ShortNames toolname.Map
}

// Func converts one upstream body.
type Func func(body []byte, opts Options) ([]byte, error)

// builder accumulates the content of one Messages response.
type builder struct {
	opts    Options
	content []types.AnthropicContentOut
	sawTool bool
}

func (b *builder) text(s string) {
	if s == "" {
		return
	}
	if n := len(b.content); n > 0 && b.content[n-1].Type == "text" {
		b.content[n-1].Text += s
		return
	}
	b.content = append(b.content, types.AnthropicContentOut{Type: "text", Text: s})
}

func (b *builder) thinking(s, signature string) {
	if s == "" {
		return
	}
	b.content = append(b.content, types.AnthropicContentOut{Type: "thinking", Thinking: s, Signature: signature})
}

func (b *builder) toolUse(id, name string, input any) {
	b.sawTool = true
	if id == "" {
		id = "toolu_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	}
	b.content = append(b.content, types.AnthropicContentOut{
		Type:  "tool_use",
		ID:    id,
		Name:  b.opts.ShortNames.Original(name),
		Input: input,
	})
}

// stopReason prefers tool_use whenever a call was produced.
func (b *builder) stopReason(upstream string) string {
	if b.sawTool {
		return "tool_use"
	}
	if r := types.MapFinishReason(strings.TrimSpace(upstream)); r != "" {
		return r
	}
	return "end_turn"
}

func (b *builder) encode(id, model, upstreamReason string, usage stream.Usage) ([]byte, error) {
	if id == "" {
		id = "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if model == "" {
		model = b.opts.Model
	}
	content := b.content
	if content == nil {
		content = []types.AnthropicContentOut{}
	}
	return json.Marshal(types.AnthropicMessageResponse{
		ID:         id,
		Type:       "message",
		Role:       types.RoleAssistant,
		Model:      model,
		Content:    content,
		StopReason: types.StringPtr(b.stopReason(upstreamReason)),
		Usage: types.AnthropicUsage{
			InputTokens:          usage.Uncached(),
			OutputTokens:         usage.Output,
			CacheReadInputTokens: usage.Cached,
		},
	})
}

func parse(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, &errs.ParseError{Path: "/", Message: "upstream response is not valid JSON"}
	}
	return gjson.ParseBytes(body), nil
}

// toolInput decodes tool arguments. Strings are parsed as JSON; text that is
// not JSON is kept under "raw".
func toolInput(v gjson.Result) any {
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return map[string]any{}
	case v.IsObject(), v.IsArray():
		return v.Value()
	case v.Type == gjson.String:
		s := strings.TrimSpace(v.String())
		if s == "" {
			return map[string]any{}
		}
		if gjson.Valid(s) {
			return gjson.Parse(s).Value()
		}
		return map[string]any{"raw": s}
	}
	return map[string]any{"raw": v.Raw}
}
