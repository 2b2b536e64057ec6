package response

import (
	"encoding/json"

	"github.com/openai/openai-go/v3/responses"
	"github.com/tidwall/gjson"

	"github.com/n0madic/go-llmbridge/internal/errs"
	"github.com/n0madic/go-llmbridge/internal/stream"
)

// Codex converts a Responses API response object. A body without output is
// returned unchanged.
func Codex(body []byte, opts Options) ([]byte, error) {
	root, err := parse(body)
	if err != nil {
		return nil, err
	}
	// Some upstreams wrap the object as {"response": {...}}.
	if !root.Get("output").Exists() && root.Get("response.output").Exists() {
		root = root.Get("response")
	}
	if !root.Get("output").IsArray() {
		return body, nil
	}

	var resp responses.Response
	if err := json.Unmarshal([]byte(root.Raw), &resp); err != nil {
		return nil, &errs.ParseError{Path: "/output", Message: "decode responses object: " + err.Error()}
	}

	b := &builder{opts: opts}
	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			for _, part := range item.AsMessage().Content {
				switch part.Type {
				case "output_text", "text":
					b.text(part.Text)
				case "refusal":
					b.text(part.Refusal)
				}
			}
		case "reasoning":
			r := item.AsReasoning()
			var sb []byte
			for _, s := range r.Summary {
				sb = append(sb, s.Text...)
			}
			for _, c := range r.Content {
				sb = append(sb, c.Text...)
			}
			b.thinking(string(sb), r.EncryptedContent)
		case "function_call":
			fc := item.AsFunctionCall()
			args := toolInput(gjson.Get(item.RawJSON(), "arguments"))
			b.toolUse(first(fc.CallID, fc.ID), fc.Name, args)
		case "custom_tool_call":
			ct := item.AsCustomToolCall()
			b.toolUse(first(ct.CallID, ct.ID), ct.Name, map[string]any{"input": ct.Input})
		}
	}

	reason := ""
	if string(resp.Status) == "incomplete" {
		reason = string(resp.IncompleteDetails.Reason)
	}
	var usage stream.Usage
	if root.Get("usage").IsObject() {
		usage = stream.Usage{
			Input:     int(resp.Usage.InputTokens),
			Output:    int(resp.Usage.OutputTokens),
			Cached:    int(resp.Usage.InputTokensDetails.CachedTokens),
			Reasoning: int(resp.Usage.OutputTokensDetails.ReasoningTokens),
		}
	}
	return b.encode(resp.ID, string(resp.Model), reason, usage)
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
