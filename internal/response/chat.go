package response

import (
	"github.com/tidwall/gjson"

	"github.com/n0madic/go-llmbridge/internal/stream"
)

// Chat converts a Chat Completions response. A body without choices is
// returned unchanged.
func Chat(body []byte, opts Options) ([]byte, error) {
	root, err := parse(body)
	if err != nil {
		return nil, err
	}
	choice := root.Get("choices.0")
	if !choice.Exists() {
		return body, nil
	}
	msg := choice.Get("message")

	b := &builder{opts: opts}
	b.thinking(first(msg.Get("reasoning_content").String(), msg.Get("reasoning").String()), "")
	if content := msg.Get("content"); content.IsArray() {
		content.ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "text" {
				b.text(part.Get("text").String())
			}
			return true
		})
	} else {
		b.text(content.String())
	}
	b.text(msg.Get("refusal").String())
	msg.Get("tool_calls").ForEach(func(_, call gjson.Result) bool {
		b.toolUse(call.Get("id").String(), call.Get("function.name").String(), toolInput(call.Get("function.arguments")))
		return true
	})

	usage, _ := stream.ChatUsage(root.Get("usage"))
	return b.encode(root.Get("id").String(), root.Get("model").String(), choice.Get("finish_reason").String(), usage)
}
