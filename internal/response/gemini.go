package response

import (
	"github.com/tidwall/gjson"

	"github.com/n0madic/go-llmbridge/internal/stream"
)

// Gemini converts a generateContent response. A body without candidates is
// returned unchanged.
func Gemini(body []byte, opts Options) ([]byte, error) {
	root, err := parse(body)
	if err != nil {
		return nil, err
	}
	cand := root.Get("candidates.0")
	if !cand.Exists() {
		return body, nil
	}

	b := &builder{opts: opts}
	cand.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		switch {
		case part.Get("functionCall").Exists():
			call := part.Get("functionCall")
			b.toolUse(call.Get("id").String(), call.Get("name").String(), toolInput(call.Get("args")))
		case part.Get("thought").Bool():
			b.thinking(part.Get("text").String(), part.Get("thoughtSignature").String())
		default:
			b.text(part.Get("text").String())
		}
		return true
	})

	usage, _ := stream.GeminiUsage(root.Get("usageMetadata"))
	return b.encode(root.Get("responseId").String(), root.Get("modelVersion").String(), cand.Get("finishReason").String(), usage)
}
