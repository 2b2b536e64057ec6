package stream

import "github.com/tidwall/gjson"

// Usage is upstream token accounting normalized across protocols.
// Input includes cached tokens.
type Usage struct {
	Input     int
	Output    int
	Cached    int
	Reasoning int
}

// ResponsesUsage reads a Responses API usage object
// (input_tokens, output_tokens, input_tokens_details.cached_tokens,
// output_tokens_details.reasoning_tokens). ok is false when absent.
func ResponsesUsage(u gjson.Result) (Usage, bool) {
	if !u.IsObject() {
		return Usage{}, false
	}
	return Usage{
		Input:     int(u.Get("input_tokens").Int()),
		Output:    int(u.Get("output_tokens").Int()),
		Cached:    int(u.Get("input_tokens_details.cached_tokens").Int()),
		Reasoning: int(u.Get("output_tokens_details.reasoning_tokens").Int()),
	}, true
}

// ChatUsage reads a Chat Completions usage object.
func ChatUsage(u gjson.Result) (Usage, bool) {
	if !u.IsObject() {
		return Usage{}, false
	}
	return Usage{
		Input:     int(u.Get("prompt_tokens").Int()),
		Output:    int(u.Get("completion_tokens").Int()),
		Cached:    int(u.Get("prompt_tokens_details.cached_tokens").Int()),
		Reasoning: int(u.Get("completion_tokens_details.reasoning_tokens").Int()),
	}, true
}

// GeminiUsage reads a Gemini usageMetadata object. Thought tokens count as output.
func GeminiUsage(u gjson.Result) (Usage, bool) {
	if !u.IsObject() {
		return Usage{}, false
	}
	thoughts := int(u.Get("thoughtsTokenCount").Int())
	return Usage{
		Input:     int(u.Get("promptTokenCount").Int()),
		Output:    int(u.Get("candidatesTokenCount").Int()) + thoughts,
		Cached:    int(u.Get("cachedContentTokenCount").Int()),
		Reasoning: thoughts,
	}, true
}

// Uncached returns input tokens minus cached tokens, never negative.
func (u Usage) Uncached() int {
	if u.Cached > u.Input {
		return 0
	}
	return u.Input - u.Cached
}
