package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/n0madic/go-llmbridge/internal/stream"
	"github.com/n0madic/go-llmbridge/internal/types"
)

func events(payloads ...string) []stream.Event {
	out := make([]stream.Event, len(payloads))
	for i, p := range payloads {
		out[i] = stream.NewEvent(p)
	}
	return out
}

func eventTypes(evs []Event) []string {
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

func findType(evs []Event, typ string) []Event {
	var out []Event
	for _, e := range evs {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func intPtr(n int) *int { return &n }

func TestEncode(t *testing.T) {
	assert.Equal(t,
		"event: content_block_stop\ndata: {\"type\":\"content_block_stop\",\"index\":2}\n\n",
		string(Encode(Event{Type: EventContentBlockStop, Index: 2})))

	text := ""
	frame := string(Encode(Event{Type: EventContentBlockStart, Index: 0, ContentBlock: &types.AnthropicBlockStart{Type: "text", Text: &text}}))
	assert.Equal(t, "event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n", frame)

	frame = string(Encode(errorEvent("boom")))
	assert.Equal(t, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"api_error\",\"message\":\"boom\"}}\n\n", frame)

	frame = string(Encode(Event{Type: EventMessageStart, Message: &types.AnthropicMessageResponse{ID: "m", Type: "message", Role: "assistant", Content: []types.AnthropicContentOut{}}}))
	assert.Contains(t, frame, `"stop_reason":null`)
	assert.Contains(t, frame, `"usage":{"input_tokens":0,"output_tokens":0,"cache_read_input_tokens":0,"cache_creation_input_tokens":0}`)
}

func TestTransformWithoutEventsEmitsNothing(t *testing.T) {
	res := Transform(NewCodex(Options{}), nil)
	assert.True(t, res.StreamEnd)
	assert.Empty(t, res.Events)
}
