// Package sse converts upstream event streams into Messages SSE events.
// Each transformer owns an explicit StreamState and can be driven one
// upstream event at a time or over a whole recorded stream.
package sse

import (
	"bytes"
	"encoding/json"

	"github.com/n0madic/go-llmbridge/internal/types"
)

// Client event types.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventError             = "error"
)

// Event is one client-facing event. Only the fields relevant to Type are set.
type Event struct {
	Type  string
	Index int

	Message      *types.AnthropicMessageResponse
	ContentBlock *types.AnthropicBlockStart
	Delta        *types.AnthropicContentDelta
	MessageDelta *types.AnthropicMessageDelta
	Usage        *types.AnthropicUsage
	Error        *types.AnthropicErrorBody
}

// MarshalJSON renders the wire payload for the event type.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventMessageStart:
		return json.Marshal(struct {
			Type    string                          `json:"type"`
			Message *types.AnthropicMessageResponse `json:"message"`
		}{e.Type, e.Message})
	case EventContentBlockStart:
		return json.Marshal(struct {
			Type         string                     `json:"type"`
			Index        int                        `json:"index"`
			ContentBlock *types.AnthropicBlockStart `json:"content_block"`
		}{e.Type, e.Index, e.ContentBlock})
	case EventContentBlockDelta:
		return json.Marshal(struct {
			Type  string                       `json:"type"`
			Index int                          `json:"index"`
			Delta *types.AnthropicContentDelta `json:"delta"`
		}{e.Type, e.Index, e.Delta})
	case EventContentBlockStop:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Index int    `json:"index"`
		}{e.Type, e.Index})
	case EventMessageDelta:
		return json.Marshal(struct {
			Type  string                       `json:"type"`
			Delta *types.AnthropicMessageDelta `json:"delta"`
			Usage *types.AnthropicUsage        `json:"usage"`
		}{e.Type, e.MessageDelta, e.Usage})
	case EventError:
		return json.Marshal(types.AnthropicErrorResponse{Type: EventError, Error: *e.Error})
	}
	return json.Marshal(struct {
		Type string `json:"type"`
	}{e.Type})
}

// Encode frames an event as "event: <type>\ndata: <json>\n\n".
func Encode(e Event) []byte {
	data, err := json.Marshal(e)
	if err != nil {
		data = []byte(`{"type":"error","error":{"type":"api_error","message":"event encoding failed"}}`)
	}
	var buf bytes.Buffer
	buf.Grow(len(e.Type) + len(data) + 16)
	buf.WriteString("event: ")
	buf.WriteString(e.Type)
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes()
}

// EncodeAll concatenates the frames of events.
func EncodeAll(events []Event) []byte {
	var buf bytes.Buffer
	for _, e := range events {
		buf.Write(Encode(e))
	}
	return buf.Bytes()
}

func errorEvent(msg string) Event {
	return Event{Type: EventError, Error: &types.AnthropicErrorBody{Type: "api_error", Message: msg}}
}
