package stream

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Event is one upstream SSE frame. Type is the "event:" field when present,
// else the payload's "type" member; it is empty for untyped chunks such as
// Chat Completions and Gemini.
type Event struct {
	Type string
	Raw  json.RawMessage
}

// Get reads a gjson path from the payload.
func (e Event) Get(path string) gjson.Result {
	return gjson.GetBytes(e.Raw, path)
}

// NewEvent builds an event from a JSON payload, sniffing the type member.
func NewEvent(raw string) Event {
	return Event{Type: gjson.Get(raw, "type").String(), Raw: json.RawMessage(raw)}
}
