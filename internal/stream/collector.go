package stream

import (
	"io"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/n0madic/go-llmbridge/internal/errs"
)

// CollectResponse reads a Responses API event stream and returns the final
// response object. When the terminal event carries an empty output array the
// items seen in response.output_item.done events are spliced in. A
// response.failed event or a stream without a terminal event is an error.
func CollectResponse(r io.Reader) ([]byte, error) {
	reader := NewReader(r)
	var items []string
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			return nil, &errs.TransformError{Type: errs.TypeSSE, Message: "upstream stream ended without response.completed"}
		}
		if err != nil {
			return nil, err
		}
		switch ev.Type {
		case "response.output_item.done":
			if item := ev.Get("item"); item.IsObject() {
				items = append(items, item.Raw)
			}
		case "response.failed", "error":
			return nil, &errs.TransformError{Type: errs.TypeSSE, Message: FailureMessage(ev)}
		case "response.completed", "response.incomplete":
			resp := ev.Get("response")
			if !resp.IsObject() {
				return nil, &errs.TransformError{Type: errs.TypeSSE, Message: ev.Type + " without response object"}
			}
			out := []byte(resp.Raw)
			if len(resp.Get("output").Array()) == 0 && len(items) > 0 {
				return sjson.SetRawBytes(out, "output", []byte("["+strings.Join(items, ",")+"]"))
			}
			return out, nil
		}
	}
}

// FailureMessage extracts the error message of a response.failed or error event.
func FailureMessage(ev Event) string {
	for _, path := range []string{"response.error.message", "error.message", "message"} {
		if v := ev.Get(path); v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
			return strings.TrimSpace(v.String())
		}
	}
	return "upstream response failed"
}
