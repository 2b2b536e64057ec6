package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

const maxLineSize = 4 << 20

// Reader reads SSE frames from an io.Reader. Frames are separated by a blank
// line; multiple data lines are joined with "\n". Comment lines and frames
// whose data is not JSON are skipped. "data: [DONE]" ends the stream.
type Reader struct {
	scanner *bufio.Scanner
	done    bool
}

// NewReader creates a new SSE reader.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256*1024), maxLineSize)
	return &Reader{scanner: scanner}
}

// Next returns the next event, or io.EOF when the stream is done.
func (r *Reader) Next() (Event, error) {
	if r.done {
		return Event{}, io.EOF
	}
	var name string
	var data []string
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if ev, ok, err := r.frame(name, data); ok || err != nil {
				return ev, err
			}
			name, data = "", nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = strings.TrimSpace(value)
		case "data":
			data = append(data, value)
		}
	}
	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	if ev, ok, err := r.frame(name, data); ok || err != nil {
		return ev, err
	}
	r.done = true
	return Event{}, io.EOF
}

func (r *Reader) frame(name string, data []string) (Event, bool, error) {
	if len(data) == 0 {
		return Event{}, false, nil
	}
	payload := strings.TrimSpace(strings.Join(data, "\n"))
	if payload == "[DONE]" {
		r.done = true
		return Event{}, false, io.EOF
	}
	if payload == "" || !gjson.Valid(payload) {
		return Event{}, false, nil
	}
	ev := Event{Type: name, Raw: json.RawMessage(payload)}
	if ev.Type == "" {
		ev.Type = gjson.Get(payload, "type").String()
	}
	return ev, true, nil
}

// ReadAll drains r into a slice of events.
func ReadAll(r io.Reader) ([]Event, error) {
	reader := NewReader(r)
	var out []Event
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}
