package stream

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// MaxToolArgBufSize is the upper bound (in bytes) for buffered function-call
// argument deltas per tool call.
const MaxToolArgBufSize = 1 << 20 // 1 MB

// ToolBuffer tracks the argument text already forwarded for each tool call,
// keyed by upstream item id, so that a final "arguments done" payload only
// contributes what the deltas did not.
type ToolBuffer struct {
	sent map[string]*strings.Builder
}

// NewToolBuffer creates a new empty ToolBuffer.
func NewToolBuffer() *ToolBuffer {
	return &ToolBuffer{sent: map[string]*strings.Builder{}}
}

// Append records a forwarded delta. It returns false when the buffer for id
// would exceed MaxToolArgBufSize; the delta should then be dropped.
func (tb *ToolBuffer) Append(id, delta string) bool {
	b := tb.sent[id]
	if b == nil {
		b = &strings.Builder{}
		tb.sent[id] = b
	}
	if b.Len()+len(delta) > MaxToolArgBufSize {
		log.Warn().Str("item_id", id).Int("buf_len", b.Len()).Int("delta_len", len(delta)).
			Msg("tool argument buffer limit exceeded, dropping delta")
		return false
	}
	b.WriteString(delta)
	return true
}

// Remainder returns the suffix of full that has not been forwarded yet, or ""
// when the forwarded text already covers it or diverges from it.
func (tb *ToolBuffer) Remainder(id, full string) string {
	sent := tb.Sent(id)
	if !strings.HasPrefix(full, sent) {
		return ""
	}
	return full[len(sent):]
}

// Sent returns the forwarded text for id.
func (tb *ToolBuffer) Sent(id string) string {
	if b := tb.sent[id]; b != nil {
		return b.String()
	}
	return ""
}

// IsEmptyToolArgs reports whether an argument string carries no arguments.
func IsEmptyToolArgs(args string) bool {
	trimmed := strings.TrimSpace(args)
	return trimmed == "" || trimmed == "{}" || trimmed == "null"
}
