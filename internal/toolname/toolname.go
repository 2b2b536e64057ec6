// Package toolname shortens tool names for upstreams with identifier length
// limits and restores the originals on the way back.
package toolname

import (
	"strconv"
	"strings"
)

// DefaultLimit is the function name length limit of the Responses API.
const DefaultLimit = 64

const (
	mcpPrefix  = "mcp__"
	maxSuffix  = 1000
	mcpSegment = "__"
)

// Map is a bidirectional original <-> short name mapping. The zero value maps
// every name to itself.
type Map struct {
	Forward map[string]string `json:"forward,omitempty"`
	Reverse map[string]string `json:"reverse,omitempty"`
}

// Build maps every name to a unique short form of at most DefaultLimit bytes.
func Build(names []string) Map {
	return BuildWithLimit(names, DefaultLimit)
}

// BuildWithLimit is Build with an explicit length limit. Names already within
// the limit map to themselves unless that collides with an earlier short name.
func BuildWithLimit(names []string, limit int) Map {
	m := Map{
		Forward: make(map[string]string, len(names)),
		Reverse: make(map[string]string, len(names)),
	}
	used := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := m.Forward[name]; ok {
			continue
		}
		short := unique(Shorten(name, limit), used, limit)
		used[short] = true
		m.Forward[name] = short
		m.Reverse[short] = name
	}
	return m
}

// Shorten applies the length rule to a single name without uniqueness.
// mcp__server__tool names keep the mcp__ prefix and the final tool segment.
func Shorten(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	if strings.HasPrefix(name, mcpPrefix) {
		if idx := strings.LastIndex(name, mcpSegment); idx > len(mcpPrefix) {
			return truncate(mcpPrefix+name[idx+len(mcpSegment):], limit)
		}
	}
	return truncate(name, limit)
}

func unique(candidate string, used map[string]bool, limit int) string {
	if !used[candidate] {
		return candidate
	}
	var next string
	for n := 1; n <= maxSuffix; n++ {
		suffix := "_" + strconv.Itoa(n)
		allowed := limit - len(suffix)
		if allowed < 0 {
			return truncate(candidate, limit)
		}
		next = truncate(candidate, allowed) + suffix
		if !used[next] {
			return next
		}
	}
	return next
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Short returns the upstream name for an original tool name.
func (m Map) Short(name string) string {
	if s, ok := m.Forward[name]; ok {
		return s
	}
	return name
}

// Original restores the client tool name for a short upstream name.
func (m Map) Original(short string) string {
	if o, ok := m.Reverse[short]; ok {
		return o
	}
	return short
}

// Changed reports whether any name was actually rewritten.
func (m Map) Changed() bool {
	for k, v := range m.Forward {
		if k != v {
			return true
		}
	}
	return false
}
