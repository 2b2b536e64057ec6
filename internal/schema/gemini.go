package schema

import (
	"fmt"

	"github.com/n0madic/go-llmbridge/internal/audit"
)

var geminiAllowed = map[string]bool{
	"type":        true,
	"description": true,
	"properties":  true,
	"required":    true,
	"items":       true,
	"enum":        true,
	"format":      true,
	"minimum":     true,
	"maximum":     true,
	"minLength":   true,
	"maxLength":   true,
	"pattern":     true,
}

var geminiFormats = map[string]bool{
	"int8": true, "int16": true, "int32": true, "int64": true,
	"uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"float": true, "double": true, "date-time": true, "time": true, "date": true,
}

// Gemini keeps only the schema keywords Gemini function declarations accept.
// Combinators are reduced to their first branch. Every removal is recorded
// on col as a remove diff under path.
func Gemini(schema any, col *audit.Collector, path string) any {
	node, ok := schema.(map[string]any)
	if !ok {
		return schema
	}
	return geminiNode(node, col, path, 0)
}

func geminiNode(node map[string]any, col *audit.Collector, path string, depth int) map[string]any {
	if depth > MaxDepth {
		return node
	}
	out := make(map[string]any, len(node))
	for k, v := range node {
		p := audit.Join(path, k)
		switch {
		case k == "format":
			if s, ok := v.(string); ok && !geminiFormats[s] {
				removed(col, p, v)
				continue
			}
			out[k] = v
		case k == "properties":
			props, ok := v.(map[string]any)
			if !ok {
				out[k] = v
				continue
			}
			newProps := make(map[string]any, len(props))
			for name, pv := range props {
				if child, ok := pv.(map[string]any); ok {
					newProps[name] = geminiNode(child, col, audit.Join(p, name), depth+1)
				} else {
					removed(col, audit.Join(p, name), pv)
				}
			}
			out[k] = newProps
		case k == "items":
			if child, ok := v.(map[string]any); ok {
				out[k] = geminiNode(child, col, p, depth+1)
			} else {
				out[k] = v
			}
		case k == "anyOf" || k == "oneOf" || k == "allOf":
			branches, _ := v.([]any)
			if col != nil {
				col.AddDiff(audit.OpReplace, p, fmt.Sprintf("first of %d branches", len(branches)), nil)
			}
			if len(branches) > 0 {
				if first, ok := branches[0].(map[string]any); ok {
					out[k] = []any{geminiNode(first, col, audit.Join(p, 0), depth+1)}
				}
			}
		case geminiAllowed[k]:
			out[k] = v
		default:
			removed(col, p, v)
		}
	}
	return out
}

func removed(col *audit.Collector, path string, old any) {
	if col != nil {
		col.AddDiff(audit.OpRemove, path, nil, old)
	}
}
