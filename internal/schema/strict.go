// Package schema rewrites tool parameter JSON Schemas into the subsets that
// upstream function-calling APIs accept. Every function here is pure with
// respect to its input: nodes are cloned before they are changed.
package schema

import (
	"sort"

	"github.com/n0madic/go-llmbridge/internal/audit"
)

// MaxDepth bounds recursion. Nodes nested deeper are returned as-is.
const MaxDepth = 10

// MetaOutputOnlyStripped is the audit metadata key set when output-only
// properties are removed from a tool schema.
const MetaOutputOnlyStripped = "outputOnlyPropertiesStripped"

var strippedKeywords = []string{"$schema", "format", "title", "examples", "default"}

var combinators = []string{"anyOf", "oneOf", "allOf"}

// DefaultOutputOnlyProperties lists properties some clients send back as
// tool input although the upstream treats them as model output.
var DefaultOutputOnlyProperties = map[string][]string{
	"AskUserQuestion": {"answers"},
}

// Options tunes Strict.
type Options struct {
	// ToolName selects the OutputOnlyProperties entry to apply.
	ToolName string
	// OutputOnlyProperties maps tool name to top-level properties to strip.
	// Nil means DefaultOutputOnlyProperties.
	OutputOnlyProperties map[string][]string
}

func (o Options) outputOnly() []string {
	table := o.OutputOnlyProperties
	if table == nil {
		table = DefaultOutputOnlyProperties
	}
	return table[o.ToolName]
}

// Strict returns a copy of schema rewritten for upstreams that demand strict
// function schemas: additionalProperties is false at every object level and
// required lists exactly the declared properties. Non-object input is
// returned unchanged. path is the JSON Pointer of schema in the rendered
// request and prefixes every diff recorded on col.
func Strict(schema any, opts Options, col *audit.Collector, path string) any {
	node, ok := schema.(map[string]any)
	if !ok {
		return schema
	}
	node = stripOutputOnly(node, opts, col, path)
	if _, ok := node["type"]; !ok {
		node = clone(node)
		node["type"] = "object"
	}
	return strictNode(node, col, path, 0)
}

func strictNode(node map[string]any, col *audit.Collector, path string, depth int) map[string]any {
	if depth > MaxDepth {
		return node
	}
	out := clone(node)
	for _, k := range strippedKeywords {
		delete(out, k)
	}

	props, hasProps := out["properties"].(map[string]any)
	if hasProps {
		if _, ok := out["type"]; !ok {
			out["type"] = "object"
		}
	}

	if isObjectType(out["type"]) {
		if ap, ok := out["additionalProperties"].(map[string]any); ok {
			// The nested schema is still walked so its own diffs are recorded,
			// but the result is dropped in favour of false.
			strictNode(ap, col, audit.Join(path, "additionalProperties"), depth+1)
			if col != nil {
				col.AddDiff(audit.OpReplace, audit.Join(path, "additionalProperties"), false, ap)
			}
		}
		out["additionalProperties"] = false

		if len(props) > 0 {
			newProps := make(map[string]any, len(props))
			keys := make([]string, 0, len(props))
			for k, v := range props {
				keys = append(keys, k)
				if child, ok := v.(map[string]any); ok {
					newProps[k] = strictNode(child, col, audit.Join(audit.Join(path, "properties"), k), depth+1)
				} else {
					newProps[k] = v
				}
			}
			sort.Strings(keys)
			out["properties"] = newProps
			out["required"] = toAnySlice(keys)
		} else {
			delete(out, "required")
		}
	}

	switch items := out["items"].(type) {
	case map[string]any:
		out["items"] = strictNode(items, col, audit.Join(path, "items"), depth+1)
	case []any:
		out["items"] = mapSchemas(items, audit.Join(path, "items"), func(m map[string]any, p string) any {
			return strictNode(m, col, p, depth+1)
		})
	}

	for _, k := range combinators {
		if branches, ok := out[k].([]any); ok {
			out[k] = mapSchemas(branches, audit.Join(path, k), func(m map[string]any, p string) any {
				return strictNode(m, col, p, depth+1)
			})
		}
	}
	return out
}

func stripOutputOnly(node map[string]any, opts Options, col *audit.Collector, path string) map[string]any {
	names := opts.outputOnly()
	if len(names) == 0 {
		return node
	}
	props, ok := node["properties"].(map[string]any)
	if !ok {
		return node
	}

	var stripped []string
	newProps := props
	for _, name := range names {
		v, ok := props[name]
		if !ok {
			continue
		}
		if len(stripped) == 0 {
			newProps = clone(props)
		}
		delete(newProps, name)
		stripped = append(stripped, name)
		if col != nil {
			col.AddDiff(audit.OpRemove, audit.Join(audit.Join(path, "properties"), name), nil, v)
		}
	}
	if len(stripped) == 0 {
		return node
	}

	out := clone(node)
	out["properties"] = newProps
	if req, ok := node["required"].([]any); ok {
		kept := make([]any, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok && contains(stripped, s) {
				continue
			}
			kept = append(kept, r)
		}
		out["required"] = kept
	}
	if col != nil {
		col.SetMetadata(MetaOutputOnlyStripped, stripped)
	}
	return out
}

func isObjectType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "object"
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && s == "object" {
				return true
			}
		}
	}
	return false
}

func mapSchemas(list []any, path string, fn func(map[string]any, string) any) []any {
	out := make([]any, len(list))
	for i, v := range list {
		if m, ok := v.(map[string]any); ok {
			out[i] = fn(m, audit.Join(path, i))
		} else {
			out[i] = v
		}
	}
	return out
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
