package schema

// Minimal is the lenient rewrite used when the upstream accepts non-strict
// schemas: it drops $schema, defaults type to object and guarantees that
// properties is an object. Nested nodes are left alone.
func Minimal(schema any) any {
	node, ok := schema.(map[string]any)
	if !ok {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	out := clone(node)
	delete(out, "$schema")
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	if _, ok := out["properties"].(map[string]any); !ok {
		out["properties"] = map[string]any{}
	}
	return out
}
