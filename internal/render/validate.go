package render

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/n0madic/go-llmbridge/internal/audit"
	"github.com/n0madic/go-llmbridge/internal/errs"
)

// MetaCallIDSymmetryValid records whether every call has exactly one output.
const MetaCallIDSymmetryValid = "callIdSymmetryValid"

type requiredField struct {
	path string
	kind string
}

var codexRequired = []requiredField{
	{"model", "string"},
	{"instructions", "string"},
	{"input", "array"},
	{"tools", "array"},
	{"tool_choice", "string"},
	{"parallel_tool_calls", "boolean"},
	{"store", "boolean"},
	{"stream", "boolean"},
	{"include", "array"},
}

// ValidateCodex checks a rendered Responses request against the upstream
// contract: required top-level fields with their JSON types, required item
// fields and call_id symmetry between calls and outputs. req may be a struct
// or raw JSON bytes.
func ValidateCodex(req any, col *audit.Collector) []error {
	if col == nil {
		col = audit.New()
	}
	body, ok := req.([]byte)
	if !ok {
		var err error
		if body, err = json.Marshal(req); err != nil {
			return []error{&errs.ValidationError{Kind: errs.TypeTypeMismatch, Path: "", Message: err.Error()}}
		}
	}
	root := gjson.ParseBytes(body)

	var out []error
	for _, f := range codexRequired {
		v := root.Get(f.path)
		path := "/" + f.path
		if !v.Exists() || v.Type == gjson.Null {
			col.AddMissingRequiredTargetPaths(path)
			out = append(out, &errs.ValidationError{
				Kind:    errs.TypeMissingRequired,
				Path:    path,
				Message: fmt.Sprintf("missing required field (expected %s)", f.kind),
			})
			continue
		}
		if got := jsonKind(v); got != f.kind {
			out = append(out, &errs.ValidationError{
				Kind:    errs.TypeTypeMismatch,
				Path:    path,
				Message: fmt.Sprintf("expected %s, got %s", f.kind, got),
			})
		}
	}

	items := root.Get("input").Array()
	out = append(out, validateItems(items, col)...)

	symmetry := validateCallIDs(items)
	col.SetMetadata(MetaCallIDSymmetryValid, len(symmetry) == 0)
	return append(out, symmetry...)
}

func validateItems(items []gjson.Result, col *audit.Collector) []error {
	var out []error
	missing := func(path, field, msg string) {
		col.AddMissingRequiredTargetPaths(path + "/" + field)
		out = append(out, &errs.ValidationError{Kind: errs.TypeMissingRequired, Path: path, Message: msg})
	}
	for i, item := range items {
		path := fmt.Sprintf("/input/%d", i)
		switch item.Get("type").String() {
		case "function_call":
			if item.Get("name").String() == "" {
				missing(path, "name", "function_call has missing or empty name")
			}
			if item.Get("arguments").String() == "" {
				missing(path, "arguments", "function_call has missing or empty arguments")
			}
		case "function_call_output":
			if o := item.Get("output"); !o.Exists() || o.Type == gjson.Null {
				missing(path, "output", "function_call_output has missing output")
			}
		}
	}
	return out
}

type callRef struct {
	index int
	id    string
	kind  string
}

func validateCallIDs(items []gjson.Result) []error {
	var out []error
	var calls, outputs []callRef
	for i, item := range items {
		kind := item.Get("type").String()
		id := item.Get("call_id").String()
		var list *[]callRef
		switch kind {
		case "function_call", "custom_tool_call":
			list = &calls
		case "function_call_output", "custom_tool_call_output":
			list = &outputs
		default:
			continue
		}
		if id == "" {
			out = append(out, &errs.ValidationError{
				Kind:    errs.TypeMissingRequired,
				Path:    fmt.Sprintf("/input/%d", i),
				Message: kind + " has missing or empty call_id",
			})
			continue
		}
		*list = append(*list, callRef{index: i, id: id, kind: kind})
	}

	callIDs := make(map[string]bool, len(calls))
	for _, c := range calls {
		callIDs[c.id] = true
	}
	outputCount := make(map[string]int, len(outputs))
	for _, o := range outputs {
		outputCount[o.id]++
		if !callIDs[o.id] {
			out = append(out, &errs.ValidationError{
				Kind:    errs.TypeInvariantViolation,
				Path:    fmt.Sprintf("/input/%d", o.index),
				Message: fmt.Sprintf("orphan %s: no call with call_id %q", o.kind, o.id),
			})
		}
	}
	for _, c := range calls {
		if outputCount[c.id] == 0 {
			out = append(out, &errs.ValidationError{
				Kind:    errs.TypeInvariantViolation,
				Path:    fmt.Sprintf("/input/%d", c.index),
				Message: fmt.Sprintf("unmatched %s: no output for call_id %q", c.kind, c.id),
			})
		}
	}
	reported := map[string]bool{}
	for _, o := range outputs {
		if outputCount[o.id] > 1 && !reported[o.id] {
			reported[o.id] = true
			out = append(out, &errs.ValidationError{
				Kind:    errs.TypeInvariantViolation,
				Path:    "/input",
				Message: fmt.Sprintf("%d outputs for call_id %q", outputCount[o.id], o.id),
			})
		}
	}
	return out
}

func jsonKind(v gjson.Result) string {
	switch {
	case v.IsArray():
		return "array"
	case v.IsObject():
		return "object"
	case v.Type == gjson.True || v.Type == gjson.False:
		return "boolean"
	case v.Type == gjson.String:
		return "string"
	case v.Type == gjson.Number:
		return "number"
	}
	return "null"
}
