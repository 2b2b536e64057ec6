// Package render turns a canonical request into upstream wire requests.
// Renderers never fail on a well-formed canonical request; everything they
// invent or reshape is recorded on the audit collector.
package render

import (
	"encoding/json"

	"github.com/n0madic/go-llmbridge/internal/audit"
)

// Instructions policies.
const (
	// InstructionsTemplate sends only the identity template as instructions.
	InstructionsTemplate = "template"
	// InstructionsTemplateSystem appends the client system text to the template.
	InstructionsTemplateSystem = "template+system"
)

// Schema modes for function tools.
const (
	SchemaStrict  = "strict"
	SchemaMinimal = "minimal"
)

// Config carries per-supplier renderer settings. The zero value is the
// default behaviour.
type Config struct {
	InstructionsPolicy string `yaml:"instructions_policy" json:"instructions_policy,omitempty"`
	// InstructionsTemplate replaces the embedded template when non-empty.
	InstructionsTemplate string `yaml:"instructions_template" json:"instructions_template,omitempty"`

	DisableSystemAsDeveloper  bool `yaml:"disable_system_as_developer" json:"disable_system_as_developer,omitempty"`
	DisableSpecialInstruction bool `yaml:"disable_special_instruction" json:"disable_special_instruction,omitempty"`

	ReasoningEffort  string `yaml:"reasoning_effort" json:"reasoning_effort,omitempty"`
	ReasoningSummary string `yaml:"reasoning_summary" json:"reasoning_summary,omitempty"`
	Verbosity        string `yaml:"verbosity" json:"verbosity,omitempty"`

	SchemaMode           string              `yaml:"schema_mode" json:"schema_mode,omitempty"`
	OutputOnlyProperties map[string][]string `yaml:"output_only_properties" json:"output_only_properties,omitempty"`
	ToolNameLimit        int                 `yaml:"tool_name_limit" json:"tool_name_limit,omitempty"`

	// DeriveSessionID fills a missing session id from the conversation prefix.
	DeriveSessionID bool `yaml:"derive_session_id" json:"derive_session_id,omitempty"`
}

// Merge overlays non-zero fields of o onto c.
func (c Config) Merge(o Config) Config {
	if o.InstructionsPolicy != "" {
		c.InstructionsPolicy = o.InstructionsPolicy
	}
	if o.InstructionsTemplate != "" {
		c.InstructionsTemplate = o.InstructionsTemplate
	}
	c.DisableSystemAsDeveloper = c.DisableSystemAsDeveloper || o.DisableSystemAsDeveloper
	c.DisableSpecialInstruction = c.DisableSpecialInstruction || o.DisableSpecialInstruction
	if o.ReasoningEffort != "" {
		c.ReasoningEffort = o.ReasoningEffort
	}
	if o.ReasoningSummary != "" {
		c.ReasoningSummary = o.ReasoningSummary
	}
	if o.Verbosity != "" {
		c.Verbosity = o.Verbosity
	}
	if o.SchemaMode != "" {
		c.SchemaMode = o.SchemaMode
	}
	if o.OutputOnlyProperties != nil {
		c.OutputOnlyProperties = o.OutputOnlyProperties
	}
	if o.ToolNameLimit > 0 {
		c.ToolNameLimit = o.ToolNameLimit
	}
	c.DeriveSessionID = c.DeriveSessionID || o.DeriveSessionID
	return c
}

// recordTargets adds every leaf path of the marshalled value as a target path.
func recordTargets(col *audit.Collector, v any) {
	if col == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	col.AddTargetPaths(audit.CollectLeafPaths(b)...)
}

// stringifyInput renders tool_use input as a compact JSON string, "{}" when absent.
func stringifyInput(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "{}"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "{}"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// decodeInput parses tool_use input into an object, empty when absent or not an object.
func decodeInput(raw json.RawMessage) map[string]any {
	out := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out
}
