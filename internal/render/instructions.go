package render

import (
	_ "embed"
	"strings"

	"github.com/n0madic/go-llmbridge/internal/audit"
)

//go:embed templates/prompt.md
var defaultPrompt string

//go:embed templates/prompt_codex.md
var codexPrompt string

// SpecialInstruction is prepended to the Codex input unless already first.
const SpecialInstruction = "EXECUTE ACCORDING TO THE FOLLOWING INSTRUCTIONS!!!"

// TemplateForModel returns the embedded identity template for a model.
func TemplateForModel(model string) string {
	if strings.Contains(model, "codex") {
		return codexPrompt
	}
	return defaultPrompt
}

func renderInstructions(model, system string, cfg Config, col *audit.Collector) string {
	template := cfg.InstructionsTemplate
	reason := "configured instructions template"
	if strings.TrimSpace(template) == "" {
		template = TemplateForModel(model)
		reason = "identity template replaces client system"
	}

	if cfg.InstructionsPolicy == InstructionsTemplateSystem && strings.TrimSpace(system) != "" {
		col.AddDefaulted(audit.Defaulted{
			Path:   "/instructions",
			Source: audit.SourceInferred,
			Reason: "identity template followed by client system text",
		})
		return strings.TrimRight(template, "\n") + "\n\n" + system
	}

	col.AddDefaulted(audit.Defaulted{Path: "/instructions", Source: audit.SourceTemplate, Reason: reason})
	return template
}
