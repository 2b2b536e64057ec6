// Package reasoning decides the Responses API reasoning parameter from
// configuration, the model name and the client's extended thinking request.
package reasoning

import (
	"strings"

	"github.com/n0madic/go-llmbridge/internal/types"
)

// DefaultEffort is used when nothing else selects an effort.
const DefaultEffort = "medium"

var validEfforts = map[string]bool{"minimal": true, "low": true, "medium": true, "high": true, "xhigh": true}

var validSummaries = map[string]bool{"auto": true, "concise": true, "detailed": true, "none": true}

// BuildReasoningParam normalizes effort and summary, replacing unknown values
// with medium and auto.
func BuildReasoningParam(effort, summary string) *types.ReasoningParam {
	effort = strings.ToLower(strings.TrimSpace(effort))
	summary = strings.ToLower(strings.TrimSpace(summary))
	if !validEfforts[effort] {
		effort = DefaultEffort
	}
	if !validSummaries[summary] {
		summary = "auto"
	}
	r := &types.ReasoningParam{Effort: effort}
	// Omitting summary is how the upstream disables it; "none" is rejected.
	if summary != "none" {
		r.Summary = summary
	}
	return r
}

// UsesThinkingLevels reports whether the model family maps thinking budgets
// onto effort levels.
func UsesThinkingLevels(model string) bool {
	return strings.Contains(model, "o1") || strings.Contains(model, "o3")
}

// EffortFromBudget maps a thinking budget to an effort. ok is false for
// models that do not use thinking levels.
func EffortFromBudget(model string, budget int) (effort string, ok bool) {
	if !UsesThinkingLevels(model) {
		return "", false
	}
	switch {
	case budget >= 20000:
		return "high", true
	case budget >= 5000:
		return "medium", true
	default:
		return "low", true
	}
}

// EffortFromThinking picks the effort for a request. A disabled thinking
// block counts as a zero budget. fallback is returned when the thinking
// block is absent or does not apply to the model.
func EffortFromThinking(model string, thinking *types.ThinkingConfig, fallback string) string {
	if fallback == "" {
		fallback = DefaultEffort
	}
	if thinking == nil {
		return fallback
	}
	budget := thinking.BudgetTokens
	switch thinking.Type {
	case "disabled":
		budget = 0
	case "enabled":
	default:
		return fallback
	}
	if e, ok := EffortFromBudget(model, budget); ok {
		return e
	}
	return fallback
}

// ExtractFromModelName infers an effort suffix from a model name such as
// "gpt-5-high", "gpt-5_low" or "gpt-5:minimal". Returns "" when none matches.
func ExtractFromModelName(model string) string {
	s := strings.ToLower(strings.TrimSpace(model))
	if s == "" {
		return ""
	}
	efforts := []string{"minimal", "low", "medium", "xhigh", "high"}
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		maybe := strings.TrimSpace(s[idx+1:])
		if validEfforts[maybe] {
			return maybe
		}
	}
	for _, sep := range []string{"-", "_"} {
		for _, e := range efforts {
			if strings.HasSuffix(s, sep+e) {
				return e
			}
		}
	}
	return ""
}
