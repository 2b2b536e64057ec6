package engine

import (
	"time"

	"github.com/n0madic/go-llmbridge/internal/audit"
	"github.com/n0madic/go-llmbridge/internal/pipeline"
)

// Chain types recorded in a trace.
const (
	ChainTypeDefault       = "default"
	ChainTypeModelOverride = "model-override"
	ChainTypePassthrough   = "passthrough"
)

// Trace is the diagnostic record of one transformation.
type Trace struct {
	ID           string                `json:"id"`
	Timestamp    time.Time             `json:"timestamp"`
	Supplier     string                `json:"supplier"`
	Model        string                `json:"model,omitempty"`
	Chain        string                `json:"chain,omitempty"`
	ChainType    string                `json:"chainType"`
	ChainSteps   []string              `json:"chainSteps,omitempty"`
	ProtocolPair string                `json:"protocolPair,omitempty"`
	Steps        []pipeline.StepResult `json:"steps"`
	Audit        audit.FieldAudit      `json:"audit"`
	Success      bool                  `json:"success"`
	Errors       []string              `json:"errors,omitempty"`
	Warnings     []string              `json:"warnings,omitempty"`
	Duration     time.Duration         `json:"duration"`
}

func (t *Trace) fail(err error) {
	t.Success = false
	t.Errors = append(t.Errors, err.Error())
}
