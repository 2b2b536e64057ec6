// Package pipeline runs an ordered list of named stages over one value,
// threading a shared audit collector and timing every step.
package pipeline

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/n0madic/go-llmbridge/internal/audit"
	"github.com/n0madic/go-llmbridge/internal/errs"
)

// Result is what a stage hands back: the value for the next stage and any
// errors it found. A stage reports failure through Errors and never panics
// on purpose.
type Result struct {
	Data   any
	Errors []error
}

// Stage is one named step.
type Stage struct {
	Name string
	Run  func(input any, col *audit.Collector) Result
}

// StepResult records a single stage execution.
type StepResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
}

// Options tunes the runner.
type Options struct {
	// ContinueOnError keeps running later stages after a stage reports errors.
	ContinueOnError bool
}

// Outcome is the result of a full run.
type Outcome struct {
	Data    any
	Steps   []StepResult
	Errors  []error
	Success bool
}

// Run executes stages in order, feeding each stage the previous stage's Data.
// It stops at the first stage that reports errors unless ContinueOnError is
// set. Stage errors are normalized with errs.Wrap so they carry the stage name.
func Run(stages []Stage, input any, col *audit.Collector, opts Options) Outcome {
	if col == nil {
		col = audit.New()
	}
	out := Outcome{Data: input, Steps: make([]StepResult, 0, len(stages))}
	for _, st := range stages {
		start := time.Now()
		res := runStage(st, out.Data, col)
		step := StepResult{Name: st.Name, Duration: time.Since(start), Success: len(res.Errors) == 0}
		if !step.Success {
			for _, err := range res.Errors {
				out.Errors = append(out.Errors, errs.Wrap(st.Name, err))
			}
			step.Error = out.Errors[len(out.Errors)-len(res.Errors)].Error()
			log.Debug().
				Str("stage", st.Name).
				Int("errors", len(res.Errors)).
				Dur("duration", step.Duration).
				Msg("pipeline stage failed")
		}
		out.Steps = append(out.Steps, step)
		if res.Data != nil {
			out.Data = res.Data
		}
		if !step.Success && !opts.ContinueOnError {
			break
		}
	}
	out.Success = len(out.Errors) == 0
	return out
}

// FirstError returns the first recorded error, or nil.
func (o Outcome) FirstError() error {
	if len(o.Errors) == 0 {
		return nil
	}
	return o.Errors[0]
}

func runStage(st Stage, input any, col *audit.Collector) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("stage", st.Name).Interface("panic", r).Msg("pipeline stage panicked")
			res = Result{Errors: []error{&errs.TransformError{
				Type:    errs.TypeMapping,
				Step:    st.Name,
				Message: fmt.Sprintf("stage panicked: %v", r),
			}}}
		}
	}()
	return st.Run(input, col)
}
