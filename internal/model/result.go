package model

import (
	"time"
)

// StepResult captures the outcome of executing a single step occurrence. A
// step inside a parallel region produces one result per branch, each carrying
// the branch path it ran on.
type StepResult struct {
	Step      string
	Branch    Path
	Status    Status
	Message   string
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Event is a step status transition streamed by the engine while a run is in
// progress. Terminal transitions carry the full result; Running and
// AwaitingJoin transitions carry only identity fields.
type Event struct {
	Result StepResult
}

// RunReport summarizes one full execution of a workflow graph.
type RunReport struct {
	RunID     string
	Flow      string
	Status    Status
	Steps     []StepResult
	Artifacts map[string]any
	Err       error
}

// Failed reports whether the run ended in failure.
func (r *RunReport) Failed() bool {
	return r != nil && r.Status == StatusFailed
}

// FailedStep returns the earliest failed step result, or nil when the run
// succeeded.
func (r *RunReport) FailedStep() *StepResult {
	if r == nil {
		return nil
	}
	for i := range r.Steps {
		if r.Steps[i].Status == StatusFailed {
			return &r.Steps[i]
		}
	}
	return nil
}

// Artifact looks up a final top-level artifact by name, returning nil when
// the run produced no such artifact.
func (r *RunReport) Artifact(name string) any {
	if r == nil {
		return nil
	}
	return r.Artifacts[name]
}
