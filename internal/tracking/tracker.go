// Package tracking records pipeline runs on an MLflow tracking server.
// Every flow run maps to one MLflow run, and each cross-validation fold
// trains under a nested run of its own.
package tracking

import "context"

// RunStatus is the terminal state reported to the tracking server.
type RunStatus string

const (
	RunFinished RunStatus = "FINISHED"
	RunFailed   RunStatus = "FAILED"
)

// Tracker is the tracking surface the pipeline steps depend on. The MLflow
// client implements it against a live server; Recorder implements it in
// memory for tests.
type Tracker interface {
	// StartRun opens a top-level run and returns its identifier.
	StartRun(ctx context.Context, name string, tags map[string]string) (string, error)

	// StartNested opens a run nested under an existing one.
	StartNested(ctx context.Context, parentID, name string) (string, error)

	// LogParams attaches immutable key-value parameters to a run.
	LogParams(ctx context.Context, runID string, params map[string]string) error

	// LogMetrics records numeric observations on a run.
	LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error

	// EndRun closes a run with the given terminal status.
	EndRun(ctx context.Context, runID string, status RunStatus) error
}
