package tracking

import (
	"context"
	"fmt"
	"sync"

	mlerrors "github.com/JoseManu96/ml.school/pkg/errors"
)

// RecordedRun is a snapshot of one run captured by a Recorder.
type RecordedRun struct {
	ID       string
	Name     string
	ParentID string
	Tags     map[string]string
	Params   map[string]string
	Metrics  map[string]float64
	Status   RunStatus
	Ended    bool
}

// Recorder is an in-memory Tracker. Tests use it to assert which runs,
// parameters, and metrics a pipeline produced without a live server.
type Recorder struct {
	// StartErr, when set, makes StartRun fail the way an unreachable
	// tracking server would.
	StartErr error

	mu   sync.Mutex
	next int
	runs []*RecordedRun
}

var _ Tracker = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// StartRun records a new top-level run.
func (r *Recorder) StartRun(_ context.Context, name string, tags map[string]string) (string, error) {
	if r.StartErr != nil {
		return "", mlerrors.NewRunInitError("recorder", r.StartErr)
	}
	return r.addRun(name, "", tags), nil
}

// StartNested records a run nested under parentID.
func (r *Recorder) StartNested(_ context.Context, parentID, name string) (string, error) {
	r.mu.Lock()
	known := r.lookup(parentID) != nil
	r.mu.Unlock()
	if !known {
		return "", fmt.Errorf("unknown parent run %s", parentID)
	}
	return r.addRun(name, parentID, nil), nil
}

// LogParams merges parameters into a recorded run.
func (r *Recorder) LogParams(_ context.Context, runID string, params map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.lookup(runID)
	if run == nil {
		return fmt.Errorf("unknown run %s", runID)
	}
	for key, value := range params {
		run.Params[key] = value
	}
	return nil
}

// LogMetrics merges metrics into a recorded run.
func (r *Recorder) LogMetrics(_ context.Context, runID string, metrics map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.lookup(runID)
	if run == nil {
		return fmt.Errorf("unknown run %s", runID)
	}
	for key, value := range metrics {
		run.Metrics[key] = value
	}
	return nil
}

// EndRun marks a recorded run as closed with the given status.
func (r *Recorder) EndRun(_ context.Context, runID string, status RunStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.lookup(runID)
	if run == nil {
		return fmt.Errorf("unknown run %s", runID)
	}
	run.Status = status
	run.Ended = true
	return nil
}

// Runs returns snapshots of every recorded run in creation order.
func (r *Recorder) Runs() []RecordedRun {
	r.mu.Lock()
	defer r.mu.Unlock()

	runs := make([]RecordedRun, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, snapshot(run))
	}
	return runs
}

// Run returns the recorded run with the given identifier.
func (r *Recorder) Run(runID string) (RecordedRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.lookup(runID)
	if run == nil {
		return RecordedRun{}, false
	}
	return snapshot(run), true
}

// Nested returns the runs recorded under the given parent, in creation
// order.
func (r *Recorder) Nested(parentID string) []RecordedRun {
	r.mu.Lock()
	defer r.mu.Unlock()

	var nested []RecordedRun
	for _, run := range r.runs {
		if run.ParentID == parentID {
			nested = append(nested, snapshot(run))
		}
	}
	return nested
}

func (r *Recorder) addRun(name, parentID string, tags map[string]string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	run := &RecordedRun{
		ID:       fmt.Sprintf("run-%d", r.next),
		Name:     name,
		ParentID: parentID,
		Tags:     make(map[string]string, len(tags)),
		Params:   make(map[string]string),
		Metrics:  make(map[string]float64),
	}
	for key, value := range tags {
		run.Tags[key] = value
	}
	r.runs = append(r.runs, run)
	return run.ID
}

// lookup must be called with the mutex held.
func (r *Recorder) lookup(runID string) *RecordedRun {
	for _, run := range r.runs {
		if run.ID == runID {
			return run
		}
	}
	return nil
}

func snapshot(run *RecordedRun) RecordedRun {
	copied := RecordedRun{
		ID:       run.ID,
		Name:     run.Name,
		ParentID: run.ParentID,
		Tags:     make(map[string]string, len(run.Tags)),
		Params:   make(map[string]string, len(run.Params)),
		Metrics:  make(map[string]float64, len(run.Metrics)),
		Status:   run.Status,
		Ended:    run.Ended,
	}
	for key, value := range run.Tags {
		copied.Tags[key] = value
	}
	for key, value := range run.Params {
		copied.Params[key] = value
	}
	for key, value := range run.Metrics {
		copied.Metrics[key] = value
	}
	return copied
}
