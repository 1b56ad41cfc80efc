// Package tui renders a live view of a pipeline run. The engine streams
// step transitions into the Bubbletea loop, each graph step becomes one
// row, and steps inside parallel regions aggregate their branch
// executions into a single row with a counter.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/JoseManu96/ml.school/internal/flow"
	"github.com/JoseManu96/ml.school/internal/model"
)

// EventMsg wraps one engine step transition.
type EventMsg struct {
	Result model.StepResult
}

// RunDoneMsg reports that the run has finished and carries its report.
type RunDoneMsg struct {
	Report *model.RunReport
	Err    error
}

// occurrence is the latest observed state of one branch execution of a
// step.
type occurrence struct {
	status   model.Status
	message  string
	duration time.Duration
}

// stepRow aggregates every branch execution of one step.
type stepRow struct {
	name     string
	keys     []string
	occ      map[string]occurrence
	message  string
	duration time.Duration
}

func (r *stepRow) apply(result model.StepResult) {
	key := result.Branch.String()
	if _, seen := r.occ[key]; !seen {
		r.keys = append(r.keys, key)
	}
	r.occ[key] = occurrence{
		status:   result.Status,
		message:  result.Message,
		duration: result.Duration,
	}
	if result.Status.Terminal() {
		if result.Message != "" {
			r.message = result.Message
		}
		r.duration = result.Duration
	}
}

// status folds the branch occurrences into one display status. A failure
// anywhere dominates, then activity, then the all-succeeded state.
func (r *stepRow) status() model.Status {
	if len(r.keys) == 0 {
		return model.StatusPending
	}

	var failed, running, awaiting bool
	for _, key := range r.keys {
		switch r.occ[key].status {
		case model.StatusFailed:
			failed = true
		case model.StatusRunning:
			running = true
		case model.StatusAwaitingJoin:
			awaiting = true
		}
	}
	switch {
	case failed:
		return model.StatusFailed
	case running:
		return model.StatusRunning
	case awaiting:
		return model.StatusAwaitingJoin
	default:
		return model.StatusSucceeded
	}
}

func (r *stepRow) counts() (done, branches int) {
	for _, key := range r.keys {
		if r.occ[key].status.Terminal() {
			done++
		}
	}
	return done, len(r.keys)
}

// Model contains the Bubbletea state for one pipeline run.
type Model struct {
	flow      string
	spin      spinner.Model
	rows      map[string]*stepRow
	order     []string
	finished  bool
	cancelled bool
	report    *model.RunReport
	err       error
	cancel    func()
}

// Option customizes a Model.
type Option func(*Model)

// WithCancel wires the function invoked when the user interrupts the run.
func WithCancel(cancel func()) Option {
	return func(m *Model) {
		m.cancel = cancel
	}
}

// NewModel seeds a model with one row per graph step, in topological
// order. Steps the graph does not know about still get a row when their
// first event arrives.
func NewModel(graph *flow.Graph, opts ...Option) Model {
	m := Model{
		spin: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle)),
		rows: make(map[string]*stepRow),
	}
	if graph != nil {
		m.flow = graph.Name()
		for _, level := range graph.Levels() {
			for _, name := range level {
				m.ensureRow(name)
			}
		}
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init starts the spinner that animates running rows.
func (m Model) Init() tea.Cmd {
	return m.spin.Tick
}

// TotalSteps returns the number of step rows tracked by the model.
func (m Model) TotalSteps() int {
	return len(m.order)
}

// CompletedSteps returns the number of rows whose every observed branch
// execution reached a terminal status.
func (m Model) CompletedSteps() int {
	completed := 0
	for _, name := range m.order {
		if m.rows[name].status().Terminal() {
			completed++
		}
	}
	return completed
}

// IsFinished reports whether the run has completed.
func (m Model) IsFinished() bool {
	return m.finished
}

func (m *Model) ensureRow(name string) *stepRow {
	if row, ok := m.rows[name]; ok {
		return row
	}
	row := &stepRow{name: name, occ: make(map[string]occurrence)}
	m.rows[name] = row
	m.order = append(m.order, name)
	return row
}
