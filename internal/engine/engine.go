package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/JoseManu96/ml.school/internal/artifact"
	"github.com/JoseManu96/ml.school/internal/flow"
	"github.com/JoseManu96/ml.school/internal/logger"
	"github.com/JoseManu96/ml.school/internal/merge"
	"github.com/JoseManu96/ml.school/internal/model"
)

// EmptyForeachMode selects the policy applied when a foreach step produces
// zero elements.
type EmptyForeachMode int

const (
	// ProceedOnEmpty runs the matching join with an empty input set.
	ProceedOnEmpty EmptyForeachMode = iota
	// FailOnEmpty aborts the region with an EmptyForeachError.
	FailOnEmpty
)

// Interceptor wraps every step body invocation. Retry and backoff are owned
// by external execution substrates; the engine only exposes the hook.
type Interceptor func(ctx context.Context, step string, branch model.Path, invoke func(context.Context) error) error

// Options configures an Engine.
type Options struct {
	Logger       *logger.Logger
	Store        *artifact.Store
	Policy       merge.Policy
	EmptyForeach EmptyForeachMode
	OnEvent      func(model.Event)
	Interceptor  Interceptor
	// WorkerLimit caps how many step bodies run at once across all
	// branches. Zero means no limit.
	WorkerLimit int
}

// Engine executes validated flow graphs. It walks steps from the single
// start to the single end node, fans parallel regions out into goroutines,
// and holds every join until all branches of its split have succeeded.
type Engine struct {
	logger    *logger.Logger
	store     *artifact.Store
	policy    merge.Policy
	mode      EmptyForeachMode
	onEvent   func(model.Event)
	intercept Interceptor
	workers   chan struct{}
}

// New creates an Engine from Options, applying defaults for everything left
// unset: a silent logger, a fresh in-memory store, and the mean/std merge
// policy.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	store := opts.Store
	if store == nil {
		store = artifact.NewStore()
	}
	policy := opts.Policy
	if policy == nil {
		policy = merge.MeanStd()
	}

	var workers chan struct{}
	if opts.WorkerLimit > 0 {
		workers = make(chan struct{}, opts.WorkerLimit)
	}

	return &Engine{
		logger:    log,
		store:     store,
		policy:    policy,
		mode:      opts.EmptyForeach,
		onEvent:   opts.OnEvent,
		intercept: opts.Interceptor,
		workers:   workers,
	}
}

// Store returns the artifact store the engine persists into.
func (e *Engine) Store() *artifact.Store {
	return e.store
}

// runState carries the per-run pieces shared by every branch.
type runState struct {
	graph   *flow.Graph
	runID   string
	params  map[string]string
	logger  *logger.Logger
	mu      sync.Mutex
	results []model.StepResult
}

func (rs *runState) record(result model.StepResult) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.results = append(rs.results, result)
}

func (rs *runState) recorded() []model.StepResult {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]model.StepResult(nil), rs.results...)
}

// emit serializes event delivery so observers see one transition at a time
// even while branches run concurrently.
func (e *Engine) emit(rs *runState, result model.StepResult) {
	if e.onEvent == nil {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	e.onEvent(model.Event{Result: result})
}

// Run executes the graph once with the given run-scoped parameters. The
// parameters are copied at entry and immutable for the run's duration. The
// returned report always carries the step results recorded so far, also on
// failure.
func (e *Engine) Run(ctx context.Context, g *flow.Graph, params map[string]string) (*model.RunReport, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	frozen := make(map[string]string, len(params))
	for name, value := range params {
		frozen[name] = value
	}

	runID := uuid.NewString()
	rs := &runState{
		graph:  g,
		runID:  runID,
		params: frozen,
		logger: e.logger.WithRun(g.Name(), runID),
	}

	rs.logger.Info("run started")

	root := &stepContext{
		engine:    e,
		rs:        rs,
		artifacts: artifact.NewMap(),
	}

	report := &model.RunReport{RunID: runID, Flow: g.Name()}
	err := e.runSegment(ctx, rs, root, g.Start(), "")

	report.Steps = rs.recorded()
	report.Artifacts = root.artifacts.Snapshot()

	if err != nil {
		report.Status = model.StatusFailed
		report.Err = err
		rs.logger.Error(err, "run failed")
		return report, err
	}

	report.Status = model.StatusSucceeded
	rs.logger.Info("run succeeded")
	return report, nil
}
