// Package training defines the penguins training pipeline: a
// cross-validation branch and a full-dataset branch that run in parallel,
// reconverge to gate on the averaged accuracy, and register the final
// model when the gate passes.
package training

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/JoseManu96/ml.school/internal/config"
	"github.com/JoseManu96/ml.school/internal/engine"
	"github.com/JoseManu96/ml.school/internal/flow"
	"github.com/JoseManu96/ml.school/internal/logger"
	"github.com/JoseManu96/ml.school/internal/model"
	"github.com/JoseManu96/ml.school/internal/nn"
	"github.com/JoseManu96/ml.school/internal/registry"
	"github.com/JoseManu96/ml.school/internal/tracking"
)

// Artifact names steps publish for each other. The registration outcome
// names are exported so callers can read them off the run report.
const (
	artifactData       = "data"
	artifactRunID      = "mlflow_run_id"
	artifactMode       = "mode"
	artifactFolds      = "folds"
	artifactFold       = "fold"
	artifactXTrain     = "x_train"
	artifactXTest      = "x_test"
	artifactYTrain     = "y_train"
	artifactYTest      = "y_test"
	artifactClassCount = "class_count"
	artifactFoldRunID  = "mlflow_fold_run_id"
	artifactModel      = "model"

	artifactTestLoss        = "test_loss"
	artifactTestAccuracy    = "test_accuracy"
	artifactTestLossStd     = "test_loss_std"
	artifactTestAccuracyStd = "test_accuracy_std"

	artifactFeatures = "features_transformer"
	artifactTarget   = "target_transformer"
	artifactX        = "x"
	artifactY        = "y"

	// ArtifactRegistrationSkipped is true when the accuracy gate closed.
	ArtifactRegistrationSkipped = "registration.skipped"
	// ArtifactModelVersion holds the registry version assigned on publish.
	ArtifactModelVersion = "model_version"
)

// Pipeline binds the training steps to their external dependencies.
type Pipeline struct {
	cfg       *config.Config
	tracker   tracking.Tracker
	publisher *registry.Publisher
	log       *logger.Logger
	sourceDir string
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger attaches a logger to the pipeline.
func WithLogger(log *logger.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// WithSourceDir sets the directory whose git checkout identifies the run
// source. Defaults to the working directory.
func WithSourceDir(dir string) Option {
	return func(p *Pipeline) {
		p.sourceDir = dir
	}
}

// New builds a pipeline from its dependencies.
func New(cfg *config.Config, tracker tracking.Tracker, publisher *registry.Publisher, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if tracker == nil {
		return nil, errors.New("tracker is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}

	pipeline := &Pipeline{
		cfg:       cfg,
		tracker:   tracker,
		publisher: publisher,
		log:       logger.Nop(),
		sourceDir: ".",
	}
	for _, opt := range opts {
		opt(pipeline)
	}
	return pipeline, nil
}

// Graph declares the pipeline topology. The start step fans out into the
// cross-validation branch and the full-dataset branch; both reconverge at
// register_model.
func (p *Pipeline) Graph() (*flow.Graph, error) {
	builder := flow.NewBuilder(p.cfg.Name)

	builder.Step("start", flow.BodyFunc(p.start),
		flow.To("cross_validation", "transform"))

	builder.Foreach("cross_validation", flow.BodyFunc(p.crossValidation), artifactFolds,
		flow.To("transform_fold"))
	builder.Step("transform_fold", flow.BodyFunc(p.transformFold),
		flow.To("train_fold"))
	builder.Step("train_fold", flow.BodyFunc(p.trainFold),
		flow.To("evaluate_fold"),
		flow.WithResources(flow.Resources{MemoryMB: 4096}))
	builder.Step("evaluate_fold", flow.BodyFunc(p.evaluateFold),
		flow.To("average_scores"))
	builder.Join("average_scores", 1, flow.BodyFunc(p.averageScores),
		flow.To("register_model"))

	builder.Step("transform", flow.BodyFunc(p.transform),
		flow.To("train_model"))
	builder.Step("train_model", flow.BodyFunc(p.trainModel),
		flow.To("register_model"),
		flow.WithResources(flow.Resources{MemoryMB: 4096}))

	builder.Join("register_model", 2, flow.BodyFunc(p.registerModel),
		flow.To("end"))
	builder.Step("end", flow.BodyFunc(p.end))

	return builder.Build()
}

// Execute runs the pipeline once on the given engine and closes the
// tracking run with the outcome. The report is returned also on failure.
func (p *Pipeline) Execute(ctx context.Context, eng *engine.Engine) (*model.RunReport, error) {
	graph, err := p.Graph()
	if err != nil {
		return nil, err
	}

	report, runErr := eng.Run(ctx, graph, p.cfg.Params())
	p.closeTracking(ctx, report)
	return report, runErr
}

// closeTracking reports the terminal run status to the tracking server.
// Nothing to close when the start step never opened a run.
func (p *Pipeline) closeTracking(ctx context.Context, report *model.RunReport) {
	if report == nil {
		return
	}
	runID, _ := report.Artifacts[artifactRunID].(string)
	if runID == "" {
		return
	}

	status := tracking.RunFinished
	if report.Failed() {
		status = tracking.RunFailed
	}
	if err := p.tracker.EndRun(ctx, runID, status); err != nil {
		p.log.Error(err, "Failed to close the tracking run.")
	}
}

// networkConfig derives the training settings for one model. The seed is
// offset per fold so fold models do not start from identical weights.
func (p *Pipeline) networkConfig(offset int64) nn.Config {
	return nn.Config{
		Epochs:       p.cfg.Training.Epochs,
		BatchSize:    p.cfg.Training.BatchSize,
		LearningRate: p.cfg.Training.LearningRate,
		Seed:         p.cfg.Training.Seed + offset,
	}
}

// requirements pins what a serving process needs to load a bundle.
func requirements() []string {
	return []string{
		"github.com/JoseManu96/ml.school",
		runtime.Version(),
	}
}

// artifactAs reads a typed artifact from the context, failing with a
// descriptive error when it is absent or of an unexpected type.
func artifactAs[T any](rc flow.RunContext, name string) (T, error) {
	var zero T
	value, ok := rc.Get(name)
	if !ok {
		return zero, fmt.Errorf("artifact %q was not set", name)
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("artifact %q holds %T", name, value)
	}
	return typed, nil
}
