package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JoseManu96/ml.school/internal/config"
	"github.com/JoseManu96/ml.school/internal/dataset"
	"github.com/JoseManu96/ml.school/internal/engine"
	"github.com/JoseManu96/ml.school/internal/model"
	"github.com/JoseManu96/ml.school/internal/registry"
	"github.com/JoseManu96/ml.school/internal/tracking"
	mlerrors "github.com/JoseManu96/ml.school/pkg/errors"
)

// clusteredRows builds a balanced dataset with well-separated species
// clusters. Two rows carry a missing measurement so a NaN travels through
// the whole pipeline.
func clusteredRows() []dataset.Penguin {
	sexes := [2]string{"MALE", "FEMALE"}
	rows := make([]dataset.Penguin, 0, 30)
	for i := 0; i < 10; i++ {
		step := float64(i)
		rows = append(rows, dataset.Penguin{
			Species:         "Adelie",
			Island:          "Torgersen",
			CulmenLengthMM:  39.0 + 0.2*step,
			CulmenDepthMM:   18.2 + 0.1*step,
			FlipperLengthMM: 185 + step,
			BodyMassG:       3700 + 25*step,
			Sex:             sexes[i%2],
		})
		rows = append(rows, dataset.Penguin{
			Species:         "Chinstrap",
			Island:          "Dream",
			CulmenLengthMM:  48.5 + 0.2*step,
			CulmenDepthMM:   18.4 + 0.1*step,
			FlipperLengthMM: 196 + step,
			BodyMassG:       3730 + 25*step,
			Sex:             sexes[i%2],
		})
		rows = append(rows, dataset.Penguin{
			Species:         "Gentoo",
			Island:          "Biscoe",
			CulmenLengthMM:  46.8 + 0.2*step,
			CulmenDepthMM:   14.1 + 0.1*step,
			FlipperLengthMM: 215 + step,
			BodyMassG:       5000 + 25*step,
			Sex:             sexes[i%2],
		})
	}
	rows[9].BodyMassG = math.NaN()
	rows[22].CulmenDepthMM = math.NaN()
	return rows
}

// uniformRows builds a dataset where every observation carries identical
// features while the species rotates. No model can separate it, so the
// averaged cross-validation accuracy is guaranteed to stay below 1.
func uniformRows() []dataset.Penguin {
	species := [3]string{"Adelie", "Chinstrap", "Gentoo"}
	rows := make([]dataset.Penguin, 0, 30)
	for i := 0; i < 30; i++ {
		rows = append(rows, dataset.Penguin{
			Species:         species[i%3],
			Island:          "Torgersen",
			CulmenLengthMM:  44.0,
			CulmenDepthMM:   17.0,
			FlipperLengthMM: 200,
			BodyMassG:       4200,
			Sex:             "MALE",
		})
	}
	return rows
}

func writePenguins(t *testing.T, rows []dataset.Penguin) string {
	t.Helper()

	var sb strings.Builder
	sb.WriteString("species,island,culmen_length_mm,culmen_depth_mm,flipper_length_mm,body_mass_g,sex\n")
	for _, row := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s\n",
			row.Species, row.Island,
			csvCell(row.CulmenLengthMM), csvCell(row.CulmenDepthMM),
			csvCell(row.FlipperLengthMM), csvCell(row.BodyMassG),
			row.Sex))
	}

	path := filepath.Join(t.TempDir(), "penguins.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func csvCell(value float64) string {
	if math.IsNaN(value) {
		return ""
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func testConfig(datasetPath string, threshold float64) *config.Config {
	return &config.Config{
		Name:        "penguins",
		TrackingURI: "http://127.0.0.1:5000",
		Dataset:     datasetPath,
		Folds:       5,
		Training: config.Training{
			Epochs:       10,
			BatchSize:    8,
			LearningRate: 0.1,
			Seed:         42,
		},
		AccuracyThreshold: threshold,
		Registry: config.Registry{
			BucketURL: "mem://",
			ModelName: "penguins",
		},
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config) (*Pipeline, *tracking.Recorder, *registry.Publisher) {
	t.Helper()

	publisher, err := registry.NewPublisher(context.Background(), cfg.Registry.BucketURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = publisher.Close() })

	recorder := tracking.NewRecorder()
	pipeline, err := New(cfg, recorder, publisher, WithSourceDir(t.TempDir()))
	require.NoError(t, err)
	return pipeline, recorder, publisher
}

func stepResult(t *testing.T, report *model.RunReport, step string) model.StepResult {
	t.Helper()

	for _, result := range report.Steps {
		if result.Step == step {
			return result
		}
	}
	t.Fatalf("no result recorded for step %s", step)
	return model.StepResult{}
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	cfg := testConfig("penguins.csv", 0.7)
	publisher, err := registry.NewPublisher(context.Background(), "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { _ = publisher.Close() })
	recorder := tracking.NewRecorder()

	_, err = New(nil, recorder, publisher)
	require.EqualError(t, err, "config is required")

	_, err = New(cfg, nil, publisher)
	require.EqualError(t, err, "tracker is required")

	_, err = New(cfg, recorder, nil)
	require.EqualError(t, err, "publisher is required")
}

func TestGraphTopology(t *testing.T) {
	t.Parallel()

	cfg := testConfig("penguins.csv", 0.7)
	pipeline, _, _ := newTestPipeline(t, cfg)

	graph, err := pipeline.Graph()
	require.NoError(t, err)

	require.Equal(t, "penguins", graph.Name())
	require.Equal(t, "start", graph.Start())
	require.Equal(t, "end", graph.End())
	require.Equal(t, 10, graph.Len())

	join, ok := graph.JoinOf("start")
	require.True(t, ok)
	require.Equal(t, "register_model", join)

	join, ok = graph.JoinOf("cross_validation")
	require.True(t, ok)
	require.Equal(t, "average_scores", join)

	trainFold, ok := graph.Lookup("train_fold")
	require.True(t, ok)
	require.Equal(t, 4096, trainFold.Resources.MemoryMB)

	trainModel, ok := graph.Lookup("train_model")
	require.True(t, ok)
	require.Equal(t, 4096, trainModel.Resources.MemoryMB)
}

func TestPipelineRegistersModel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(writePenguins(t, clusteredRows()), 0)
	pipeline, recorder, publisher := newTestPipeline(t, cfg)

	report, err := pipeline.Execute(context.Background(), engine.New(engine.Options{}))
	require.NoError(t, err)
	require.Equal(t, model.StatusSucceeded, report.Status)

	require.Equal(t, false, report.Artifact(ArtifactRegistrationSkipped))
	require.Equal(t, 1, report.Artifact(ArtifactModelVersion))
	require.Equal(t, "development", report.Artifact("mode"))
	require.Contains(t, report.Artifacts, "test_accuracy_std")
	require.Contains(t, report.Artifacts, "test_loss_std")

	latest, err := publisher.Latest(context.Background(), "penguins")
	require.NoError(t, err)
	require.Equal(t, 1, latest)

	runs := recorder.Runs()
	require.Len(t, runs, 6)

	parent := runs[0]
	require.Equal(t, report.RunID, parent.Name)
	require.Equal(t, "penguins", parent.Tags["mlflow.source.name"])
	require.True(t, parent.Ended)
	require.Equal(t, tracking.RunFinished, parent.Status)
	require.Equal(t, "10", parent.Params["epochs"])
	require.Equal(t, "8", parent.Params["batch_size"])
	for _, name := range []string{"test_accuracy", "test_accuracy_std", "test_loss", "test_loss_std"} {
		require.Contains(t, parent.Metrics, name)
	}

	nested := recorder.Nested(parent.ID)
	require.Len(t, nested, 5)
	names := make([]string, 0, len(nested))
	for _, run := range nested {
		names = append(names, run.Name)
		require.Contains(t, run.Metrics, "test_accuracy")
		require.Contains(t, run.Metrics, "test_loss")
	}
	require.ElementsMatch(t, []string{
		"cross-validation-fold-0",
		"cross-validation-fold-1",
		"cross-validation-fold-2",
		"cross-validation-fold-3",
		"cross-validation-fold-4",
	}, names)

	bundle, err := publisher.Load(context.Background(), "penguins", 1)
	require.NoError(t, err)
	require.Equal(t, "penguins", bundle.Name)
	require.Equal(t, parent.ID, bundle.RunID)
	require.Len(t, bundle.Model, 3)
	require.Equal(t, []string{"Adelie", "Chinstrap", "Gentoo"}, bundle.Target.Classes)
	require.Equal(t, []string{"Biscoe", "Dream", "Torgersen"}, bundle.Features.IslandCategories)
	require.NotEmpty(t, bundle.Signature.Inputs)

	require.Contains(t, stepResult(t, report, "register_model").Message, "registered model version 1")
}

func TestPipelineSkipsRegistrationBelowThreshold(t *testing.T) {
	t.Parallel()

	cfg := testConfig(writePenguins(t, uniformRows()), 1.0)
	pipeline, recorder, publisher := newTestPipeline(t, cfg)

	report, err := pipeline.Execute(context.Background(), engine.New(engine.Options{}))
	require.NoError(t, err)
	require.Equal(t, model.StatusSucceeded, report.Status)

	require.Equal(t, true, report.Artifact(ArtifactRegistrationSkipped))
	require.Nil(t, report.Artifact(ArtifactModelVersion))

	accuracy, ok := report.Artifact("test_accuracy").(float64)
	require.True(t, ok)
	require.Less(t, accuracy, 1.0)

	latest, err := publisher.Latest(context.Background(), "penguins")
	require.NoError(t, err)
	require.Zero(t, latest)

	message := stepResult(t, report, "register_model").Message
	require.Contains(t, message, "Skipping model registration.")
	require.Contains(t, message, "is lower than the accuracy threshold (1.00)")

	parent := recorder.Runs()[0]
	require.True(t, parent.Ended)
	require.Equal(t, tracking.RunFinished, parent.Status)
}

func TestPipelineFailsWhenTrackingUnavailable(t *testing.T) {
	t.Parallel()

	cfg := testConfig(writePenguins(t, clusteredRows()), 0)
	pipeline, recorder, publisher := newTestPipeline(t, cfg)
	recorder.StartErr = errors.New("connection refused")

	report, err := pipeline.Execute(context.Background(), engine.New(engine.Options{}))
	require.Error(t, err)

	var initErr *mlerrors.RunInitError
	require.ErrorAs(t, err, &initErr)

	require.True(t, report.Failed())
	failed := report.FailedStep()
	require.NotNil(t, failed)
	require.Equal(t, "start", failed.Step)

	require.Empty(t, recorder.Runs())
	latest, err := publisher.Latest(context.Background(), "penguins")
	require.NoError(t, err)
	require.Zero(t, latest)
}

func TestPipelineFailsWhenDatasetMissing(t *testing.T) {
	t.Parallel()

	cfg := testConfig(filepath.Join(t.TempDir(), "missing.csv"), 0)
	pipeline, recorder, _ := newTestPipeline(t, cfg)

	report, err := pipeline.Execute(context.Background(), engine.New(engine.Options{}))
	require.Error(t, err)

	var parseErr *mlerrors.ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, cfg.Dataset, parseErr.Path)

	require.True(t, report.Failed())
	require.Empty(t, recorder.Runs())
}

func TestPipelineFailsWhenPublishFails(t *testing.T) {
	t.Parallel()

	cfg := testConfig(writePenguins(t, clusteredRows()), 0)
	pipeline, recorder, publisher := newTestPipeline(t, cfg)
	require.NoError(t, publisher.Close())

	report, err := pipeline.Execute(context.Background(), engine.New(engine.Options{}))
	require.Error(t, err)

	var publishErr *mlerrors.PublishError
	require.ErrorAs(t, err, &publishErr)

	require.True(t, report.Failed())
	failed := report.FailedStep()
	require.NotNil(t, failed)
	require.Equal(t, "register_model", failed.Step)

	// The tracking run still closes, now with a failure status.
	parent := recorder.Runs()[0]
	require.True(t, parent.Ended)
	require.Equal(t, tracking.RunFailed, parent.Status)
}

func TestPipelineRunsAreReproducible(t *testing.T) {
	t.Parallel()

	path := writePenguins(t, clusteredRows())

	first := runOnce(t, path)
	second := runOnce(t, path)
	require.Len(t, first, 4)
	require.Equal(t, first, second)
}

// runOnce executes the pipeline against fresh dependencies and returns the
// metrics recorded on the parent tracking run.
func runOnce(t *testing.T, datasetPath string) map[string]float64 {
	t.Helper()

	cfg := testConfig(datasetPath, 0)
	pipeline, recorder, _ := newTestPipeline(t, cfg)

	report, err := pipeline.Execute(context.Background(), engine.New(engine.Options{}))
	require.NoError(t, err)
	require.Equal(t, model.StatusSucceeded, report.Status)

	return recorder.Runs()[0].Metrics
}
