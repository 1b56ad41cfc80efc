package training

import (
	"context"
	"fmt"
	"strconv"

	"github.com/JoseManu96/ml.school/internal/dataset"
	"github.com/JoseManu96/ml.school/internal/flow"
	"github.com/JoseManu96/ml.school/internal/logger"
	"github.com/JoseManu96/ml.school/internal/nn"
	"github.com/JoseManu96/ml.school/internal/preprocess"
	"github.com/JoseManu96/ml.school/internal/registry"
	"github.com/JoseManu96/ml.school/internal/tracking"
)

// start prepares the run: it loads and shuffles the dataset and opens the
// tracking run every later step reports into. An unreachable tracking
// server aborts the run here, before any work is done.
func (p *Pipeline) start(ctx context.Context, rc flow.RunContext) error {
	log := rc.Logger()
	log.WithFields(logger.Fields{"tracking_uri": p.cfg.TrackingURI}).Info("MLflow tracking server configured.")

	mode := p.cfg.Mode()
	log.WithFields(logger.Fields{"mode": mode}).Info("Running flow.")
	if err := rc.Set(artifactMode, mode); err != nil {
		return err
	}

	data, err := dataset.Load(p.cfg.Dataset)
	if err != nil {
		return err
	}
	data = data.Shuffle(p.cfg.Training.Seed)
	log.WithFields(logger.Fields{"rows": data.Len()}).Info("Loaded dataset.")
	if err := rc.Set(artifactData, data); err != nil {
		return err
	}

	// The tracking run is named after the flow run so the two are easy to
	// relate later.
	runID, err := p.tracker.StartRun(ctx, rc.RunID(), tracking.BaseTags(p.cfg.Name, p.sourceDir))
	if err != nil {
		return err
	}
	return rc.Set(artifactRunID, runID)
}

// crossValidation generates the fold index pairs the foreach fans out
// over.
func (p *Pipeline) crossValidation(_ context.Context, rc flow.RunContext) error {
	data, err := artifactAs[*dataset.Dataset](rc, artifactData)
	if err != nil {
		return err
	}

	folds, err := dataset.KFold(data.Len(), p.cfg.Folds, p.cfg.Training.Seed)
	if err != nil {
		return err
	}
	rc.Logger().WithFields(logger.Fields{"folds": len(folds)}).Info("Generated cross-validation folds.")
	return rc.Set(artifactFolds, folds)
}

// transformFold fits the preprocessing transformers on the fold's training
// rows and transforms both partitions.
func (p *Pipeline) transformFold(_ context.Context, rc flow.RunContext) error {
	fold, ok := rc.Input().(dataset.Fold)
	if !ok {
		return fmt.Errorf("expected a cross-validation fold, got %T", rc.Input())
	}
	rc.Logger().WithFields(logger.Fields{"fold": fold.Index}).Info("Transforming fold.")

	data, err := artifactAs[*dataset.Dataset](rc, artifactData)
	if err != nil {
		return err
	}
	train, err := data.Select(fold.Train)
	if err != nil {
		return err
	}
	test, err := data.Select(fold.Test)
	if err != nil {
		return err
	}

	features := preprocess.NewFeaturesTransformer()
	xTrain, err := features.FitTransform(train)
	if err != nil {
		return err
	}
	xTest, err := features.Transform(test)
	if err != nil {
		return err
	}

	target := preprocess.NewTargetTransformer()
	yTrain, err := target.FitTransform(train)
	if err != nil {
		return err
	}
	yTest, err := target.Transform(test)
	if err != nil {
		return err
	}

	if err := rc.Set(artifactFold, fold.Index); err != nil {
		return err
	}
	if err := rc.Set(artifactXTrain, xTrain); err != nil {
		return err
	}
	if err := rc.Set(artifactXTest, xTest); err != nil {
		return err
	}
	if err := rc.Set(artifactYTrain, yTrain); err != nil {
		return err
	}
	if err := rc.Set(artifactYTest, yTest); err != nil {
		return err
	}
	return rc.Set(artifactClassCount, len(target.Classes()))
}

// trainFold trains one fold model under a nested tracking run.
func (p *Pipeline) trainFold(ctx context.Context, rc flow.RunContext) error {
	fold, err := artifactAs[int](rc, artifactFold)
	if err != nil {
		return err
	}
	parentID, err := artifactAs[string](rc, artifactRunID)
	if err != nil {
		return err
	}

	foldRunID, err := p.tracker.StartNested(ctx, parentID, fmt.Sprintf("cross-validation-fold-%d", fold))
	if err != nil {
		return err
	}
	if err := rc.Set(artifactFoldRunID, foldRunID); err != nil {
		return err
	}

	xTrain, err := artifactAs[[][]float64](rc, artifactXTrain)
	if err != nil {
		return err
	}
	yTrain, err := artifactAs[[]int](rc, artifactYTrain)
	if err != nil {
		return err
	}
	classes, err := artifactAs[int](rc, artifactClassCount)
	if err != nil {
		return err
	}
	if len(xTrain) == 0 {
		return fmt.Errorf("fold %d has no training rows", fold)
	}

	network, err := nn.New(len(xTrain[0]), classes, p.networkConfig(int64(fold)))
	if err != nil {
		return err
	}
	history, err := network.Fit(xTrain, yTrain)
	if err != nil {
		return err
	}

	rc.Logger().WithFields(logger.Fields{
		"fold":           fold,
		"train_loss":     history.FinalLoss(),
		"train_accuracy": history.FinalAccuracy(),
	}).Info("Trained fold model.")
	return rc.Set(artifactModel, network)
}

// evaluateFold scores the fold model on the fold's test rows and records
// the metrics on the nested tracking run.
func (p *Pipeline) evaluateFold(ctx context.Context, rc flow.RunContext) error {
	fold, err := artifactAs[int](rc, artifactFold)
	if err != nil {
		return err
	}
	network, err := artifactAs[*nn.Network](rc, artifactModel)
	if err != nil {
		return err
	}
	xTest, err := artifactAs[[][]float64](rc, artifactXTest)
	if err != nil {
		return err
	}
	yTest, err := artifactAs[[]int](rc, artifactYTest)
	if err != nil {
		return err
	}

	loss, accuracy, err := network.Evaluate(xTest, yTest)
	if err != nil {
		return err
	}
	rc.Logger().WithFields(logger.Fields{
		"fold":          fold,
		"test_loss":     loss,
		"test_accuracy": accuracy,
	}).Info("Evaluated fold model.")

	if err := rc.Set(artifactTestLoss, loss); err != nil {
		return err
	}
	if err := rc.Set(artifactTestAccuracy, accuracy); err != nil {
		return err
	}

	foldRunID, err := artifactAs[string](rc, artifactFoldRunID)
	if err != nil {
		return err
	}
	return p.tracker.LogMetrics(ctx, foldRunID, map[string]float64{
		"test_loss":     loss,
		"test_accuracy": accuracy,
	})
}

// averageScores reduces the per-fold metrics into an overall score with a
// spread, and records both on the parent tracking run.
func (p *Pipeline) averageScores(ctx context.Context, rc flow.RunContext) error {
	if err := rc.MergeArtifacts(flow.Include(artifactRunID)); err != nil {
		return err
	}

	accuracies, err := rc.Collect(artifactTestAccuracy)
	if err != nil {
		return err
	}
	losses, err := rc.Collect(artifactTestLoss)
	if err != nil {
		return err
	}

	accuracy, err := rc.Policy().Reduce(accuracies)
	if err != nil {
		return err
	}
	loss, err := rc.Policy().Reduce(losses)
	if err != nil {
		return err
	}

	rc.Logger().WithFields(logger.Fields{
		"test_accuracy":     accuracy.Value,
		"test_accuracy_std": accuracy.Spread,
		"test_loss":         loss.Value,
		"test_loss_std":     loss.Spread,
	}).Info("Averaged cross-validation scores.")

	if err := rc.Set(artifactTestAccuracy, accuracy.Value); err != nil {
		return err
	}
	if err := rc.Set(artifactTestAccuracyStd, accuracy.Spread); err != nil {
		return err
	}
	if err := rc.Set(artifactTestLoss, loss.Value); err != nil {
		return err
	}
	if err := rc.Set(artifactTestLossStd, loss.Spread); err != nil {
		return err
	}

	runID, err := artifactAs[string](rc, artifactRunID)
	if err != nil {
		return err
	}
	return p.tracker.LogMetrics(ctx, runID, map[string]float64{
		"test_accuracy":     accuracy.Value,
		"test_accuracy_std": accuracy.Spread,
		"test_loss":         loss.Value,
		"test_loss_std":     loss.Spread,
	})
}

// transform fits the production transformers on the entire dataset. They
// are kept as artifacts because the registered model must preprocess raw
// observations the same way during inference.
func (p *Pipeline) transform(_ context.Context, rc flow.RunContext) error {
	data, err := artifactAs[*dataset.Dataset](rc, artifactData)
	if err != nil {
		return err
	}

	features := preprocess.NewFeaturesTransformer()
	x, err := features.FitTransform(data)
	if err != nil {
		return err
	}

	target := preprocess.NewTargetTransformer()
	y, err := target.FitTransform(data)
	if err != nil {
		return err
	}

	if err := rc.Set(artifactFeatures, features); err != nil {
		return err
	}
	if err := rc.Set(artifactTarget, target); err != nil {
		return err
	}
	if err := rc.Set(artifactX, x); err != nil {
		return err
	}
	if err := rc.Set(artifactY, y); err != nil {
		return err
	}
	return rc.Set(artifactClassCount, len(target.Classes()))
}

// trainModel trains the production model on the entire dataset and records
// the training parameters on the tracking run.
func (p *Pipeline) trainModel(ctx context.Context, rc flow.RunContext) error {
	x, err := artifactAs[[][]float64](rc, artifactX)
	if err != nil {
		return err
	}
	y, err := artifactAs[[]int](rc, artifactY)
	if err != nil {
		return err
	}
	classes, err := artifactAs[int](rc, artifactClassCount)
	if err != nil {
		return err
	}
	if len(x) == 0 {
		return fmt.Errorf("dataset has no rows to train on")
	}

	network, err := nn.New(len(x[0]), classes, p.networkConfig(0))
	if err != nil {
		return err
	}
	history, err := network.Fit(x, y)
	if err != nil {
		return err
	}

	rc.Logger().WithFields(logger.Fields{
		"train_loss":     history.FinalLoss(),
		"train_accuracy": history.FinalAccuracy(),
	}).Info("Trained final model.")

	if err := rc.Set(artifactModel, network); err != nil {
		return err
	}

	runID, err := artifactAs[string](rc, artifactRunID)
	if err != nil {
		return err
	}
	return p.tracker.LogParams(ctx, runID, map[string]string{
		"epochs":     strconv.Itoa(p.cfg.Training.Epochs),
		"batch_size": strconv.Itoa(p.cfg.Training.BatchSize),
	})
}

// registerModel publishes the production model when the averaged accuracy
// clears the threshold. A closed gate skips registration and the run still
// succeeds; a rejected publish while the gate is open fails the run.
func (p *Pipeline) registerModel(ctx context.Context, rc flow.RunContext) error {
	if err := rc.MergeArtifacts(); err != nil {
		return err
	}

	accuracy, err := artifactAs[float64](rc, artifactTestAccuracy)
	if err != nil {
		return err
	}

	if accuracy < p.cfg.AccuracyThreshold {
		message := fmt.Sprintf(
			"The accuracy of the model (%.2f) is lower than the accuracy threshold (%.2f). Skipping model registration.",
			accuracy, p.cfg.AccuracyThreshold)
		rc.Logger().Info(message)
		rc.Note(message)
		return rc.Set(ArtifactRegistrationSkipped, true)
	}

	network, err := artifactAs[*nn.Network](rc, artifactModel)
	if err != nil {
		return err
	}
	features, err := artifactAs[*preprocess.FeaturesTransformer](rc, artifactFeatures)
	if err != nil {
		return err
	}
	target, err := artifactAs[*preprocess.TargetTransformer](rc, artifactTarget)
	if err != nil {
		return err
	}
	runID, err := artifactAs[string](rc, artifactRunID)
	if err != nil {
		return err
	}

	bundle := &registry.Bundle{
		Name:         p.cfg.Registry.ModelName,
		RunID:        runID,
		Model:        network.Weights(),
		Features:     features.State(),
		Target:       target.State(),
		Signature:    registry.DefaultSignature(),
		Requirements: requirements(),
	}

	version, err := p.publisher.Publish(ctx, bundle)
	if err != nil {
		return err
	}

	rc.Logger().WithFields(logger.Fields{
		"model":   bundle.Name,
		"version": version,
	}).Info("Registered model.")
	rc.Note(fmt.Sprintf("registered model version %d", version))

	if err := rc.Set(ArtifactRegistrationSkipped, false); err != nil {
		return err
	}
	return rc.Set(ArtifactModelVersion, version)
}

// end closes the pipeline.
func (p *Pipeline) end(_ context.Context, rc flow.RunContext) error {
	rc.Logger().Info("The pipeline finished successfully.")
	return nil
}
