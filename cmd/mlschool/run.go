package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/JoseManu96/ml.school/internal/config"
	"github.com/JoseManu96/ml.school/internal/engine"
	"github.com/JoseManu96/ml.school/internal/logger"
	"github.com/JoseManu96/ml.school/internal/model"
	"github.com/JoseManu96/ml.school/internal/registry"
	"github.com/JoseManu96/ml.school/internal/tracking"
	"github.com/JoseManu96/ml.school/internal/training"
	"github.com/JoseManu96/ml.school/internal/tui"
)

type runOptions struct {
	ConfigPath   string
	Dataset      string
	TrackingURI  string
	BucketURL    string
	ModelName    string
	Folds        int
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         int64
	Threshold    float64
	Parallel     int
	Production   bool
	Verbose      bool
	Plain        bool
}

var runCmdRunner = runTraining

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Train, evaluate and register the penguins model",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Verbose = root.verbose
			opts.Plain = root.plain || !term.IsTerminal(int(os.Stdout.Fd()))

			cfg, err := loadRunConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runCmdRunner(cmd, opts, cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to the run configuration file")
	cmd.Flags().StringVar(&opts.Dataset, "dataset", "", "Path to the penguins CSV file")
	cmd.Flags().StringVar(&opts.TrackingURI, "tracking-uri", "", "MLflow tracking server URL")
	cmd.Flags().StringVar(&opts.BucketURL, "bucket-url", "", "Model registry bucket URL")
	cmd.Flags().StringVar(&opts.ModelName, "model-name", "", "Name to register the model under")
	cmd.Flags().IntVar(&opts.Folds, "folds", 0, "Number of cross-validation folds")
	cmd.Flags().IntVar(&opts.Epochs, "epochs", 0, "Training epochs")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "Training batch size")
	cmd.Flags().Float64Var(&opts.LearningRate, "learning-rate", 0, "Training learning rate")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "Seed for every random decision of the run")
	cmd.Flags().Float64Var(&opts.Threshold, "accuracy-threshold", 0, "Minimum accuracy required to register the model")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 0, "Maximum steps running at once (0 means unlimited)")
	cmd.Flags().BoolVar(&opts.Production, "production", false, "Record tracker runs in production mode")

	return cmd
}

// loadRunConfig resolves the effective configuration: the file (or the
// defaults) with explicitly set flags layered on top, revalidated as a
// whole.
func loadRunConfig(cmd *cobra.Command, opts runOptions) (*config.Config, error) {
	cfg, err := baseConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("dataset") {
		cfg.Dataset = opts.Dataset
	}
	if flags.Changed("tracking-uri") {
		cfg.TrackingURI = opts.TrackingURI
	}
	if flags.Changed("bucket-url") {
		cfg.Registry.BucketURL = opts.BucketURL
	}
	if flags.Changed("model-name") {
		cfg.Registry.ModelName = opts.ModelName
	}
	if flags.Changed("folds") {
		cfg.Folds = opts.Folds
	}
	if flags.Changed("epochs") {
		cfg.Training.Epochs = opts.Epochs
	}
	if flags.Changed("batch-size") {
		cfg.Training.BatchSize = opts.BatchSize
	}
	if flags.Changed("learning-rate") {
		cfg.Training.LearningRate = opts.LearningRate
	}
	if flags.Changed("seed") {
		cfg.Training.Seed = opts.Seed
	}
	if flags.Changed("accuracy-threshold") {
		cfg.AccuracyThreshold = opts.Threshold
	}
	if flags.Changed("production") {
		cfg.Production = opts.Production
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runTraining(cmd *cobra.Command, opts runOptions, cfg *config.Config) error {
	level := "info"
	if opts.Verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, HumanReadable: true, Writer: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}

	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	publisher, err := registry.NewPublisher(ctx, cfg.Registry.BucketURL, registry.WithPublisherLogger(log))
	if err != nil {
		return err
	}
	defer publisher.Close()

	tracker := tracking.NewClient(cfg.TrackingURI, cfg.Name, tracking.WithLogger(log))

	pipeline, err := training.New(cfg, tracker, publisher, training.WithLogger(log))
	if err != nil {
		return err
	}
	graph, err := pipeline.Graph()
	if err != nil {
		return err
	}

	interactive := !opts.Plain
	state := tui.NewModel(graph, tui.WithCancel(cancel))

	var program *tea.Program
	var programErr error
	done := make(chan struct{})

	engineOpts := engine.Options{Logger: log, WorkerLimit: opts.Parallel}
	if interactive {
		program = tea.NewProgram(state)
		go func() {
			_, programErr = program.Run()
			close(done)
		}()
		engineOpts.OnEvent = func(event model.Event) {
			program.Send(tui.EventMsg{Result: event.Result})
		}
	}

	report, runErr := pipeline.Execute(ctx, engine.New(engineOpts))

	if interactive {
		program.Send(tui.RunDoneMsg{Report: report, Err: runErr})
		<-done
		if programErr != nil && runErr == nil {
			return programErr
		}
	} else {
		// Without a live program, replay the recorded results so the final
		// frame shows the same view the interactive run would have ended on.
		if report != nil {
			for _, result := range report.Steps {
				state = applyMessage(state, tui.EventMsg{Result: result})
			}
		}
		state = applyMessage(state, tui.RunDoneMsg{Report: report, Err: runErr})
		fmt.Fprintln(cmd.OutOrStdout(), state.View())
	}

	return runErr
}

// applyMessage advances the model outside a running Bubbletea program.
func applyMessage(state tui.Model, msg tea.Msg) tui.Model {
	updated, _ := state.Update(msg)
	if m, ok := updated.(tui.Model); ok {
		return m
	}
	return state
}
