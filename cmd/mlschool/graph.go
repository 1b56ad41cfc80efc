package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JoseManu96/ml.school/internal/registry"
	"github.com/JoseManu96/ml.school/internal/tracking"
	"github.com/JoseManu96/ml.school/internal/training"
)

func newGraphCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the pipeline topology",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := baseConfig(configPath)
			if err != nil {
				return err
			}

			// Printing the topology needs no live services.
			publisher, err := registry.NewPublisher(cmd.Context(), "mem://")
			if err != nil {
				return err
			}
			defer publisher.Close()

			pipeline, err := training.New(cfg, tracking.NewRecorder(), publisher)
			if err != nil {
				return err
			}
			graph, err := pipeline.Graph()
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), graph.Describe())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the run configuration file")

	return cmd
}
