package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JoseManu96/ml.school/internal/registry"
)

func newModelsCmd() *cobra.Command {
	var configPath string
	var bucketURL string
	var modelName string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List registered model versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := baseConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("bucket-url") {
				cfg.Registry.BucketURL = bucketURL
			}
			if cmd.Flags().Changed("model-name") {
				cfg.Registry.ModelName = modelName
			}

			publisher, err := registry.NewPublisher(cmd.Context(), cfg.Registry.BucketURL)
			if err != nil {
				return err
			}
			defer publisher.Close()

			latest, err := publisher.Latest(cmd.Context(), cfg.Registry.ModelName)
			if err != nil {
				return err
			}
			if latest == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No versions of %s registered yet.\n", cfg.Registry.ModelName)
				return nil
			}

			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "VERSION\tRUN\tCREATED")
			for version := 1; version <= latest; version++ {
				manifest, err := publisher.Manifest(cmd.Context(), cfg.Registry.ModelName, version)
				if err != nil {
					// Version numbers are never reused, so a gap is a
					// deleted version rather than a failure.
					continue
				}
				fmt.Fprintf(writer, "%d\t%s\t%s\n",
					manifest.Version, manifest.RunID, manifest.CreatedAt.Format(time.RFC3339))
			}
			return writer.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the run configuration file")
	cmd.Flags().StringVar(&bucketURL, "bucket-url", "", "Model registry bucket URL")
	cmd.Flags().StringVar(&modelName, "model-name", "", "Model to list versions of")

	return cmd
}
