package main

import (
	"github.com/spf13/cobra"

	"github.com/JoseManu96/ml.school/internal/config"
)

type rootFlags struct {
	verbose bool
	plain   bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "mlschool",
		Short:         "mlschool trains, evaluates and registers the penguins species model",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().BoolVar(&flags.plain, "plain", false, "Disable the interactive progress view")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newGraphCmd())
	cmd.AddCommand(newModelsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// baseConfig loads the configuration file when one is given and falls back
// to the built-in defaults otherwise.
func baseConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return cfg, nil
}
