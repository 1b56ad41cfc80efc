package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	mlerrors "github.com/JoseManu96/ml.school/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// Load reads a run configuration from disk, applies defaults and the
// environment fallback, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mlerrors.NewParseError(path, 0, err)
	}
	return Parse(path, data)
}

// Parse decodes and validates a configuration document. The path is only
// used for error reporting.
func Parse(path string, data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, mlerrors.NewParseError(path, extractLine(err), err)
	}

	cfg.ApplyDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills every omitted field with the default run parameters.
// The tracking endpoint falls back to MLSCHOOL_TRACKING_URI before the local
// default.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "penguins"
	}
	if c.TrackingURI == "" {
		c.TrackingURI = os.Getenv("MLSCHOOL_TRACKING_URI")
	}
	if c.TrackingURI == "" {
		c.TrackingURI = "http://127.0.0.1:5000"
	}
	if c.Dataset == "" {
		c.Dataset = "data/penguins.csv"
	}
	if c.Folds == 0 {
		c.Folds = 5
	}
	if c.Training.Epochs == 0 {
		c.Training.Epochs = 50
	}
	if c.Training.BatchSize == 0 {
		c.Training.BatchSize = 32
	}
	if c.Training.LearningRate == 0 {
		c.Training.LearningRate = 0.01
	}
	if c.Training.Seed == 0 {
		c.Training.Seed = 42
	}
	if !c.thresholdSet && c.AccuracyThreshold == 0 {
		c.AccuracyThreshold = 0.7
	}
	if c.Registry.BucketURL == "" {
		c.Registry.BucketURL = "mem://"
	}
	if c.Registry.ModelName == "" {
		c.Registry.ModelName = "penguins"
	}
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}

	return line
}
