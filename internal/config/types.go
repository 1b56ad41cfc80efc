package config

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full run configuration document. Every field carries a
// default mirroring the original pipeline parameters, so an empty file is a
// valid development setup.
type Config struct {
	Name              string   `yaml:"name" validate:"required,flow_name"`
	TrackingURI       string   `yaml:"tracking_uri" validate:"required,url"`
	Dataset           string   `yaml:"dataset" validate:"required"`
	Folds             int      `yaml:"folds" validate:"min=2,max=20"`
	Training          Training `yaml:"training"`
	AccuracyThreshold float64  `yaml:"accuracy_threshold" validate:"fraction"`
	Registry          Registry `yaml:"registry"`
	Production        bool     `yaml:"production,omitempty"`

	thresholdSet bool
}

// Training holds the model fitting parameters.
type Training struct {
	Epochs       int     `yaml:"epochs" validate:"min=1,max=10000"`
	BatchSize    int     `yaml:"batch_size" validate:"min=1,max=4096"`
	LearningRate float64 `yaml:"learning_rate" validate:"gt=0,lte=1"`
	Seed         int64   `yaml:"seed,omitempty"`
}

// Registry holds the model registry destination.
type Registry struct {
	BucketURL string `yaml:"bucket_url" validate:"required,bucket_url"`
	ModelName string `yaml:"model_name" validate:"required,flow_name"`
}

// UnmarshalYAML decodes the document while remembering whether the accuracy
// threshold was present, so an explicit zero (publish unconditionally) is
// distinguishable from an omitted field.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type rawConfig Config
	var temp rawConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}
	*c = Config(temp)
	c.thresholdSet = hasYAMLKey(value, "accuracy_threshold")
	return nil
}

func hasYAMLKey(value *yaml.Node, key string) bool {
	if value == nil || value.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == key {
			return true
		}
	}
	return false
}

// Mode renders the deployment mode recorded on tracker runs.
func (c *Config) Mode() string {
	if c.Production {
		return "production"
	}
	return "development"
}

// Params renders the immutable run-scoped parameter map handed to the
// engine. Step bodies read these back by name.
func (c *Config) Params() map[string]string {
	return map[string]string{
		"flow":               c.Name,
		"tracking_uri":       c.TrackingURI,
		"dataset":            c.Dataset,
		"folds":              strconv.Itoa(c.Folds),
		"epochs":             strconv.Itoa(c.Training.Epochs),
		"batch_size":         strconv.Itoa(c.Training.BatchSize),
		"learning_rate":      fmt.Sprintf("%g", c.Training.LearningRate),
		"seed":               strconv.FormatInt(c.Training.Seed, 10),
		"accuracy_threshold": fmt.Sprintf("%g", c.AccuracyThreshold),
		"bucket_url":         c.Registry.BucketURL,
		"model_name":         c.Registry.ModelName,
		"mode":               c.Mode(),
	}
}
