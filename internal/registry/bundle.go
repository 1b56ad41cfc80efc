// Package registry publishes trained models to a blob-store model
// registry. A published version bundles the network weights with the
// fitted preprocessing state, a serving signature, and the runtime
// requirements, so the model can be served exactly as it was trained.
package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/JoseManu96/ml.school/internal/nn"
	"github.com/JoseManu96/ml.school/internal/preprocess"
)

// Signature describes the serving contract of a model: the fields it
// expects, the fields it produces, and the serving parameters it accepts.
// Values are MLflow-style type names.
type Signature struct {
	Inputs  map[string]string `json:"inputs"`
	Outputs map[string]string `json:"outputs"`
	Params  map[string]string `json:"params,omitempty"`
}

// InferSignature derives a signature from example input, output, and
// parameter values.
func InferSignature(input, output, params map[string]any) Signature {
	return Signature{
		Inputs:  inferTypes(input),
		Outputs: inferTypes(output),
		Params:  inferTypes(params),
	}
}

// DefaultSignature returns the serving contract of the penguins model: raw
// observation fields in, a species prediction with its confidence out.
func DefaultSignature() Signature {
	return InferSignature(
		map[string]any{
			"island":            "Biscoe",
			"culmen_length_mm":  48.6,
			"culmen_depth_mm":   16.0,
			"flipper_length_mm": 230.0,
			"body_mass_g":       5800.0,
			"sex":               "MALE",
		},
		map[string]any{
			"prediction": "Adelie",
			"confidence": 0.90,
		},
		map[string]any{
			"data_capture": false,
		},
	)
}

// Bundle is everything a model version ships with.
type Bundle struct {
	Name         string
	RunID        string
	Model        []nn.LayerWeights
	Features     preprocess.FeaturesState
	Target       preprocess.TargetState
	Signature    Signature
	Requirements []string
}

func (b *Bundle) validate() error {
	if b == nil {
		return errors.New("bundle is nil")
	}
	if b.Name == "" {
		return errors.New("bundle has no model name")
	}
	if len(b.Model) == 0 {
		return errors.New("bundle has no model weights")
	}
	if len(b.Target.Classes) == 0 {
		return errors.New("bundle has no target classes")
	}
	if len(b.Signature.Inputs) == 0 {
		return errors.New("bundle has no signature")
	}
	return nil
}

// Manifest is the metadata object stored next to a published version's
// artifacts.
type Manifest struct {
	Name         string    `json:"name"`
	Version      int       `json:"version"`
	RunID        string    `json:"run_id"`
	CreatedAt    time.Time `json:"created_at"`
	Signature    Signature `json:"signature"`
	Requirements []string  `json:"requirements,omitempty"`
}

func inferTypes(example map[string]any) map[string]string {
	if len(example) == 0 {
		return nil
	}
	types := make(map[string]string, len(example))
	for name, value := range example {
		types[name] = typeName(value)
	}
	return types
}

func typeName(value any) string {
	switch value.(type) {
	case bool:
		return "boolean"
	case int, int32, int64:
		return "long"
	case float32, float64:
		return "double"
	default:
		return "string"
	}
}

// versionKey renders the object key for one artifact of a version.
func versionKey(name string, version int, artifact string) string {
	return fmt.Sprintf("%s/versions/%d/%s", name, version, artifact)
}

// versionsPrefix is the listing prefix under which a model's versions live.
func versionsPrefix(name string) string {
	return fmt.Sprintf("%s/versions/", name)
}
