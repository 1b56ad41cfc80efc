package preprocess

import (
	"fmt"
	"sort"

	"github.com/JoseManu96/ml.school/internal/dataset"
)

// TargetState holds the species vocabulary of a fitted target transformer.
// The position of a species in Classes is its label.
type TargetState struct {
	Classes []string `json:"classes"`
}

// TargetTransformer encodes the species column as ordinal class labels.
// Classes are assigned in lexicographic order so the encoding is stable
// across runs.
type TargetTransformer struct {
	fitted  bool
	classes []string
}

// NewTargetTransformer returns an unfitted transformer.
func NewTargetTransformer() *TargetTransformer {
	return &TargetTransformer{}
}

// TargetFromState rebuilds a fitted transformer from persisted state.
func TargetFromState(state TargetState) (*TargetTransformer, error) {
	if len(state.Classes) == 0 {
		return nil, fmt.Errorf("target state has no classes")
	}
	return &TargetTransformer{
		fitted:  true,
		classes: append([]string(nil), state.Classes...),
	}, nil
}

// Fit learns the species vocabulary from the given observations.
func (t *TargetTransformer) Fit(ds *dataset.Dataset) error {
	if ds.Len() == 0 {
		return fmt.Errorf("cannot fit target transformer on an empty dataset")
	}

	seen := make(map[string]struct{})
	for _, row := range ds.Rows() {
		seen[row.Species] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for species := range seen {
		classes = append(classes, species)
	}
	sort.Strings(classes)

	t.classes = classes
	t.fitted = true
	return nil
}

// Transform converts the species column into class labels. A species that
// was not seen during fitting is an error.
func (t *TargetTransformer) Transform(ds *dataset.Dataset) ([]int, error) {
	if !t.fitted {
		return nil, fmt.Errorf("target transformer has not been fitted")
	}

	rows := ds.Rows()
	labels := make([]int, len(rows))
	for i, row := range rows {
		label := sort.SearchStrings(t.classes, row.Species)
		if label >= len(t.classes) || t.classes[label] != row.Species {
			return nil, fmt.Errorf("unknown species %q", row.Species)
		}
		labels[i] = label
	}
	return labels, nil
}

// FitTransform fits the transformer and transforms the same observations.
func (t *TargetTransformer) FitTransform(ds *dataset.Dataset) ([]int, error) {
	if err := t.Fit(ds); err != nil {
		return nil, err
	}
	return t.Transform(ds)
}

// Classes returns the species vocabulary in label order.
func (t *TargetTransformer) Classes() []string {
	return append([]string(nil), t.classes...)
}

// ClassName returns the species encoded by a label.
func (t *TargetTransformer) ClassName(label int) (string, error) {
	if label < 0 || label >= len(t.classes) {
		return "", fmt.Errorf("label %d out of range for %d classes", label, len(t.classes))
	}
	return t.classes[label], nil
}

// State exports the fitted vocabulary for persistence.
func (t *TargetTransformer) State() TargetState {
	return TargetState{Classes: append([]string(nil), t.classes...)}
}
