// Package preprocess turns raw penguin observations into the numeric
// matrices the neural network consumes. The fitted state is captured in
// plain structs so a registered model can ship with its exact
// preprocessing parameters.
package preprocess

import (
	"fmt"
	"math"
	"sort"

	"github.com/JoseManu96/ml.school/internal/dataset"
)

// numericColumns is the fixed order of the measurement features in the
// output matrix. Categorical one-hot blocks follow them.
var numericColumns = []string{
	"culmen_length_mm",
	"culmen_depth_mm",
	"flipper_length_mm",
	"body_mass_g",
}

// FeaturesState holds everything needed to reproduce a fitted features
// transformer: imputation means, scaling parameters, and the category
// vocabularies discovered during fitting.
type FeaturesState struct {
	Means            []float64 `json:"means"`
	Scales           []float64 `json:"scales"`
	IslandCategories []string  `json:"island_categories"`
	SexCategories    []string  `json:"sex_categories"`
}

// FeaturesTransformer imputes missing measurements with the column mean,
// standardizes them, and one-hot encodes the island and sex columns.
type FeaturesTransformer struct {
	fitted  bool
	means   []float64
	scales  []float64
	islands []string
	sexes   []string
}

// NewFeaturesTransformer returns an unfitted transformer.
func NewFeaturesTransformer() *FeaturesTransformer {
	return &FeaturesTransformer{}
}

// FeaturesFromState rebuilds a fitted transformer from persisted state.
func FeaturesFromState(state FeaturesState) (*FeaturesTransformer, error) {
	if len(state.Means) != len(numericColumns) || len(state.Scales) != len(numericColumns) {
		return nil, fmt.Errorf("features state expects %d numeric columns, got %d means and %d scales",
			len(numericColumns), len(state.Means), len(state.Scales))
	}
	return &FeaturesTransformer{
		fitted:  true,
		means:   append([]float64(nil), state.Means...),
		scales:  append([]float64(nil), state.Scales...),
		islands: append([]string(nil), state.IslandCategories...),
		sexes:   append([]string(nil), state.SexCategories...),
	}, nil
}

// Fit learns the imputation means, scaling parameters, and category
// vocabularies from the given observations.
func (t *FeaturesTransformer) Fit(ds *dataset.Dataset) error {
	if ds.Len() == 0 {
		return fmt.Errorf("cannot fit features transformer on an empty dataset")
	}

	rows := ds.Rows()
	t.means = make([]float64, len(numericColumns))
	t.scales = make([]float64, len(numericColumns))

	for col := range numericColumns {
		values := make([]float64, 0, len(rows))
		for _, row := range rows {
			if v := numericValue(row, col); !math.IsNaN(v) {
				values = append(values, v)
			}
		}
		mean, scale := meanAndScale(values)
		t.means[col] = mean
		t.scales[col] = scale
	}

	t.islands = categories(rows, func(p dataset.Penguin) string { return p.Island })
	t.sexes = categories(rows, func(p dataset.Penguin) string { return p.Sex })
	t.fitted = true
	return nil
}

// Transform converts observations into feature rows. Missing measurements
// are imputed with the fitted means. Categories unseen during fitting
// encode as all zeros in their one-hot block.
func (t *FeaturesTransformer) Transform(ds *dataset.Dataset) ([][]float64, error) {
	if !t.fitted {
		return nil, fmt.Errorf("features transformer has not been fitted")
	}

	rows := ds.Rows()
	matrix := make([][]float64, len(rows))
	for i, row := range rows {
		features := make([]float64, 0, t.Width())
		for col := range numericColumns {
			v := numericValue(row, col)
			if math.IsNaN(v) {
				v = t.means[col]
			}
			features = append(features, (v-t.means[col])/t.scales[col])
		}
		features = append(features, oneHot(t.islands, row.Island)...)
		features = append(features, oneHot(t.sexes, row.Sex)...)
		matrix[i] = features
	}
	return matrix, nil
}

// FitTransform fits the transformer and transforms the same observations.
func (t *FeaturesTransformer) FitTransform(ds *dataset.Dataset) ([][]float64, error) {
	if err := t.Fit(ds); err != nil {
		return nil, err
	}
	return t.Transform(ds)
}

// Width returns the number of columns in the transformed matrix.
func (t *FeaturesTransformer) Width() int {
	return len(numericColumns) + len(t.islands) + len(t.sexes)
}

// State exports the fitted parameters for persistence.
func (t *FeaturesTransformer) State() FeaturesState {
	return FeaturesState{
		Means:            append([]float64(nil), t.means...),
		Scales:           append([]float64(nil), t.scales...),
		IslandCategories: append([]string(nil), t.islands...),
		SexCategories:    append([]string(nil), t.sexes...),
	}
}

func numericValue(p dataset.Penguin, col int) float64 {
	switch col {
	case 0:
		return p.CulmenLengthMM
	case 1:
		return p.CulmenDepthMM
	case 2:
		return p.FlipperLengthMM
	default:
		return p.BodyMassG
	}
}

// meanAndScale computes the mean and population standard deviation of the
// observed values. Columns with no observations impute to zero, and
// zero-variance columns scale by one so standardization stays defined.
func meanAndScale(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 1
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	scale := math.Sqrt(variance / float64(len(values)))
	if scale == 0 {
		scale = 1
	}
	return mean, scale
}

// categories returns the sorted distinct values of a categorical column.
func categories(rows []dataset.Penguin, get func(dataset.Penguin) string) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		seen[get(row)] = struct{}{}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// oneHot encodes a value against a vocabulary. Unknown values yield an
// all-zero block.
func oneHot(vocabulary []string, value string) []float64 {
	encoded := make([]float64, len(vocabulary))
	for i, candidate := range vocabulary {
		if candidate == value {
			encoded[i] = 1
			break
		}
	}
	return encoded
}
