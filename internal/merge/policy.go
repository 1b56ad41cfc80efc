package merge

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Aggregate is the result of reducing per-branch scalar values at a join.
type Aggregate struct {
	Value  float64
	Spread float64
}

// Policy decides how same-named numeric artifacts collected from parallel
// branches combine at a join step. Reduce must be order-independent: the
// engine guarantees stable branch indices, not completion order.
type Policy interface {
	Name() string
	Reduce(values []float64) (Aggregate, error)
}

var errNoValues = errors.New("reduce requires at least one value")

// sortedCopy returns the values in ascending order without touching the
// caller's slice. Reducing over the sorted copy makes every policy yield
// bit-identical results for any arrival order of the same values.
func sortedCopy(values []float64) []float64 {
	ordered := make([]float64, len(values))
	copy(ordered, values)
	sort.Float64s(ordered)
	return ordered
}

// MeanStd returns the default policy: arithmetic mean and population
// standard deviation of the branch values.
func MeanStd() Policy { return meanStd{} }

type meanStd struct{}

func (meanStd) Name() string { return "mean_std" }

func (meanStd) Reduce(values []float64) (Aggregate, error) {
	if len(values) == 0 {
		return Aggregate{}, errNoValues
	}

	ordered := sortedCopy(values)
	sum := 0.0
	for _, value := range ordered {
		sum += value
	}
	mean := sum / float64(len(ordered))

	variance := 0.0
	for _, value := range ordered {
		delta := value - mean
		variance += delta * delta
	}
	variance /= float64(len(ordered))

	return Aggregate{Value: mean, Spread: math.Sqrt(variance)}, nil
}

// Median returns a policy reporting the median value and the median absolute
// deviation as spread.
func Median() Policy { return median{} }

type median struct{}

func (median) Name() string { return "median" }

func (median) Reduce(values []float64) (Aggregate, error) {
	if len(values) == 0 {
		return Aggregate{}, errNoValues
	}

	ordered := sortedCopy(values)
	center := middle(ordered)

	deviations := make([]float64, len(ordered))
	for i, value := range ordered {
		deviations[i] = math.Abs(value - center)
	}
	sort.Float64s(deviations)

	return Aggregate{Value: center, Spread: middle(deviations)}, nil
}

func middle(ordered []float64) float64 {
	n := len(ordered)
	if n%2 == 1 {
		return ordered[n/2]
	}
	return (ordered[n/2-1] + ordered[n/2]) / 2
}

// Max returns a policy reporting the best branch value and the range between
// the best and worst as spread.
func Max() Policy { return maxPolicy{} }

type maxPolicy struct{}

func (maxPolicy) Name() string { return "max" }

func (maxPolicy) Reduce(values []float64) (Aggregate, error) {
	if len(values) == 0 {
		return Aggregate{}, errNoValues
	}

	ordered := sortedCopy(values)
	lowest := ordered[0]
	highest := ordered[len(ordered)-1]

	return Aggregate{Value: highest, Spread: highest - lowest}, nil
}

// WeightedMean returns a policy averaging branch values with the supplied
// per-branch weights (index-aligned with branch order). The weighted
// population standard deviation is reported as spread.
func WeightedMean(weights []float64) Policy {
	return weightedMean{weights: weights}
}

type weightedMean struct {
	weights []float64
}

func (weightedMean) Name() string { return "weighted_mean" }

func (p weightedMean) Reduce(values []float64) (Aggregate, error) {
	if len(values) == 0 {
		return Aggregate{}, errNoValues
	}
	if len(values) != len(p.weights) {
		return Aggregate{}, fmt.Errorf("weighted mean: %d values but %d weights", len(values), len(p.weights))
	}

	total := 0.0
	for _, weight := range p.weights {
		total += weight
	}
	if total == 0 {
		return Aggregate{}, errors.New("weighted mean: weights sum to zero")
	}

	mean := 0.0
	for i, value := range values {
		mean += value * p.weights[i]
	}
	mean /= total

	variance := 0.0
	for i, value := range values {
		delta := value - mean
		variance += p.weights[i] * delta * delta
	}
	variance /= total

	return Aggregate{Value: mean, Spread: math.Sqrt(variance)}, nil
}
