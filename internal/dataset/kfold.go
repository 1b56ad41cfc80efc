package dataset

import (
	"fmt"
	"math/rand"
)

// Fold pairs the train and test row positions for one cross-validation
// split. Both slices are sorted ascending and reference rows of the dataset
// the fold was generated for.
type Fold struct {
	Index int
	Train []int
	Test  []int
}

// KFold partitions n rows into k folds. Rows are shuffled with the seed
// before being assigned to folds, so the same seed always yields the same
// partition. When n is not divisible by k, the first n%k folds receive one
// extra test row.
//
// Every row appears in exactly one test set, and each fold's train set is
// the complement of its test set.
func KFold(n, k int, seed int64) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("cross-validation needs at least 2 folds, got %d", k)
	}
	if n < k {
		return nil, fmt.Errorf("cannot split %d rows into %d folds", n, k)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)

	// Assign each row to a fold by walking the permutation in blocks.
	foldOf := make([]int, n)
	cursor := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		for _, row := range perm[cursor : cursor+size] {
			foldOf[row] = f
		}
		cursor += size
	}

	folds := make([]Fold, k)
	for f := range folds {
		folds[f].Index = f
	}
	for row := 0; row < n; row++ {
		assigned := foldOf[row]
		for f := range folds {
			if f == assigned {
				folds[f].Test = append(folds[f].Test, row)
			} else {
				folds[f].Train = append(folds[f].Train, row)
			}
		}
	}
	return folds, nil
}
