package engine

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/JoseManu96/ml.school/internal/flow"
	"github.com/JoseManu96/ml.school/internal/model"
	mlerrors "github.com/JoseManu96/ml.school/pkg/errors"
)

type branchSeed struct {
	entry string
	input any
}

// runRegion executes one parallel region whole: the split body, the branch
// fan-out, the all-succeed barrier, and the matching join. It returns the
// join's successor so the enclosing segment can continue past the region.
func (e *Engine) runRegion(ctx context.Context, rs *runState, sc *stepContext, split *flow.Step) (string, error) {
	if err := e.runStep(ctx, rs, sc, split); err != nil {
		return "", err
	}

	joinName, ok := rs.graph.JoinOf(split.Name)
	if !ok {
		return "", fmt.Errorf("step %q: no join recorded for split", split.Name)
	}
	joinStep, ok := rs.graph.Lookup(joinName)
	if !ok {
		return "", fmt.Errorf("join %q not found in graph", joinName)
	}

	seeds, err := e.branchSeeds(sc, split)
	if err != nil {
		return "", err
	}

	log := rs.logger.WithStep(split.Name, sc.path.String())
	if len(seeds) == 0 {
		if e.mode == FailOnEmpty {
			return "", mlerrors.NewEmptyForeachError(split.Name)
		}
		log.Warn("foreach produced no elements, join runs with an empty input set")
	} else {
		log.Debug(fmt.Sprintf("spawning %d branches", len(seeds)))
	}

	e.emit(rs, model.StepResult{Step: joinName, Branch: sc.path, Status: model.StatusAwaitingJoin})

	// Branch indices follow spawn order and stay stable, so join bodies can
	// rely on positional correspondence. A failing branch does not cancel
	// its siblings; they run to completion but the join never consumes a
	// failed region.
	branches := make([]*stepContext, len(seeds))
	errs := make([]error, len(seeds))

	var wg sync.WaitGroup
	for i, seed := range seeds {
		branch := &stepContext{
			engine:    e,
			rs:        rs,
			path:      sc.path.Child(split.Name, i),
			artifacts: sc.artifacts.Clone(),
			input:     seed.input,
		}
		branches[i] = branch

		wg.Add(1)
		go func(index int, branch *stepContext, entry string) {
			defer wg.Done()
			errs[index] = e.runSegment(ctx, rs, branch, entry, joinName)
		}(i, branch, seed.entry)
	}
	wg.Wait()

	// Surface failures by ascending branch index so reruns of the same
	// graph fail deterministically.
	for _, branchErr := range errs {
		if branchErr != nil {
			return "", branchErr
		}
	}

	sc.inputs = branches
	sc.isJoin = true
	err = e.runStep(ctx, rs, sc, joinStep)
	sc.inputs = nil
	sc.isJoin = false
	if err != nil {
		return "", err
	}

	return firstSuccessor(joinStep), nil
}

// branchSeeds computes the branch entry points of a region. Static splits
// take one branch per declared successor; foreach splits read the items
// artifact their body produced and take one branch per element.
func (e *Engine) branchSeeds(sc *stepContext, split *flow.Step) ([]branchSeed, error) {
	if split.Kind == flow.Split {
		seeds := make([]branchSeed, len(split.Next))
		for i, next := range split.Next {
			seeds[i] = branchSeed{entry: next}
		}
		return seeds, nil
	}

	items, ok := sc.artifacts.Get(split.ItemsKey)
	if !ok {
		return nil, mlerrors.NewStepError(split.Name, sc.path.String(), fmt.Errorf("foreach artifact %q was not set", split.ItemsKey))
	}

	value := reflect.ValueOf(items)
	if value.Kind() != reflect.Slice && value.Kind() != reflect.Array {
		return nil, mlerrors.NewStepError(split.Name, sc.path.String(), fmt.Errorf("foreach artifact %q is %T, not a slice", split.ItemsKey, items))
	}

	entry := split.Next[0]
	seeds := make([]branchSeed, value.Len())
	for i := range seeds {
		seeds[i] = branchSeed{entry: entry, input: value.Index(i).Interface()}
	}
	return seeds, nil
}
