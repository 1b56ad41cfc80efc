package engine

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/JoseManu96/ml.school/internal/artifact"
	"github.com/JoseManu96/ml.school/internal/flow"
	"github.com/JoseManu96/ml.school/internal/logger"
	"github.com/JoseManu96/ml.school/internal/merge"
	"github.com/JoseManu96/ml.school/internal/model"
	mlerrors "github.com/JoseManu96/ml.school/pkg/errors"
)

// stepContext is the engine's run context: one exists per sequential
// segment, one per spawned branch. Step bodies see it through
// flow.RunContext.
type stepContext struct {
	engine    *Engine
	rs        *runState
	step      string
	path      model.Path
	artifacts *artifact.Map
	input     any
	inputs    []*stepContext
	isJoin    bool
	note      string
}

var _ flow.RunContext = (*stepContext)(nil)

func (sc *stepContext) RunID() string {
	return sc.rs.runID
}

func (sc *stepContext) StepName() string {
	return sc.step
}

func (sc *stepContext) BranchPath() model.Path {
	return sc.path
}

func (sc *stepContext) Param(name string) string {
	return sc.rs.params[name]
}

func (sc *stepContext) Params() map[string]string {
	params := make(map[string]string, len(sc.rs.params))
	for name, value := range sc.rs.params {
		params[name] = value
	}
	return params
}

func (sc *stepContext) Get(name string) (any, bool) {
	return sc.artifacts.Get(name)
}

func (sc *stepContext) Set(name string, value any) error {
	return sc.artifacts.Set(name, value)
}

func (sc *stepContext) Input() any {
	return sc.input
}

func (sc *stepContext) Note(message string) {
	sc.note = message
}

func (sc *stepContext) Inputs() []flow.RunContext {
	if !sc.isJoin {
		return nil
	}
	inputs := make([]flow.RunContext, len(sc.inputs))
	for i, input := range sc.inputs {
		inputs[i] = input
	}
	return inputs
}

// MergeArtifacts pulls branch artifacts forward into the join context,
// following explicit-selection semantics: names the join body already set
// are kept, names equal across every holding branch merge silently, and
// differing values fail with a MergeConflictError naming the disagreeing
// branch indices.
func (sc *stepContext) MergeArtifacts(opts ...flow.MergeOption) error {
	if !sc.isJoin {
		return fmt.Errorf("step %s is not a join", sc.step)
	}

	spec := flow.NewMergeSpec(opts...)
	include := toSet(spec.Include)
	exclude := toSet(spec.Exclude)
	resolved := toSet(sc.artifacts.Written())

	union := make(map[string]struct{})
	for _, input := range sc.inputs {
		for _, name := range input.artifacts.Names() {
			union[name] = struct{}{}
		}
	}

	for _, name := range spec.Include {
		if _, ok := union[name]; !ok {
			return fmt.Errorf("artifact %q not present in any branch", name)
		}
	}

	names := make([]string, 0, len(union))
	for name := range union {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, skip := exclude[name]; skip {
			continue
		}
		if len(include) > 0 {
			if _, keep := include[name]; !keep {
				continue
			}
		}
		if _, done := resolved[name]; done {
			continue
		}

		var (
			value    any
			holders  []int
			conflict bool
		)
		first := true
		for index, input := range sc.inputs {
			candidate, ok := input.artifacts.Get(name)
			if !ok {
				continue
			}
			if first {
				value = candidate
				holders = append(holders, index)
				first = false
				continue
			}
			if !reflect.DeepEqual(value, candidate) {
				conflict = true
				holders = append(holders, index)
			}
		}

		if conflict {
			return mlerrors.NewMergeConflictError(name, holders)
		}
		if err := sc.artifacts.Set(name, value); err != nil {
			return err
		}
	}

	return nil
}

// Pick copies one named artifact from a single branch into the join
// context, resolving a conflict by explicit source selection.
func (sc *stepContext) Pick(name string, branch int) error {
	if !sc.isJoin {
		return fmt.Errorf("step %s is not a join", sc.step)
	}
	if branch < 0 || branch >= len(sc.inputs) {
		return fmt.Errorf("branch %d out of range, join has %d inputs", branch, len(sc.inputs))
	}

	value, ok := sc.inputs[branch].artifacts.Get(name)
	if !ok {
		return fmt.Errorf("artifact %q missing on branch %d", name, branch)
	}
	return sc.artifacts.Set(name, value)
}

// Collect gathers the named numeric artifact from every branch, ordered by
// branch index.
func (sc *stepContext) Collect(name string) ([]float64, error) {
	if !sc.isJoin {
		return nil, fmt.Errorf("step %s is not a join", sc.step)
	}

	values := make([]float64, 0, len(sc.inputs))
	for index, input := range sc.inputs {
		raw, ok := input.artifacts.Get(name)
		if !ok {
			return nil, fmt.Errorf("artifact %q missing on branch %d", name, index)
		}
		value, ok := toFloat(raw)
		if !ok {
			return nil, fmt.Errorf("artifact %q on branch %d is %T, not numeric", name, index, raw)
		}
		values = append(values, value)
	}
	return values, nil
}

func (sc *stepContext) Policy() merge.Policy {
	return sc.engine.policy
}

func (sc *stepContext) Logger() *logger.Logger {
	return sc.rs.logger.WithStep(sc.step, sc.path.String())
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
