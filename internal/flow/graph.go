package flow

import (
	"fmt"
	"sort"
	"strings"

	mlerrors "github.com/JoseManu96/ml.school/pkg/errors"
)

// Graph is the validated, immutable step topology of one flow. All
// structural rules are enforced when the graph is built; nothing mutates it
// afterwards.
type Graph struct {
	name    string
	steps   map[string]*Step
	order   []string
	parents map[string][]string
	start   string
	end     string
	joinOf  map[string]string
	splitOf map[string]string
	levels  [][]string
}

func newGraph(name string, steps []*Step) (*Graph, error) {
	g := &Graph{
		name:    name,
		steps:   make(map[string]*Step, len(steps)),
		parents: make(map[string][]string),
		joinOf:  make(map[string]string),
		splitOf: make(map[string]string),
	}

	for _, step := range steps {
		if step.Name == "" {
			return nil, mlerrors.NewGraphError("", "step name is empty", nil)
		}
		if _, dup := g.steps[step.Name]; dup {
			return nil, mlerrors.NewGraphError(step.Name, "declared twice", mlerrors.ErrDuplicateStep)
		}
		if step.Body == nil {
			return nil, mlerrors.NewGraphError(step.Name, "step has no body", nil)
		}
		g.steps[step.Name] = step
		g.order = append(g.order, step.Name)
	}

	if len(g.order) == 0 {
		return nil, mlerrors.NewGraphError("", "flow declares no steps", mlerrors.ErrNoStart)
	}

	if err := g.checkSuccessors(); err != nil {
		return nil, err
	}
	if err := g.findTerminals(); err != nil {
		return nil, err
	}
	if err := g.sortLevels(); err != nil {
		return nil, err
	}
	if err := g.checkFanIn(); err != nil {
		return nil, err
	}
	if err := g.matchRegions(); err != nil {
		return nil, err
	}

	return g, nil
}

func (g *Graph) checkSuccessors() error {
	for _, name := range g.order {
		step := g.steps[name]

		seen := make(map[string]struct{}, len(step.Next))
		for _, next := range step.Next {
			if _, ok := g.steps[next]; !ok {
				return mlerrors.NewGraphError(name, fmt.Sprintf("references undefined step %q", next), mlerrors.ErrUnknownStep)
			}
			if _, dup := seen[next]; dup {
				return mlerrors.NewGraphError(name, fmt.Sprintf("declares successor %q twice", next), mlerrors.ErrInvalidSuccessors)
			}
			seen[next] = struct{}{}
			g.parents[next] = append(g.parents[next], name)
		}

		switch step.Kind {
		case Foreach:
			if step.ItemsKey == "" {
				return mlerrors.NewGraphError(name, "foreach declares no items artifact", mlerrors.ErrMissingForeachKey)
			}
			if len(step.Next) != 1 {
				return mlerrors.NewGraphError(name, fmt.Sprintf("foreach declares %d successors, expected exactly one", len(step.Next)), mlerrors.ErrInvalidSuccessors)
			}
		case Join:
			if step.Arity < 1 {
				return mlerrors.NewGraphError(name, "join must expect at least one predecessor", mlerrors.ErrJoinArity)
			}
			if len(step.Next) > 1 {
				return mlerrors.NewGraphError(name, fmt.Sprintf("join declares %d successors, expected at most one", len(step.Next)), mlerrors.ErrInvalidSuccessors)
			}
		}
	}
	return nil
}

func (g *Graph) findTerminals() error {
	var starts, ends []string
	for _, name := range g.order {
		if len(g.parents[name]) == 0 {
			starts = append(starts, name)
		}
		if len(g.steps[name].Next) == 0 {
			ends = append(ends, name)
		}
	}

	switch len(starts) {
	case 0:
		return mlerrors.NewGraphError("", "every step has a predecessor", mlerrors.ErrNoStart)
	case 1:
		g.start = starts[0]
	default:
		return mlerrors.NewGraphError("", fmt.Sprintf("steps %s all lack predecessors", strings.Join(starts, ", ")), mlerrors.ErrMultipleStart)
	}

	switch len(ends) {
	case 0:
		return mlerrors.NewGraphError("", "every step has a successor", mlerrors.ErrNoEnd)
	case 1:
		g.end = ends[0]
	default:
		return mlerrors.NewGraphError("", fmt.Sprintf("steps %s all lack successors", strings.Join(ends, ", ")), mlerrors.ErrMultipleEnd)
	}

	return nil
}

// sortLevels computes topological levels with Kahn's algorithm. A cycle
// leaves steps unprocessed and fails the build.
func (g *Graph) sortLevels() error {
	indegree := make(map[string]int, len(g.steps))
	for name := range g.steps {
		indegree[name] = len(g.parents[name])
	}

	var queue []string
	for _, name := range g.order {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	processed := 0
	var levels [][]string

	for len(queue) > 0 {
		level := append([]string(nil), queue...)
		levels = append(levels, level)

		var next []string
		for _, name := range level {
			processed++
			for _, successor := range g.steps[name].Next {
				indegree[successor]--
				if indegree[successor] == 0 {
					next = append(next, successor)
				}
			}
		}

		sort.Strings(next)
		queue = next
	}

	if processed != len(g.steps) {
		return mlerrors.NewGraphError("", "steps form a cycle", mlerrors.ErrCycle)
	}

	g.levels = levels
	return nil
}

func (g *Graph) checkFanIn() error {
	for _, name := range g.order {
		step := g.steps[name]
		incoming := len(g.parents[name])

		if step.Kind == Join {
			if incoming != step.Arity {
				return mlerrors.NewGraphError(name, fmt.Sprintf("expects %d predecessors, found %d incoming edges", step.Arity, incoming), mlerrors.ErrJoinArity)
			}
			continue
		}
		if incoming > 1 {
			return mlerrors.NewGraphError(name, fmt.Sprintf("%d incoming edges on a non-join step", incoming), mlerrors.ErrUnexpectedFanIn)
		}
	}
	return nil
}

// matchRegions pairs every split with the single join its branches converge
// on, innermost regions first, and rejects overlapping regions and joins no
// split claims.
func (g *Graph) matchRegions() error {
	for _, name := range g.order {
		step := g.steps[name]
		if step.Kind != Split && step.Kind != Foreach {
			continue
		}
		if err := g.matchSplit(name); err != nil {
			return err
		}
	}

	for _, name := range g.order {
		if g.steps[name].Kind != Join {
			continue
		}
		if _, claimed := g.splitOf[name]; !claimed {
			return mlerrors.NewGraphError(name, "no matching split", mlerrors.ErrOrphanJoin)
		}
	}
	return nil
}

func (g *Graph) matchSplit(split string) error {
	if _, done := g.joinOf[split]; done {
		return nil
	}

	join := ""
	for _, branch := range g.steps[split].Next {
		found, err := g.walkToJoin(split, branch)
		if err != nil {
			return err
		}
		if join == "" {
			join = found
			continue
		}
		if found != join {
			return mlerrors.NewGraphError(split, fmt.Sprintf("branches reach different joins %q and %q", join, found), mlerrors.ErrUnmatchedSplit)
		}
	}

	if owner, claimed := g.splitOf[join]; claimed && owner != split {
		return mlerrors.NewGraphError(split, fmt.Sprintf("join %q already matches split %q", join, owner), mlerrors.ErrUnmatchedSplit)
	}

	g.joinOf[split] = join
	g.splitOf[join] = split
	return nil
}

// walkToJoin follows one branch chain until the first join at the same
// nesting depth. Nested regions encountered on the way are matched first and
// skipped over through their own joins.
func (g *Graph) walkToJoin(split, from string) (string, error) {
	current := from
	for {
		step := g.steps[current]
		switch step.Kind {
		case Join:
			return current, nil
		case Split, Foreach:
			if err := g.matchSplit(current); err != nil {
				return "", err
			}
			after := g.steps[g.joinOf[current]].Next
			if len(after) == 0 {
				return "", mlerrors.NewGraphError(split, fmt.Sprintf("branch %q ends before reaching a join", from), mlerrors.ErrUnmatchedSplit)
			}
			current = after[0]
		default:
			if len(step.Next) == 0 {
				return "", mlerrors.NewGraphError(split, fmt.Sprintf("branch %q reaches the end without a join", from), mlerrors.ErrUnmatchedSplit)
			}
			current = step.Next[0]
		}
	}
}

// Name returns the flow name.
func (g *Graph) Name() string {
	return g.name
}

// Start returns the single step without predecessors.
func (g *Graph) Start() string {
	return g.start
}

// End returns the single step without successors.
func (g *Graph) End() string {
	return g.end
}

// Len reports the number of steps.
func (g *Graph) Len() int {
	return len(g.order)
}

// Lookup returns the named step definition.
func (g *Graph) Lookup(name string) (*Step, bool) {
	step, ok := g.steps[name]
	return step, ok
}

// Steps returns every step name in declaration order.
func (g *Graph) Steps() []string {
	return append([]string(nil), g.order...)
}

// Predecessors returns the steps with an edge into name, in declaration
// order.
func (g *Graph) Predecessors(name string) []string {
	return append([]string(nil), g.parents[name]...)
}

// JoinOf returns the join step matching the given split.
func (g *Graph) JoinOf(split string) (string, bool) {
	join, ok := g.joinOf[split]
	return join, ok
}

// SplitOf returns the split step matched by the given join.
func (g *Graph) SplitOf(join string) (string, bool) {
	split, ok := g.splitOf[join]
	return split, ok
}

// Levels returns the topological levels computed at build time.
func (g *Graph) Levels() [][]string {
	levels := make([][]string, len(g.levels))
	for i, level := range g.levels {
		levels[i] = append([]string(nil), level...)
	}
	return levels
}

// Describe renders a human readable summary of the topology.
func (g *Graph) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "flow %s: %d steps across %d levels\n", g.name, len(g.order), len(g.levels))

	for _, level := range g.levels {
		for _, name := range level {
			step := g.steps[name]

			label := string(step.Kind)
			switch step.Kind {
			case Foreach:
				label = fmt.Sprintf("foreach over %q", step.ItemsKey)
			case Join:
				label = fmt.Sprintf("join of %s", g.splitOf[name])
			}

			if len(step.Next) == 0 {
				fmt.Fprintf(&b, "  %s [%s]\n", name, label)
				continue
			}
			fmt.Fprintf(&b, "  %s [%s] -> %s\n", name, label, strings.Join(step.Next, ", "))
		}
	}
	return b.String()
}
