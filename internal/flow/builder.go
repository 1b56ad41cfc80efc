package flow

// Builder accumulates step declarations for one flow. Declarations are not
// checked until Build, which validates the whole topology at once.
type Builder struct {
	name  string
	steps []*Step
}

// NewBuilder starts a flow definition with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Step declares a sequential step. Declaring more than one successor turns
// the step into a static split whose branches must reconverge at one join.
func (b *Builder) Step(name string, body Body, opts ...StepOption) *Builder {
	return b.add(&Step{Name: name, Body: body}, opts)
}

// Foreach declares a runtime-sized split. The body must set the itemsKey
// artifact to a slice; the engine spawns one branch per element.
func (b *Builder) Foreach(name string, body Body, itemsKey string, opts ...StepOption) *Builder {
	return b.add(&Step{Name: name, Kind: Foreach, Body: body, ItemsKey: itemsKey}, opts)
}

// Join declares a fan-in step expecting arity incoming edges. The engine
// runs it only after every branch of the matching split has succeeded.
func (b *Builder) Join(name string, arity int, body Body, opts ...StepOption) *Builder {
	return b.add(&Step{Name: name, Kind: Join, Body: body, Arity: arity}, opts)
}

func (b *Builder) add(step *Step, opts []StepOption) *Builder {
	for _, opt := range opts {
		opt(step)
	}
	if step.Kind == "" {
		step.Kind = Linear
		if len(step.Next) > 1 {
			step.Kind = Split
		}
	}
	b.steps = append(b.steps, step)
	return b
}

// Build validates the accumulated declarations and freezes them into an
// immutable Graph. All structural defects surface here, before any
// execution.
func (b *Builder) Build() (*Graph, error) {
	return newGraph(b.name, b.steps)
}
