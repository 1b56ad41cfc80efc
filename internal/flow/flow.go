package flow

import (
	"context"

	"github.com/JoseManu96/ml.school/internal/logger"
	"github.com/JoseManu96/ml.school/internal/merge"
	"github.com/JoseManu96/ml.school/internal/model"
)

// Kind identifies how a step hands control to its successors.
type Kind string

const (
	// Linear steps transition to their single declared successor.
	Linear Kind = "linear"
	// Split steps fan out into one branch per declared successor.
	Split Kind = "split"
	// Foreach steps fan out into one branch per element of a runtime slice.
	Foreach Kind = "foreach"
	// Join steps block until every branch of their matching split completes.
	Join Kind = "join"
)

// Resources declares per-step runtime requirements. The engine never
// interprets them; they are read by external execution substrates.
type Resources struct {
	MemoryMB int
	Env      map[string]string
}

// Step is one named node of a flow graph. Steps are declared through a
// Builder and immutable once the graph is built.
type Step struct {
	Name      string
	Kind      Kind
	Body      Body
	Next      []string
	ItemsKey  string
	Arity     int
	Resources Resources
}

// StepOption customizes a step declaration.
type StepOption func(*Step)

// To declares the step's successors in order. Declaring more than one
// successor on a plain step makes it a static split.
func To(names ...string) StepOption {
	return func(s *Step) {
		s.Next = append(s.Next, names...)
	}
}

// WithResources attaches declarative resource requirements to a step.
func WithResources(r Resources) StepOption {
	return func(s *Step) {
		s.Resources = r
	}
}

// Body is a unit of domain computation bound to a step. Implementations
// receive the run context for their step occurrence and report failure
// through the returned error; succession is owned by the engine.
type Body interface {
	Run(ctx context.Context, rc RunContext) error
}

// BodyFunc adapts a plain function to the Body interface.
type BodyFunc func(ctx context.Context, rc RunContext) error

// Run invokes the function.
func (f BodyFunc) Run(ctx context.Context, rc RunContext) error {
	return f(ctx, rc)
}

// RunContext is the state bag one step body executes against: run-scoped
// parameters fixed at start, the artifacts inherited on its branch path, and,
// for join steps, the completed branch contexts being merged.
type RunContext interface {
	// RunID returns the unique identifier of the enclosing run.
	RunID() string
	// StepName returns the name of the executing step.
	StepName() string
	// BranchPath returns the forks taken at each ancestor split. It is
	// empty outside parallel regions.
	BranchPath() model.Path
	// Param returns a run-scoped parameter, or "" when absent.
	Param(name string) string
	// Params returns a detached copy of every run-scoped parameter.
	Params() map[string]string
	// Get returns the artifact currently visible under name.
	Get(name string) (any, bool)
	// Set publishes an artifact produced by this step. Writing the same
	// name twice within one step execution is an error.
	Set(name string, value any) error
	// Input returns the element assigned to this foreach branch, or nil
	// outside foreach branches.
	Input() any
	// Inputs returns the completed branch contexts converging on this join
	// step, ordered by branch index. It is nil for non-join steps.
	Inputs() []RunContext
	// MergeArtifacts pulls branch artifacts forward into the join context.
	// Names already set by the join body are kept; names equal across every
	// branch merge silently; differing values fail with MergeConflictError
	// unless excluded.
	MergeArtifacts(opts ...MergeOption) error
	// Pick copies one named artifact from the input with the given branch
	// index into the join context.
	Pick(name string, branch int) error
	// Collect gathers the named numeric artifact from every input, ordered
	// by branch index.
	Collect(name string) ([]float64, error)
	// Note replaces the default success message of this step in the run
	// report. It has no effect when the step fails.
	Note(message string)
	// Policy returns the run's merge policy.
	Policy() merge.Policy
	// Logger returns a logger scoped to this step occurrence.
	Logger() *logger.Logger
}

// MergeSpec is the resolved option set for one MergeArtifacts call.
type MergeSpec struct {
	Include []string
	Exclude []string
}

// MergeOption adjusts which artifact names MergeArtifacts considers.
type MergeOption func(*MergeSpec)

// Include restricts the merge to the named artifacts.
func Include(names ...string) MergeOption {
	return func(s *MergeSpec) {
		s.Include = append(s.Include, names...)
	}
}

// Exclude drops the named artifacts from the merge.
func Exclude(names ...string) MergeOption {
	return func(s *MergeSpec) {
		s.Exclude = append(s.Exclude, names...)
	}
}

// NewMergeSpec folds the supplied options into a MergeSpec.
func NewMergeSpec(opts ...MergeOption) MergeSpec {
	var spec MergeSpec
	for _, opt := range opts {
		opt(&spec)
	}
	return spec
}
