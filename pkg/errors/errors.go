package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel causes for graph construction failures. GraphError wraps one of
// these so callers can branch on the defect kind with errors.Is.
var (
	ErrDuplicateStep     = errors.New("duplicate step name")
	ErrUnknownStep       = errors.New("successor references undefined step")
	ErrMultipleStart     = errors.New("more than one start step")
	ErrMultipleEnd       = errors.New("more than one end step")
	ErrNoStart           = errors.New("no start step")
	ErrNoEnd             = errors.New("no end step")
	ErrCycle             = errors.New("cycle detected")
	ErrJoinArity         = errors.New("join arity does not match incoming edges")
	ErrUnmatchedSplit    = errors.New("split branches do not converge at a single join")
	ErrOrphanJoin        = errors.New("join is not matched by a split")
	ErrUnexpectedFanIn   = errors.New("only join steps may have multiple predecessors")
	ErrMissingForeachKey = errors.New("foreach step declares no items artifact")
	ErrInvalidSuccessors = errors.New("invalid successor declaration")
)

// ErrArtifactRewrite reports an attempt to write the same artifact name twice
// within one step execution. Artifacts are immutable once written; only a
// later step may publish a new value under an existing name.
var ErrArtifactRewrite = errors.New("artifact already written by this step")

// ParseError represents a configuration parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures configuration validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// GraphError reports a structural defect in a step graph. It is raised at
// build time, before any execution, and is never retried.
type GraphError struct {
	Step    string
	Message string
	Err     error
}

// NewGraphError constructs a GraphError for the given step. The step may be
// empty for defects that concern the graph as a whole.
func NewGraphError(step, message string, err error) error {
	return &GraphError{Step: step, Message: message, Err: err}
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Step != "" {
		return fmt.Sprintf("graph error: step %s: %s", e.Step, e.Message)
	}
	return fmt.Sprintf("graph error: %s", e.Message)
}

// Unwrap exposes the sentinel defect cause.
func (e *GraphError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RunInitError indicates an external dependency required to start a run was
// unreachable. It aborts the run and is never retried.
type RunInitError struct {
	Target string
	Err    error
}

// NewRunInitError constructs a RunInitError for the named dependency.
func NewRunInitError(target string, err error) error {
	return &RunInitError{Target: target, Err: err}
}

func (e *RunInitError) Error() string {
	if e == nil {
		return ""
	}
	if e.Target != "" {
		return fmt.Sprintf("run initialization error: %s: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("run initialization error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *RunInitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StepError represents a runtime failure while executing a step body. Branch
// holds the rendered branch path at which the failure occurred; it is empty
// for steps outside parallel regions.
type StepError struct {
	Step   string
	Branch string
	Err    error
}

// NewStepError constructs a StepError.
func NewStepError(step, branch string, err error) error {
	return &StepError{Step: step, Branch: branch, Err: err}
}

func (e *StepError) Error() string {
	if e == nil {
		return ""
	}
	if e.Branch != "" {
		return fmt.Sprintf("step %s failed on branch %s: %v", e.Step, e.Branch, e.Err)
	}
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

// Unwrap exposes the root error.
func (e *StepError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MergeConflictError reports that a join saw two branches supply different
// values for the same artifact name without an explicit resolution.
type MergeConflictError struct {
	Name     string
	Branches []int
}

// NewMergeConflictError constructs a MergeConflictError for the artifact name
// and the branch indices that disagreed.
func NewMergeConflictError(name string, branches []int) error {
	return &MergeConflictError{Name: name, Branches: branches}
}

func (e *MergeConflictError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Branches) == 0 {
		return fmt.Sprintf("merge conflict: artifact %q differs across branches", e.Name)
	}
	parts := make([]string, len(e.Branches))
	for i, b := range e.Branches {
		parts[i] = fmt.Sprintf("%d", b)
	}
	return fmt.Sprintf("merge conflict: artifact %q differs across branches %s", e.Name, strings.Join(parts, ", "))
}

// EmptyForeachError reports a foreach step that produced zero elements while
// the engine was configured to treat that as a failure.
type EmptyForeachError struct {
	Step string
}

// NewEmptyForeachError constructs an EmptyForeachError.
func NewEmptyForeachError(step string) error {
	return &EmptyForeachError{Step: step}
}

func (e *EmptyForeachError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("foreach step %s produced no elements", e.Step)
}

// PublishError indicates the model registry rejected a publish while the
// accuracy gate was open. It is a hard run failure.
type PublishError struct {
	Name string
	Err  error
}

// NewPublishError constructs a PublishError for the registered model name.
func NewPublishError(name string, err error) error {
	return &PublishError{Name: name, Err: err}
}

func (e *PublishError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("publish error: model %q: %v", e.Name, e.Err)
}

// Unwrap exposes the root error.
func (e *PublishError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
