package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseErrorWrapsUnderlying(t *testing.T) {
	t.Parallel()

	underlying := fmt.Errorf("unexpected token")
	err := NewParseError("params.yaml", 12, underlying)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, "params.yaml", parseErr.Path)
	require.Equal(t, 12, parseErr.Line)
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "params.yaml")
}

func TestValidationErrorIncludesField(t *testing.T) {
	t.Parallel()

	err := NewValidationError("training.epochs", "must be at least 1", nil)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "training.epochs", validationErr.Field)
	require.Contains(t, validationErr.Message, "must be at least 1")
}

func TestGraphErrorWrapsSentinel(t *testing.T) {
	t.Parallel()

	err := NewGraphError("cross_validation", "branches reach different joins", ErrUnmatchedSplit)

	var graphErr *GraphError
	require.ErrorAs(t, err, &graphErr)
	require.Equal(t, "cross_validation", graphErr.Step)
	require.True(t, stdErrors.Is(err, ErrUnmatchedSplit))
	require.Contains(t, err.Error(), "cross_validation")
}

func TestRunInitErrorNamesTarget(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("connection refused")
	err := NewRunInitError("http://127.0.0.1:5000", underlying)

	var initErr *RunInitError
	require.ErrorAs(t, err, &initErr)
	require.Equal(t, "http://127.0.0.1:5000", initErr.Target)
	require.True(t, stdErrors.Is(err, underlying))
}

func TestStepErrorIncludesBranchPath(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("training diverged")
	err := NewStepError("train_fold", "cross_validation[3]", underlying)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, "train_fold", stepErr.Step)
	require.Equal(t, "cross_validation[3]", stepErr.Branch)
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "cross_validation[3]")
}

func TestStepErrorWithoutBranch(t *testing.T) {
	t.Parallel()

	err := NewStepError("start", "", stdErrors.New("boom"))
	require.NotContains(t, err.Error(), "branch")
}

func TestMergeConflictErrorListsBranches(t *testing.T) {
	t.Parallel()

	err := NewMergeConflictError("test_accuracy", []int{0, 2})

	var conflictErr *MergeConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Equal(t, "test_accuracy", conflictErr.Name)
	require.Equal(t, []int{0, 2}, conflictErr.Branches)
	require.Contains(t, err.Error(), "0, 2")
}

func TestEmptyForeachErrorNamesStep(t *testing.T) {
	t.Parallel()

	err := NewEmptyForeachError("cross_validation")

	var emptyErr *EmptyForeachError
	require.ErrorAs(t, err, &emptyErr)
	require.Equal(t, "cross_validation", emptyErr.Step)
}

func TestPublishErrorWrapsCause(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("bucket unavailable")
	err := NewPublishError("penguins", underlying)

	var publishErr *PublishError
	require.ErrorAs(t, err, &publishErr)
	require.Equal(t, "penguins", publishErr.Name)
	require.True(t, stdErrors.Is(err, underlying))
}
