package preprocess

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JoseManu96/ml.school/internal/dataset"
)

func speciesRows() []dataset.Penguin {
	return []dataset.Penguin{
		{Species: "Gentoo"},
		{Species: "Adelie"},
		{Species: "Chinstrap"},
		{Species: "Adelie"},
	}
}

func TestFitTransformAssignsSortedLabels(t *testing.T) {
	t.Parallel()

	transformer := NewTargetTransformer()
	labels, err := transformer.FitTransform(dataset.FromRows(speciesRows()))
	require.NoError(t, err)

	require.Equal(t, []string{"Adelie", "Chinstrap", "Gentoo"}, transformer.Classes())
	require.Equal(t, []int{2, 0, 1, 0}, labels)
}

func TestTransformUnknownSpeciesFails(t *testing.T) {
	t.Parallel()

	transformer := NewTargetTransformer()
	require.NoError(t, transformer.Fit(dataset.FromRows(speciesRows())))

	_, err := transformer.Transform(dataset.FromRows([]dataset.Penguin{{Species: "Emperor"}}))
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown species "Emperor"`)
}

func TestTargetTransformBeforeFitFails(t *testing.T) {
	t.Parallel()

	_, err := NewTargetTransformer().Transform(dataset.FromRows(speciesRows()))
	require.Error(t, err)
	require.Contains(t, err.Error(), "has not been fitted")
}

func TestClassNameResolvesLabels(t *testing.T) {
	t.Parallel()

	transformer := NewTargetTransformer()
	require.NoError(t, transformer.Fit(dataset.FromRows(speciesRows())))

	name, err := transformer.ClassName(1)
	require.NoError(t, err)
	require.Equal(t, "Chinstrap", name)

	_, err = transformer.ClassName(3)
	require.Error(t, err)
	require.Contains(t, err.Error(), "out of range")
}

func TestTargetStateRoundTrip(t *testing.T) {
	t.Parallel()

	transformer := NewTargetTransformer()
	require.NoError(t, transformer.Fit(dataset.FromRows(speciesRows())))

	restored, err := TargetFromState(transformer.State())
	require.NoError(t, err)
	require.Equal(t, transformer.Classes(), restored.Classes())

	labels, err := restored.Transform(dataset.FromRows([]dataset.Penguin{{Species: "Gentoo"}}))
	require.NoError(t, err)
	require.Equal(t, []int{2}, labels)
}

func TestTargetFromStateRejectsEmptyClasses(t *testing.T) {
	t.Parallel()

	_, err := TargetFromState(TargetState{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no classes")
}
