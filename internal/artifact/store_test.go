package artifact

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JoseManu96/ml.school/internal/model"
	mlerrors "github.com/JoseManu96/ml.school/pkg/errors"
)

func TestStorePutAndGet(t *testing.T) {
	t.Parallel()

	store := NewStore()
	branch := model.Path{}.Child("cross_validation", 2)

	require.NoError(t, store.Put("run-1", branch, "evaluate_fold", "test_accuracy", 0.8))

	value, ok := store.Get("run-1", branch, "evaluate_fold", "test_accuracy")
	require.True(t, ok)
	require.Equal(t, 0.8, value)

	_, ok = store.Get("run-1", model.Path{}, "evaluate_fold", "test_accuracy")
	require.False(t, ok)
}

func TestStoreRejectsRewrite(t *testing.T) {
	t.Parallel()

	store := NewStore()
	require.NoError(t, store.Put("run-1", model.Path{}, "start", "data", "v1"))

	err := store.Put("run-1", model.Path{}, "start", "data", "v2")
	require.Error(t, err)
	require.ErrorIs(t, err, mlerrors.ErrArtifactRewrite)
}

func TestStoreStepArtifacts(t *testing.T) {
	t.Parallel()

	store := NewStore()
	branch := model.Path{}.Child("cross_validation", 0)

	require.NoError(t, store.Put("run-1", branch, "evaluate_fold", "test_accuracy", 0.7))
	require.NoError(t, store.Put("run-1", branch, "evaluate_fold", "test_loss", 0.3))
	require.NoError(t, store.Put("run-1", branch, "train_fold", "history", []float64{0.9}))

	values := store.StepArtifacts("run-1", branch, "evaluate_fold")
	require.Len(t, values, 2)
	require.Equal(t, 0.7, values["test_accuracy"])
	require.Equal(t, 0.3, values["test_loss"])
}

func TestStoreBranchArtifactsPreservesWriteOrder(t *testing.T) {
	t.Parallel()

	store := NewStore()
	branch := model.Path{}.Child("cross_validation", 1)

	require.NoError(t, store.Put("run-1", branch, "transform_fold", "x_train", "x"))
	require.NoError(t, store.Put("run-1", branch, "train_fold", "mlflow_fold_run", "abc"))
	require.NoError(t, store.Put("run-1", branch, "evaluate_fold", "test_accuracy", 0.75))

	records := store.BranchArtifacts("run-1", branch)
	require.Len(t, records, 3)
	require.Equal(t, "transform_fold", records[0].Step)
	require.Equal(t, "train_fold", records[1].Step)
	require.Equal(t, "evaluate_fold", records[2].Step)
}

func TestStoreRetainsRecordsFromFailedBranches(t *testing.T) {
	t.Parallel()

	store := NewStore()
	failed := model.Path{}.Child("cross_validation", 3)

	// A sibling that failed later still leaves its earlier writes behind.
	require.NoError(t, store.Put("run-1", failed, "transform_fold", "x_train", "x"))

	records := store.BranchArtifacts("run-1", failed)
	require.Len(t, records, 1)
	require.Equal(t, "x_train", records[0].Name)
}

func TestStoreRunsSorted(t *testing.T) {
	t.Parallel()

	store := NewStore()
	require.NoError(t, store.Put("run-b", model.Path{}, "start", "data", 1))
	require.NoError(t, store.Put("run-a", model.Path{}, "start", "data", 2))

	require.Equal(t, []string{"run-a", "run-b"}, store.Runs())
}

func TestStoreConcurrentBranchWrites(t *testing.T) {
	t.Parallel()

	store := NewStore()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			branch := model.Path{}.Child("cross_validation", index)
			name := fmt.Sprintf("metric_%d", index)
			require.NoError(t, store.Put("run-1", branch, "evaluate_fold", name, float64(index)))
		}(i)
	}
	wg.Wait()

	require.Equal(t, 8, store.Len())
}
