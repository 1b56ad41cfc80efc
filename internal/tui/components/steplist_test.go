package components

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JoseManu96/ml.school/internal/model"
)

func TestStepListEntries(t *testing.T) {
	t.Parallel()

	t.Run("returns empty slice for an empty list", func(t *testing.T) {
		t.Parallel()
		require.Empty(t, NewStepList(nil).Entries())
	})

	t.Run("preserves order and details", func(t *testing.T) {
		t.Parallel()
		list := NewStepList([]StepEntry{
			{Name: "start", Status: model.StatusSucceeded, Message: "completed"},
			{Name: "train_model", Status: model.StatusRunning},
		})

		entries := list.Entries()
		require.Len(t, entries, 2)
		require.Equal(t, "start", entries[0].Name)
		require.Equal(t, model.StatusSucceeded, entries[0].Status)
		require.Equal(t, "completed", entries[0].Message)
		require.Equal(t, "train_model", entries[1].Name)
	})

	t.Run("returns an independent copy", func(t *testing.T) {
		t.Parallel()
		list := NewStepList([]StepEntry{{Name: "start"}})

		first := list.Entries()
		first[0].Name = "modified"
		require.Equal(t, "start", list.Entries()[0].Name)
	})
}

func TestStepListView(t *testing.T) {
	t.Parallel()

	t.Run("renders name, message and duration", func(t *testing.T) {
		t.Parallel()
		list := NewStepList([]StepEntry{{
			Name:     "register_model",
			Status:   model.StatusSucceeded,
			Done:     1,
			Branches: 1,
			Message:  "registered model version 1",
			Duration: 1500 * time.Millisecond,
		}})

		view := list.View("")
		require.Contains(t, view, "register_model")
		require.Contains(t, view, "registered model version 1")
		require.Contains(t, view, "1.5s")
	})

	t.Run("shows a branch counter for parallel steps", func(t *testing.T) {
		t.Parallel()
		list := NewStepList([]StepEntry{{
			Name:     "evaluate_fold",
			Status:   model.StatusRunning,
			Done:     2,
			Branches: 5,
		}})

		require.Contains(t, list.View(""), "[2/5]")
	})

	t.Run("substitutes the running icon", func(t *testing.T) {
		t.Parallel()
		list := NewStepList([]StepEntry{{Name: "train_fold", Status: model.StatusRunning}})

		require.Contains(t, list.View("*"), "* train_fold")
	})
}

func TestStatusIcon(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   model.Status
		expected string
	}{
		{"succeeded shows checkmark", model.StatusSucceeded, "✓"},
		{"running shows hourglass", model.StatusRunning, "⏳"},
		{"awaiting join shows waiting glyph", model.StatusAwaitingJoin, "⧗"},
		{"failed shows cross", model.StatusFailed, "✗"},
		{"pending shows ellipsis", model.StatusPending, "…"},
		{"unknown shows ellipsis", model.Status("unknown"), "…"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Contains(t, StatusIcon(tt.status), tt.expected)
		})
	}
}
