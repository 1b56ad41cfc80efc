package components

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JoseManu96/ml.school/internal/model"
)

func TestSummaryView(t *testing.T) {
	t.Parallel()

	t.Run("renders empty summary", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "", NewSummary(SummaryData{}).View())
	})

	t.Run("renders step progress while running", func(t *testing.T) {
		t.Parallel()
		view := NewSummary(SummaryData{Total: 10, Completed: 5}).View()
		require.Contains(t, view, "Steps: 5/10 completed")
		require.NotContains(t, view, "finished")
	})

	t.Run("renders a successful run", func(t *testing.T) {
		t.Parallel()
		view := NewSummary(SummaryData{
			Total:     10,
			Completed: 10,
			Finished:  true,
			Report:    &model.RunReport{RunID: "abc-123", Status: model.StatusSucceeded},
		}).View()
		require.Contains(t, view, "Steps: 10/10 completed")
		require.Contains(t, view, "Run abc-123 finished successfully")
	})

	t.Run("renders the failed step and its error", func(t *testing.T) {
		t.Parallel()
		report := &model.RunReport{
			Status: model.StatusFailed,
			Steps: []model.StepResult{
				{Step: "start", Status: model.StatusFailed, Err: errors.New("boom")},
			},
		}
		view := NewSummary(SummaryData{Total: 10, Completed: 1, Finished: true, Report: report}).View()
		require.Contains(t, view, "Run failed at start: boom")
	})

	t.Run("renders cancellation over completion", func(t *testing.T) {
		t.Parallel()
		view := NewSummary(SummaryData{
			Total:     10,
			Completed: 3,
			Finished:  true,
			Cancelled: true,
			Report:    &model.RunReport{Status: model.StatusSucceeded},
		}).View()
		require.Contains(t, view, "Run cancelled")
		require.NotContains(t, view, "finished successfully")
	})

	t.Run("renders a bare error when no report exists", func(t *testing.T) {
		t.Parallel()
		view := NewSummary(SummaryData{Err: errors.New("no graph")}).View()
		require.Contains(t, view, "Run failed: no graph")
	})
}
