package components

import (
	"fmt"
	"strings"

	"github.com/JoseManu96/ml.school/internal/model"
)

// SummaryData aggregates the run outcome for rendering.
type SummaryData struct {
	Total     int
	Completed int
	Finished  bool
	Cancelled bool
	Report    *model.RunReport
	Err       error
}

// Summary renders a textual run summary.
type Summary struct {
	data SummaryData
}

// NewSummary creates a new Summary component.
func NewSummary(data SummaryData) Summary {
	return Summary{data: data}
}

// View renders the summary.
func (s Summary) View() string {
	var lines []string
	if s.data.Total > 0 {
		lines = append(lines, fmt.Sprintf("Steps: %d/%d completed", s.data.Completed, s.data.Total))
	}

	switch {
	case s.data.Cancelled:
		lines = append(lines, "Run cancelled")
	case s.data.Report != nil && s.data.Report.Failed():
		line := "Run failed"
		if failed := s.data.Report.FailedStep(); failed != nil {
			line = fmt.Sprintf("Run failed at %s", failed.Step)
			if failed.Err != nil {
				line = fmt.Sprintf("%s: %v", line, failed.Err)
			}
		}
		lines = append(lines, line)
	case s.data.Report != nil && s.data.Finished:
		lines = append(lines, fmt.Sprintf("Run %s finished successfully", s.data.Report.RunID))
	case s.data.Err != nil:
		lines = append(lines, fmt.Sprintf("Run failed: %v", s.data.Err))
	}

	return strings.Join(lines, "\n")
}
