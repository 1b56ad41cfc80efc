package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/JoseManu96/ml.school/internal/model"
)

// StepEntry is one renderable row of the step table. A step inside a
// parallel region aggregates all of its branch executions into one entry.
type StepEntry struct {
	Name     string
	Status   model.Status
	Done     int
	Branches int
	Message  string
	Duration time.Duration
}

// StepList renders the pipeline steps with their current status.
type StepList struct {
	entries []StepEntry
}

// NewStepList constructs a step list component over ordered entries.
func NewStepList(entries []StepEntry) StepList {
	return StepList{entries: entries}
}

// Entries returns a copy of the ordered step entries.
func (s StepList) Entries() []StepEntry {
	clone := make([]StepEntry, len(s.entries))
	copy(clone, s.entries)
	return clone
}

// View renders the entries, one line per step. Rows that are still running
// use runningIcon so the caller can animate them.
func (s StepList) View(runningIcon string) string {
	var lines []string
	for _, entry := range s.entries {
		icon := StatusIcon(entry.Status)
		if entry.Status == model.StatusRunning && runningIcon != "" {
			icon = runningIcon
		}
		line := fmt.Sprintf(" %s %s", icon, entry.Name)
		if entry.Branches > 1 {
			line = fmt.Sprintf("%s [%d/%d]", line, entry.Done, entry.Branches)
		}
		if strings.TrimSpace(entry.Message) != "" {
			line = fmt.Sprintf("%s — %s", line, entry.Message)
		}
		if entry.Duration > 0 {
			line = fmt.Sprintf("%s (%s)", line, entry.Duration.Truncate(10*time.Millisecond))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

var (
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	awaitingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	failureStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// StatusIcon returns the glyph representing a step status.
func StatusIcon(status model.Status) string {
	switch status {
	case model.StatusSucceeded:
		return successStyle.Render("✓")
	case model.StatusRunning:
		return runningStyle.Render("⏳")
	case model.StatusAwaitingJoin:
		return awaitingStyle.Render("⧗")
	case model.StatusFailed:
		return failureStyle.Render("✗")
	default:
		return pendingStyle.Render("…")
	}
}
