package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/JoseManu96/ml.school/internal/tui/components"
)

// View renders the current state of the run.
func (m Model) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render(fmt.Sprintf("ml.school • %s", m.title())))

	completed := m.CompletedSteps()
	sections = append(sections,
		sectionStyle.Render("Progress"),
		components.NewProgress().View(completed, m.TotalSteps()))

	entries := m.entries()
	if len(entries) > 0 {
		sections = append(sections,
			sectionStyle.Render("Steps"),
			components.NewStepList(entries).View(m.spin.View()))
	}

	summary := components.NewSummary(components.SummaryData{
		Total:     m.TotalSteps(),
		Completed: completed,
		Finished:  m.finished,
		Cancelled: m.cancelled,
		Report:    m.report,
		Err:       m.err,
	}).View()
	if strings.TrimSpace(summary) != "" {
		sections = append(sections, sectionStyle.Render("Summary"), summaryStyle.Render(summary))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) entries() []components.StepEntry {
	entries := make([]components.StepEntry, 0, len(m.order))
	for _, name := range m.order {
		row := m.rows[name]
		done, branches := row.counts()
		entries = append(entries, components.StepEntry{
			Name:     name,
			Status:   row.status(),
			Done:     done,
			Branches: branches,
			Message:  row.message,
			Duration: row.duration,
		})
	}
	return entries
}

func (m Model) title() string {
	if strings.TrimSpace(m.flow) != "" {
		return m.flow
	}
	return "training run"
}
