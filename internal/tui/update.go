package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles Bubbletea messages and updates model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case EventMsg:
		if msg.Result.Step == "" {
			return m, nil
		}
		m.ensureRow(msg.Result.Step).apply(msg.Result)
		return m, nil
	case RunDoneMsg:
		m.finished = true
		m.report = msg.Report
		m.err = msg.Err
		return m, tea.Quit
	case tea.KeyMsg:
		// The interrupt cancels the engine context; the final RunDoneMsg
		// still arrives and quits the program.
		if msg.Type == tea.KeyCtrlC {
			m.cancelled = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
	}

	return m, nil
}
