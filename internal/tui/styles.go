package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).MarginTop(1)
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	summaryStyle = lipgloss.NewStyle().MarginTop(1)
)
