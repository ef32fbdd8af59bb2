package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444466")).Padding(0, 1)
	statsStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(0, 2).Width(34)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true).MarginTop(1)
	sparkStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ccff"))
	runningText = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff88")).Render("RUNNING")
	pausedText  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffaa00")).Render("PAUSED")
	doneText    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#888899")).Render("DONE")
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff4444"))
)
