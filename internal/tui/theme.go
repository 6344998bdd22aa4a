package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	header      lipgloss.Style
	headerStyle lipgloss.Style
	userLabel   lipgloss.Style
	tutorLabel  lipgloss.Style
	userBubble  lipgloss.Style
	tutorBubble lipgloss.Style
	errorBubble lipgloss.Style
	errorBanner lipgloss.Style
	muted       lipgloss.Style
	status      lipgloss.Style
	inputPanel  lipgloss.Style
	welcome     lipgloss.Style
	welcomeHead lipgloss.Style
}

func newTheme() theme {
	cyan := lipgloss.Color("#22d3ee")
	indigo := lipgloss.Color("#818cf8")
	red := lipgloss.Color("#f87171")
	text := lipgloss.Color("#e2e8f0")
	muted := lipgloss.Color("#64748b")
	border := lipgloss.Color("#334155")

	return theme{
		header: lipgloss.NewStyle().
			Foreground(cyan).
			Bold(true).
			Padding(0, 1),
		headerStyle: lipgloss.NewStyle().Foreground(indigo),
		userLabel:   lipgloss.NewStyle().Foreground(indigo).Bold(true),
		tutorLabel:  lipgloss.NewStyle().Foreground(cyan).Bold(true),
		userBubble: lipgloss.NewStyle().
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(indigo).
			Padding(0, 1),
		tutorBubble: lipgloss.NewStyle().
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1),
		errorBubble: lipgloss.NewStyle().
			Foreground(red).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(red).
			Padding(0, 1),
		errorBanner: lipgloss.NewStyle().Foreground(red).Bold(true),
		muted:       lipgloss.NewStyle().Foreground(muted),
		status:      lipgloss.NewStyle().Foreground(cyan),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(border),
		welcome:     lipgloss.NewStyle().Foreground(muted).Align(lipgloss.Center),
		welcomeHead: lipgloss.NewStyle().Foreground(cyan).Bold(true),
	}
}
