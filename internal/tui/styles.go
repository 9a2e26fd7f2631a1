package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	header  lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	stage   lipgloss.Style
	agent   lipgloss.Style
	phase   lipgloss.Style
	log     lipgloss.Style
	dim     lipgloss.Style
	warning lipgloss.Style
	done    lipgloss.Style
	failed  lipgloss.Style
}

func newStyles() styles {
	return styles{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(11),
		value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),
		stage: lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Width(10),
		agent: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Width(10),
		phase: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true),
		log: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		dim: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		done: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true),
		failed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),
	}
}
