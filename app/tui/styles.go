package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary   = lipgloss.Color("39")
	colorSecondary = lipgloss.Color("86")
	colorError     = lipgloss.Color("196")
	colorDim       = lipgloss.Color("241")

	userLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	agentLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorSecondary)

	messageBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)

	systemStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	statusStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	promptBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("237")).
			Padding(0, 1)

	welcomeStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Italic(true).
			Align(lipgloss.Center)
)
