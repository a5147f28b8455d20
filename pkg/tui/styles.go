package tui

import "github.com/charmbracelet/lipgloss"

// Color palette for the follow view. Single source of truth; use these
// constants so the step list stays visually consistent.
var (
	oceanTeal   = lipgloss.Color("#2DD4BF") // primary accent
	mintGreen   = lipgloss.Color("#A7F3D0") // success states
	amberGold   = lipgloss.Color("#FCD34D") // in-flight and pacing states
	salmonRed   = lipgloss.Color("#F87171") // failures
	mutedGray   = lipgloss.Color("#6B7280") // secondary text
	brightWhite = lipgloss.Color("#F9FAFB") // primary text
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(oceanTeal).
			Bold(true)

	projectStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	stepNameStyle = lipgloss.NewStyle().
			Foreground(brightWhite)

	successStyle = lipgloss.NewStyle().
			Foreground(mintGreen)

	runningStyle = lipgloss.NewStyle().
			Foreground(amberGold)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmonRed)

	pendingStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	skippedStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Italic(true)

	messageStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	summaryStyle = lipgloss.NewStyle().
			Foreground(brightWhite).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedGray)
)
