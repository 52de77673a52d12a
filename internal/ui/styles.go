// Package ui styles contains shared styling definitions.
package ui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	ColorPrimary = lipgloss.Color("#7C3AED") // Violet
	ColorAccent  = lipgloss.Color("#34D399") // Emerald (success)
	ColorWarning = lipgloss.Color("#F59E0B") // Amber
	ColorError   = lipgloss.Color("#EF4444") // Red
	ColorMuted   = lipgloss.Color("#626262") // Gray
	ColorText    = lipgloss.Color("#FAFAFA") // White
	ColorSubtle  = lipgloss.Color("#A1A1AA") // Zinc
)

// Shared styles
var (
	ContainerStyle = lipgloss.NewStyle().
			Padding(1, 2)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText).
			Background(ColorPrimary).
			Padding(0, 1)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	// Step list styles, keyed by step state
	stepStyles = map[string]lipgloss.Style{
		stepDone:    lipgloss.NewStyle().Foreground(ColorAccent),
		stepRunning: lipgloss.NewStyle().Foreground(ColorWarning),
		stepError:   lipgloss.NewStyle().Foreground(ColorError),
		stepPending: lipgloss.NewStyle().Foreground(ColorMuted),
	}
)
