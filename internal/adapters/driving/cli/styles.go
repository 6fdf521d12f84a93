package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette shared by all commands.
var (
	colourPrimary = lipgloss.Color("#7C3AED")
	colourMuted   = lipgloss.Color("#6C7086")
	colourSuccess = lipgloss.Color("#A6E3A1")
	colourWarning = lipgloss.Color("#F9E2AF")
	colourError   = lipgloss.Color("#F38BA8")
)

// Styles for command output. lipgloss drops colour when stdout is not a terminal.
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colourPrimary)
	keyStyle     = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colourMuted)
	successStyle = lipgloss.NewStyle().Foreground(colourSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colourWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colourError).Bold(true)
)

// keyValue renders an aligned "key: value" line.
func keyValue(key, value string) string {
	return "  " + keyStyle.Width(24).Render(key+":") + value
}
