// Package style renders formula results for terminals using Lipgloss.
package style

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/specialistvlad/formulagrid/internal/engine"
)

var (
	// Value style for successfully evaluated results (green)
	Value = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7FD962"))

	// Warning style for messages that do not block a formula (orange)
	Warning = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FF8F40")).
		Bold(true)

	// Error style for failed formulas (red)
	Error = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F26D78")).
		Bold(true)

	// Label style for formula paths
	Label = lipgloss.NewStyle().
		Bold(true)

	// Dim style for secondary information (gray)
	Dim = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6C7680"))
)

// For returns the style of a message with severity sev.
func For(sev engine.Severity) lipgloss.Style {
	switch sev {
	case engine.SeverityError:
		return Error
	case engine.SeverityWarning:
		return Warning
	default:
		return Value
	}
}

// Message renders msg in the style of its severity.
func Message(msg string) string {
	if msg == "" {
		return ""
	}
	return For(engine.Classify(msg)).Render(msg)
}
