package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// ANSI palette colors, so the output follows the terminal theme.
var (
	TitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true).MarginBottom(1)

	UsageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

	// DescStyle is dimmed so descriptions recede behind names
	DescStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	FlagStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

	LabelStyle = lipgloss.NewStyle().Bold(true)

	goodStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	badStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Score renders a [0, 1] health score colored against the reset threshold.
func Score(v, threshold float64) string {
	text := fmt.Sprintf("%.2f", v)
	switch {
	case v < threshold:
		return badStyle.Render(text)
	case v < threshold+0.15:
		return warnStyle.Render(text)
	default:
		return goodStyle.Render(text)
	}
}

// Row renders a padded "label  value" line.
func Row(label, value string) string {
	return fmt.Sprintf("  %s %s", LabelStyle.Render(fmt.Sprintf("%-20s", label)), value)
}
