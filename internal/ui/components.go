package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// SectionHeader creates a styled section header with a title and color
// Example: "─── TITLE ───────────"
func SectionHeader(title string, color lipgloss.Color) string {
	dashes := strings.Repeat("─", max(25-len(title), 0))
	headerStyle := lipgloss.NewStyle().Foreground(color)
	titleStyle := lipgloss.NewStyle().Foreground(color).Bold(true)

	return fmt.Sprintf("%s%s%s",
		headerStyle.Render("  ─── "),
		titleStyle.Render(title),
		headerStyle.Render(" "+dashes),
	)
}

// BranchFlowDiagram shows a merge from source into dest
// Example: feature ====> main
func BranchFlowDiagram(source, dest, defaultBranch string) string {
	width := max(len(source), len(dest), 7)
	srcColor := BranchColor(source, defaultBranch)
	dstColor := BranchColor(dest, defaultBranch)

	srcStyle := lipgloss.NewStyle().Foreground(srcColor)
	srcBoldStyle := lipgloss.NewStyle().Foreground(srcColor).Bold(true)
	dstStyle := lipgloss.NewStyle().Foreground(dstColor)
	dstBoldStyle := lipgloss.NewStyle().Foreground(dstColor).Bold(true)
	arrowStyle := lipgloss.NewStyle().Foreground(ColorCyan)

	bar := strings.Repeat("─", width+2)
	line1 := srcStyle.Render("  ┌"+bar+"┐") + "         " + dstStyle.Render("┌"+bar+"┐")
	line2 := srcStyle.Render("  │ ") + srcBoldStyle.Render(centerText(source, width)) + srcStyle.Render(" │") +
		arrowStyle.Render("  ====>  ") +
		dstStyle.Render("│ ") + dstBoldStyle.Render(centerText(dest, width)) + dstStyle.Render(" │")
	line3 := srcStyle.Render("  └"+bar+"┘") + "         " + dstStyle.Render("└"+bar+"┘")

	return line1 + "\n" + line2 + "\n" + line3
}

// centerText centers a string within a given width
func centerText(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	leftPad := (width - len(s)) / 2
	rightPad := width - len(s) - leftPad
	return strings.Repeat(" ", leftPad) + s + strings.Repeat(" ", rightPad)
}

// StatusIcon returns the icon and color for an outcome
func StatusIcon(status string) (string, lipgloss.Color) {
	switch status {
	case "added", "created", "merged", "clean", "pushed":
		return "✓", ColorGreen
	case "modified", "updated", "fast-forward":
		return "↻", ColorBlue
	case "up-to-date":
		return "⊘", ColorYellow
	case "removed", "conflicting", "conflicted", "failed":
		return "✗", ColorRed
	default:
		return "·", ColorWhite
	}
}

// Box creates a bordered box
func Box(content string, borderColor lipgloss.Color) string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1)

	return style.Render(content)
}

// KeyValue renders an aligned "key  value" line
func KeyValue(key, value string, width int) string {
	keyStyle := lipgloss.NewStyle().Foreground(ColorDarkGray).Width(width)
	return "  " + keyStyle.Render(key) + " " + value
}

// Arrow returns an arrow indicator for the current item
func Arrow(current bool) string {
	if current {
		return "▶ "
	}
	return "  "
}
