package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	ColorCyan       = lipgloss.Color("#00FFFF")
	ColorGreen      = lipgloss.Color("#00FF00")
	ColorYellow     = lipgloss.Color("#FFFF00")
	ColorRed        = lipgloss.Color("#FF0000")
	ColorMagenta    = lipgloss.Color("#FF00FF")
	ColorBlue       = lipgloss.Color("#5555FF")
	ColorLightGreen = lipgloss.Color("#90EE90")
	ColorWhite      = lipgloss.Color("#FFFFFF")
	ColorDarkGray   = lipgloss.Color("8") // ANSI 8
)

// ConfigureTerminal picks the color profile for output. noColor, NO_COLOR or
// a dumb terminal render plain text.
func ConfigureTerminal(noColor bool) {
	// Warp reports a TERM that makes termenv probe the terminal and stall
	if os.Getenv("TERM_PROGRAM") == "WarpTerminal" {
		os.Setenv("TERM", "dumb")
		os.Setenv("COLORTERM", "truecolor")
	}
	if noColor || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}

// BranchColor colors the default branch red so writes to it stand out
func BranchColor(branch, defaultBranch string) lipgloss.Color {
	switch {
	case branch == defaultBranch:
		return ColorRed
	case branch == "dev" || branch == "develop":
		return ColorGreen
	case branch == "staging":
		return ColorYellow
	default:
		return ColorWhite
	}
}
