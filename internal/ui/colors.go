package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Base palette.
const (
	ColorNeonGreen  lipgloss.Color = "#39FF14"
	ColorNeonCyan   lipgloss.Color = "#00F0FF"
	ColorNeonPink   lipgloss.Color = "#FF2E97"
	ColorNeonPurple lipgloss.Color = "#B026FF"
	ColorNeonAmber  lipgloss.Color = "#FFB000"
)

// Semantic colors for status indication.
const (
	ColorSuccess lipgloss.Color = "#3DDC84"
	ColorError   lipgloss.Color = "#FF5555"
	ColorWarning lipgloss.Color = "#FFB000"
	ColorInfo    lipgloss.Color = "#00C8E0"
)

// Text colors for content hierarchy.
const (
	ColorPrimary   lipgloss.Color = "#E6E6E6"
	ColorSecondary lipgloss.Color = "#7AA2F7"
	ColorMuted     lipgloss.Color = "#6C7086"
)

// GradientColors cycle through the spinner frames.
var GradientColors = []lipgloss.Color{
	ColorNeonPink,
	ColorNeonPurple,
	ColorNeonCyan,
	ColorNeonGreen,
}

// SuccessStyle renders text in the success color.
func SuccessStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorSuccess) }

// ErrorStyle renders text in the error color.
func ErrorStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorError) }

// WarningStyle renders text in the warning color.
func WarningStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorWarning) }

// InfoStyle renders text in the info color.
func InfoStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorInfo) }

// MutedStyle renders secondary text.
func MutedStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorMuted) }

// DisableColors switches lipgloss to plain ASCII output (for --no-color and NO_COLOR).
func DisableColors() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// ColorsDisabledByEnv reports whether NO_COLOR is set.
func ColorsDisabledByEnv() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

// PrintWarning writes a warning line to stderr.
func PrintWarning(msg string) {
	fmt.Fprintln(os.Stderr, WarningStyle().Render(SymbolWarning+" "+msg))
}
