package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Bar block characters.
const (
	barFilled = '█'
	barEmpty  = '░'
)

// RenderUsageBar draws a usage bar, e.g. "██████░░░░  62%".
// Percent is clamped to 0-100. Colors follow getThresholdColor.
func RenderUsageBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}

	filled := int((percent / 100.0) * float64(width))
	bar := strings.Repeat(string(barFilled), filled) + strings.Repeat(string(barEmpty), width-filled)

	style := lipgloss.NewStyle().Foreground(getThresholdColor(percent))
	return style.Render(bar) + fmt.Sprintf(" %3.0f%%", percent)
}

// getThresholdColor maps a usage percentage to green, amber or red.
// Below 60 is green, 60 to 80 is amber, 80 and above is red.
func getThresholdColor(percent float64) lipgloss.Color {
	switch {
	case percent >= 80:
		return ColorError
	case percent >= 60:
		return ColorWarning
	default:
		return ColorSuccess
	}
}
