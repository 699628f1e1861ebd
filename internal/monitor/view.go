package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/gpufleet/internal/ui"
)

// renderView renders the complete view.
func (m Model) renderView() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if m.fetching {
		b.WriteString(m.renderFetching())
		b.WriteString("\n\n")
	}

	b.WriteString(m.renderTable())

	if len(m.report.Failures) > 0 {
		b.WriteString("\n")
		b.WriteString(ui.RenderFailures(m.report.Failures))
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return b.String()
}

// renderHeader renders the title line with batch stats.
func (m Model) renderHeader() string {
	title := lipgloss.NewStyle().
		Foreground(ColorAccent).
		Bold(true).
		Render("gpufleet monitor")

	stats := fmt.Sprintf(" | %d targets", m.total)
	if m.hasReport {
		stats = fmt.Sprintf(" | %d/%d reported | updated %s (%s)",
			len(m.report.Rows), m.report.Total,
			m.lastUpdate.Format("15:04:05"),
			m.elapsed.Round(100*time.Millisecond))
	}

	return HeaderStyle.Render(title + lipgloss.NewStyle().Foreground(ColorTextSecondary).Render(stats))
}

func (m Model) renderFetching() string {
	return m.spinner.View() + " " +
		LabelStyle.Render(fmt.Sprintf("Fetching data... %d/%d", m.done, m.total))
}

// renderTable renders the ranked table plus a fleet-wide memory bar.
func (m Model) renderTable() string {
	if !m.hasReport {
		return ""
	}
	if len(m.report.Rows) == 0 {
		return LabelStyle.Render("No GPU data collected.") + "\n"
	}

	var used, total int64
	for _, r := range m.report.Rows {
		used += r.MemoryUsed
		total += r.MemoryTotal
	}
	var pct float64
	if total > 0 {
		pct = float64(used) / float64(total) * 100
	}

	width := m.width
	if width <= 0 || width > 100 {
		width = 100
	}

	var b strings.Builder
	b.WriteString(SectionHeader("GPU memory", fmt.Sprintf("%.2f%% used", pct), width))
	b.WriteString("\n")
	b.WriteString(ThinProgressBar(width, pct))
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	return b.String()
}

// renderFooter renders the keyboard help footer.
func (m Model) renderFooter() string {
	return FooterStyle.Render(m.help.View(m.keys))
}
