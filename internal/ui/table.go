package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/internal/fleet"
	"github.com/rileyhilliard/gpufleet/internal/host"
	"github.com/rileyhilliard/gpufleet/internal/util"
)

// TableColumn defines a table column with name and width.
type TableColumn struct {
	Title string
	Width int
}

// ReportColumns are the columns of the ranked GPU table.
var ReportColumns = []TableColumn{
	{Title: "Machine", Width: 12},
	{Title: "GPU Utilization (%)", Width: 19},
	{Title: "Memory Used (MiB)", Width: 17},
	{Title: "Total Memory (MiB)", Width: 18},
	{Title: "Memory Left (MiB)", Width: 17},
	{Title: "Memory Used (%)", Width: 15},
}

// NewTable creates a Bubbles table with default styling.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{Title: c.Title, Width: c.Width}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1), // +1 for header
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorPrimary)
	s.Cell = s.Cell.Foreground(ColorPrimary)
	s.Selected = s.Selected.
		Foreground(ColorPrimary).
		Background(ColorMuted).
		Bold(false)

	t.SetStyles(s)
	return t
}

// ReportRows converts ranked rows into table rows.
func ReportRows(rows []fleet.Row) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		out[i] = table.Row{
			r.Target,
			strconv.FormatInt(r.Utilization, 10),
			strconv.FormatInt(r.MemoryUsed, 10),
			strconv.FormatInt(r.MemoryTotal, 10),
			strconv.FormatInt(r.MemoryLeft, 10),
			r.PercentUsed,
		}
	}
	return out
}

// RenderReport renders the ranked table followed by the failures section.
func RenderReport(report fleet.Report) string {
	var sb strings.Builder

	if len(report.Rows) == 0 {
		sb.WriteString(MutedStyle().Render("No GPU data collected."))
		sb.WriteString("\n")
	} else {
		sb.WriteString(NewTable(ReportColumns, ReportRows(report.Rows)).View())
		sb.WriteString("\n")
	}

	if len(report.Failures) > 0 {
		sb.WriteString("\n")
		sb.WriteString(RenderFailures(report.Failures))
	}
	return sb.String()
}

// RenderFailures lists targets that produced no data and why.
func RenderFailures(failures []fleet.Outcome) string {
	var sb strings.Builder

	header := lipgloss.NewStyle().Bold(true).Foreground(ColorError)
	sb.WriteString(header.Render(fmt.Sprintf("%s %s without data", SymbolFail, util.CountNoun(len(failures), "target", "targets"))))
	sb.WriteString("\n")

	for _, o := range failures {
		sb.WriteString("  ")
		sb.WriteString(padRight(o.Target, 14))
		sb.WriteString(ErrorStyle().Render(FailureSummary(o)))
		sb.WriteString("\n")

		for _, a := range o.Attempts {
			line := fmt.Sprintf("    %s %s: %s", SymbolArrow, a.JumpHost, a.Reason)
			sb.WriteString(MutedStyle().Render(line))
			sb.WriteString("\n")
		}
		if hint := errors.SuggestionOf(o.Err); hint != "" {
			sb.WriteString("    ")
			sb.WriteString(MutedStyle().Render(hint))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// FailureSummary is a short description of why an outcome failed.
func FailureSummary(o fleet.Outcome) string {
	switch o.Kind() {
	case fleet.KindUnreachable:
		return "unreachable through every jump host"
	case fleet.KindTimeout:
		return "nvidia-smi timed out via " + o.JumpHost
	case fleet.KindParse:
		return "unexpected nvidia-smi output"
	case fleet.KindExec:
		return "nvidia-smi failed via " + o.JumpHost
	case fleet.KindPanic:
		return "internal error"
	case fleet.KindOK:
		return ""
	}
	if o.Err != nil {
		return firstLine(o.Err.Error())
	}
	return "failed"
}

// JumpRow is one line of the jump-host status table.
type JumpRow struct {
	JumpHost string
	OK       bool
	Latency  time.Duration
	Reason   host.FailReason
}

// RenderJumpTable renders jump-host reachability results.
func RenderJumpTable(rows []JumpRow) string {
	if len(rows) == 0 {
		return "No jump hosts configured\n"
	}

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(ColorMuted)

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("  #  STATUS  JUMP HOST                        RESULT"))
	sb.WriteString("\n")

	for i, row := range rows {
		var icon, result string
		if row.OK {
			icon = SuccessStyle().Render(SymbolComplete)
			result = MutedStyle().Render(formatDuration(row.Latency))
		} else {
			icon = ErrorStyle().Render(SymbolFail)
			result = ErrorStyle().Render(row.Reason.String())
		}
		sb.WriteString(fmt.Sprintf("  %-2d %s       %s%s\n", i+1, icon, padRight(row.JumpHost, 33), result))
	}
	return sb.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), SymbolFail))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// padRight pads a string to the specified visible width.
func padRight(s string, width int) string {
	visibleLen := lipgloss.Width(s)
	if visibleLen >= width {
		return s + " "
	}
	return s + strings.Repeat(" ", width-visibleLen)
}
