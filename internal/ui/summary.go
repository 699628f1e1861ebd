package ui

import (
	"fmt"
	"time"

	"github.com/rileyhilliard/gpufleet/internal/fleet"
	"github.com/rileyhilliard/gpufleet/internal/util"
)

// RenderSummary is the one-line footer under the report, e.g.
// "● 11/12 targets reported, 1 failed in 2.3s".
func RenderSummary(report fleet.Report, elapsed time.Duration) string {
	ok := len(report.Rows)
	failed := len(report.Failures)

	symbol, style := SymbolComplete, SuccessStyle()
	switch {
	case ok == 0 && report.Total > 0:
		symbol, style = SymbolFail, ErrorStyle()
	case failed > 0:
		symbol, style = SymbolWarning, WarningStyle()
	}

	msg := fmt.Sprintf("%d/%d %s reported", ok, report.Total, util.Pluralize(report.Total, "target", "targets"))
	if failed > 0 {
		msg += fmt.Sprintf(", %d failed", failed)
	}
	return fmt.Sprintf("%s %s %s", style.Render(symbol), msg, MutedStyle().Render("in "+formatDuration(elapsed)))
}
