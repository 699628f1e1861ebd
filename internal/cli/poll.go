package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/internal/fleet"
	"github.com/rileyhilliard/gpufleet/internal/ui"
)

// pollOptions holds the flags of a one-shot poll.
type pollOptions struct {
	Targets  string
	Timeouts TimeoutFlags
}

var pollFlags TimeoutFlags

// pollCmd is the explicit form of the root command.
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll every target once and print them ranked by free GPU memory",
	Long: `Connect to every target through the first working jump host, run
nvidia-smi, and print one ranked table. Targets with no data are listed
below it with every jump host tried.

Exit codes:
  0  every target reported
  1  no target reported
  2  config problem, nothing was dialed
  3  some targets reported, some failed

Examples:
  gpufleet poll
  gpufleet poll --targets gpu25,gpu30
  gpufleet poll --command-timeout 5s --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return pollCommand(cmd.Context(), pollOptions{Targets: targetsFlag, Timeouts: pollFlags})
	},
}

func init() {
	AddTimeoutFlags(pollCmd, &pollFlags)
	rootCmd.AddCommand(pollCmd)
}

func pollCommand(ctx context.Context, opts pollOptions) error {
	connectTimeout, err := ParseTimeout(opts.Timeouts.Connect)
	if err != nil {
		return err
	}
	commandTimeout, err := ParseTimeout(opts.Timeouts.Command)
	if err != nil {
		return err
	}

	wfOpts := WorkflowOptions{
		Targets:        opts.Targets,
		ConnectTimeout: connectTimeout,
		CommandTimeout: commandTimeout,
	}
	if verbose && !machineMode {
		printer := ui.NewEventPrinter(os.Stderr)
		printer.ShowAll(true)
		wfOpts.Events = printer.Handle
	}

	wf, err := SetupWorkflow(wfOpts)
	if err != nil {
		return err
	}

	interactive := !machineMode && isTerminal(os.Stderr)
	return runPoll(ctx, os.Stdout, os.Stderr, wf, interactive)
}

// runPoll collects, ranks and prints one batch. interactive shows a
// spinner on errw while targets are outstanding.
func runPoll(ctx context.Context, out, errw io.Writer, wf *WorkflowContext, interactive bool) error {
	var spinner *ui.Spinner
	if interactive {
		spinner = ui.NewSpinner(errw, "Fetching data...")
		spinner.SetTotal(len(wf.Targets))
		wf.Collector.OnOutcome(func(fleet.Outcome) { spinner.Increment() })
		spinner.Start()
	}

	start := time.Now()
	outcomes := wf.Collector.Collect(ctx, wf.Targets)
	elapsed := time.Since(start)

	if spinner != nil {
		spinner.Stop()
	}

	report := fleet.Rank(outcomes)
	wf.Log.Debug("poll finished targets=%d ok=%d failed=%d elapsed=%s",
		report.Total, len(report.Rows), len(report.Failures), elapsed)

	if machineMode {
		if err := writePollJSON(out, report, elapsed); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, ui.RenderReport(report))
		fmt.Fprintln(out)
		fmt.Fprintln(out, ui.RenderSummary(report, elapsed))
	}

	return pollExit(report)
}

func writePollJSON(w io.Writer, report fleet.Report, elapsed time.Duration) error {
	data := NewPollJSON(report, elapsed)
	if report.Complete() {
		return WriteJSONSuccess(w, data)
	}
	return WriteJSONPartial(w, data, &JSONError{
		Code:    ErrCodePartial,
		Message: fmt.Sprintf("%d of %d targets produced no data", len(report.Failures), report.Total),
	})
}

// pollExit maps a finished report to the process exit status. The report
// has already been printed, so the error carries only the code.
func pollExit(report fleet.Report) error {
	switch {
	case report.Complete():
		return nil
	case len(report.Rows) == 0:
		return errors.NewExitError(errors.ExitFailure)
	default:
		return errors.NewExitError(errors.ExitPartial)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
