package cli

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/internal/fleet"
	"github.com/rileyhilliard/gpufleet/internal/logger"
	"github.com/rileyhilliard/gpufleet/internal/monitor"
)

var monitorFlags TimeoutFlags

// monitorCmd starts the interactive view.
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive ranked view, refreshed on demand",
	Long: `Start an interactive view of the ranked GPU table.

The fleet is polled once at start. Press r to poll again; while a poll
is running a spinner counts finished targets and r is ignored.

Keyboard shortcuts:
  q / Ctrl+C  Quit
  r           Poll again
  up/k        Select previous row
  down/j      Select next row
  ?           Show help

Examples:
  gpufleet monitor
  gpufleet monitor --targets gpu25,gpu30`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return monitorCommand(cmd.Context())
	},
}

func init() {
	AddTimeoutFlags(monitorCmd, &monitorFlags)
	rootCmd.AddCommand(monitorCmd)
}

func monitorCommand(ctx context.Context) error {
	if machineMode || !isTerminal(os.Stdout) {
		return errors.New(errors.ErrConfig,
			"monitor needs an interactive terminal",
			"Use 'gpufleet poll' (optionally with --json) for scripts and pipes.")
	}

	connectTimeout, err := ParseTimeout(monitorFlags.Connect)
	if err != nil {
		return err
	}
	commandTimeout, err := ParseTimeout(monitorFlags.Command)
	if err != nil {
		return err
	}

	wf, err := SetupWorkflow(WorkflowOptions{
		Targets:        targetsFlag,
		ConnectTimeout: connectTimeout,
		CommandTimeout: commandTimeout,
	})
	if err != nil {
		return err
	}

	// Log lines would tear the alt screen; keep them quiet while it's up.
	wf.Selector.SetLogger(logger.Noop())
	wf.Collector.SetLogger(logger.Noop())

	model := monitor.NewModel(ctx, collectFunc(wf), len(wf.Targets))
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// collectFunc adapts the workflow's collector to the monitor. Batches
// never overlap, so the progress hook can be swapped per batch.
func collectFunc(wf *WorkflowContext) monitor.CollectFunc {
	return func(ctx context.Context, progress func(fleet.Outcome)) []fleet.Outcome {
		wf.Collector.OnOutcome(progress)
		return wf.Collector.Collect(ctx, wf.Targets)
	}
}
