package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/internal/host"
	"github.com/rileyhilliard/gpufleet/internal/ui"
)

var jumpsFlags TimeoutFlags

// jumpsCmd checks every jump host without touching targets.
var jumpsCmd = &cobra.Command{
	Use:   "jumps",
	Short: "Check which jump hosts accept a connection",
	Long: `Dial every configured jump host concurrently and report whether the
SSH handshake succeeds, how long it took, and why it failed if it did.

No targets are contacted. Use this when a poll reports targets as
unreachable through every jump host.

Examples:
  gpufleet jumps
  gpufleet jumps --connect-timeout 3s --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return jumpsCommand(cmd.Context())
	},
}

func init() {
	jumpsCmd.Flags().StringVar(&jumpsFlags.Connect, "connect-timeout", "", "jump host connect timeout (e.g., 5s, 2m)")
	rootCmd.AddCommand(jumpsCmd)
}

func jumpsCommand(ctx context.Context) error {
	connectTimeout, err := ParseTimeout(jumpsFlags.Connect)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if connectTimeout > 0 {
		cfg.Timeouts.Connect = connectTimeout
	}

	opts, creds, err := sshSetup(cfg)
	if err != nil {
		return err
	}

	return runJumps(ctx, os.Stdout, cfg.JumpHosts, host.TunnelDialer(creds, opts))
}

func runJumps(ctx context.Context, out io.Writer, jumpHosts []string, dial host.JumpDialer) error {
	start := time.Now()
	statuses := host.CheckJumps(ctx, jumpHosts, dial)
	elapsed := time.Since(start)

	up := 0
	for _, s := range statuses {
		if s.OK {
			up++
		}
	}

	if machineMode {
		if err := WriteJSONSuccess(out, NewJumpJSON(statuses)); err != nil {
			return err
		}
	} else {
		rows := make([]ui.JumpRow, len(statuses))
		for i, s := range statuses {
			rows[i] = ui.JumpRow{JumpHost: s.JumpHost, OK: s.OK, Latency: s.Latency, Reason: s.Reason}
		}
		fmt.Fprint(out, ui.RenderJumpTable(rows))
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%d/%d jump hosts reachable %s\n", up, len(statuses),
			ui.MutedStyle().Render(fmt.Sprintf("in %.1fs", elapsed.Seconds())))
	}

	switch {
	case up == len(statuses):
		return nil
	case up == 0:
		return errors.NewExitError(errors.ExitFailure)
	default:
		return errors.NewExitError(errors.ExitPartial)
	}
}
