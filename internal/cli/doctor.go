package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rileyhilliard/gpufleet/internal/doctor"
	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/internal/host"
	"github.com/rileyhilliard/gpufleet/internal/ui"
)

var doctorFlags TimeoutFlags

// doctorCmd runs every diagnostic that doesn't touch a target.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose config, SSH key, known_hosts and jump hosts",
	Long: `Check everything a poll depends on before any target is dialed:
the config file, the SSH key, the known_hosts file and a login on each
jump host. Later checks are skipped when the config can't be used.

Examples:
  gpufleet doctor
  gpufleet doctor --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doctorCommand(cmd.Context(), os.Stdout)
	},
}

func init() {
	doctorCmd.Flags().StringVar(&doctorFlags.Connect, "connect-timeout", "", "jump host connect timeout (e.g., 5s, 2m)")
	rootCmd.AddCommand(doctorCmd)
}

// DoctorJSON is the data payload of 'doctor --json'.
type DoctorJSON struct {
	Results []doctor.CheckResult `json:"results"`
	Summary DoctorSummaryJSON    `json:"summary"`
}

// DoctorSummaryJSON counts results by status.
type DoctorSummaryJSON struct {
	Pass     int  `json:"pass"`
	Warn     int  `json:"warn"`
	Fail     int  `json:"fail"`
	AllClear bool `json:"all_clear"`
}

func doctorCommand(ctx context.Context, out io.Writer) error {
	connectTimeout, err := ParseTimeout(doctorFlags.Connect)
	if err != nil {
		return err
	}
	return reportDoctor(out, runDoctor(ctx, cfgFile, connectTimeout, nil))
}

// runDoctor runs the checks in stages: config, then SSH, then jump hosts.
// A stage only runs when the previous one left something to check with.
// dial replaces the real jump host dialer when non-nil.
func runDoctor(ctx context.Context, configPath string, connectTimeout time.Duration, dial host.JumpDialer) []doctor.CheckResult {
	valid := &doctor.ConfigValidCheck{ConfigPath: configPath}
	results := doctor.RunAll(ctx, []doctor.Check{
		&doctor.ConfigFileCheck{ConfigPath: configPath},
		valid,
	})
	cfg := valid.Cfg
	if cfg == nil {
		return results
	}
	if connectTimeout > 0 {
		cfg.Timeouts.Connect = connectTimeout
	}

	sshResults := doctor.RunAll(ctx, []doctor.Check{
		&doctor.SSHKeyCheck{User: cfg.User, KeyPath: cfg.Key},
		&doctor.KnownHostsCheck{Policy: cfg.HostKey.Policy, Path: cfg.HostKey.KnownHosts},
	})
	results = append(results, sshResults...)
	if doctor.HasFailures(sshResults) {
		return results
	}

	if dial == nil {
		opts, creds, err := sshSetup(cfg)
		if err != nil {
			return append(results, doctor.CheckResult{
				Name:       "ssh_setup",
				Category:   doctor.CategorySSH,
				Status:     doctor.StatusFail,
				Message:    errors.MessageOf(err),
				Suggestion: errors.SuggestionOf(err),
			})
		}
		dial = host.TunnelDialer(creds, opts)
	}

	return append(results, doctor.RunAll(ctx, doctor.NewJumpChecks(cfg.JumpHosts, dial))...)
}

// reportDoctor prints results and turns any failed check into exit code 1.
func reportDoctor(out io.Writer, results []doctor.CheckResult) error {
	if machineMode {
		counts := doctor.CountByStatus(results)
		data := DoctorJSON{
			Results: results,
			Summary: DoctorSummaryJSON{
				Pass:     counts[doctor.StatusPass],
				Warn:     counts[doctor.StatusWarn],
				Fail:     counts[doctor.StatusFail],
				AllClear: !doctor.HasIssues(results),
			},
		}
		if err := WriteJSONSuccess(out, data); err != nil {
			return err
		}
	} else {
		renderDoctorText(out, results)
	}

	if doctor.HasFailures(results) {
		return errors.NewExitError(errors.ExitFailure)
	}
	return nil
}

func renderDoctorText(out io.Writer, results []doctor.CheckResult) {
	headerStyle := lipgloss.NewStyle().Bold(true)

	fmt.Fprintln(out)
	fmt.Fprintln(out, headerStyle.Render("gpufleet diagnostic report"))
	fmt.Fprintln(out)

	grouped := doctor.GroupByCategory(results)
	for _, category := range doctor.Categories {
		group := grouped[category]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintln(out, headerStyle.Render(category))
		for _, r := range group {
			renderCheckResult(out, r)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, strings.Repeat("\u2501", 60))
	fmt.Fprintln(out)
	if doctor.HasIssues(results) {
		fmt.Fprintf(out, "%s %s\n", ui.ErrorStyle().Render(ui.SymbolFail), doctor.Summary(results))
	} else {
		fmt.Fprintf(out, "%s %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), doctor.Summary(results))
	}
	fmt.Fprintln(out)
}

func renderCheckResult(out io.Writer, r doctor.CheckResult) {
	var symbol string
	var style lipgloss.Style
	switch r.Status {
	case doctor.StatusPass:
		symbol, style = ui.SymbolComplete, ui.SuccessStyle()
	case doctor.StatusWarn:
		symbol, style = ui.SymbolWarning, ui.WarningStyle()
	default:
		symbol, style = ui.SymbolFail, ui.ErrorStyle()
	}

	fmt.Fprintf(out, "  %s %s\n", style.Render(symbol), r.Message)
	if r.Suggestion != "" && r.Status != doctor.StatusPass {
		for _, line := range strings.Split(r.Suggestion, "\n") {
			fmt.Fprintf(out, "    %s\n", ui.MutedStyle().Render(line))
		}
	}
}
