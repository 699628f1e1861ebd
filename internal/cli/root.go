package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rileyhilliard/gpufleet/internal/config"
	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/internal/logger"
	"github.com/rileyhilliard/gpufleet/internal/ui"
)

// Global flags
var (
	cfgFile     string
	verbose     bool
	quiet       bool
	noColor     bool
	targetsFlag string
)

// loadedConfig is set by loadConfig so later helpers can reach it.
var loadedConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "gpufleet",
	Short: "Rank GPU machines by free memory, polled over SSH jump hosts",
	Long: `gpufleet polls every configured GPU machine through a jump host,
runs nvidia-smi on each one concurrently and prints them ranked by free
GPU memory.

Jump hosts are tried in the order they are configured. A machine that
can't be reached through any of them is listed under the table with
every attempt and why it failed.

Examples:
  gpufleet                      # poll and print the ranked table
  gpufleet --targets gpu25,gpu30
  gpufleet --json
  gpufleet monitor              # interactive view, r to refresh
  gpufleet jumps                # check the jump hosts only
  gpufleet doctor               # diagnose setup problems`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupOutput()
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return pollCommand(cmd.Context(), pollOptions{Targets: targetsFlag, Timeouts: pollFlags})
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./.gpufleet.yaml, then ~/.config/gpufleet/config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "show every connection attempt and debug logs")
	pf.BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")
	pf.BoolVar(&machineMode, "json", false, "print machine-readable JSON")
	pf.StringVar(&targetsFlag, "targets", "", "only poll these targets (comma-separated)")

	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	AddTimeoutFlags(rootCmd, &pollFlags)
}

// setupOutput applies the color and logging flags.
func setupOutput() {
	if noColor || machineMode || ui.ColorsDisabledByEnv() {
		ui.DisableColors()
	}
	logger.SetDefault(logger.New(os.Stderr, logLevel(), ""))
}

func logLevel() zerolog.Level {
	switch {
	case verbose:
		return zerolog.DebugLevel
	case quiet:
		return zerolog.WarnLevel
	default:
		return logger.LevelFromEnv()
	}
}

// loadConfig finds, loads and validates the config. Any problem is an
// ErrConfig and nothing has been dialed yet.
func loadConfig() (*config.Config, error) {
	cfg, path, err := config.FindAndLoad(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	loadedConfig = cfg
	logger.Default().Debug("loaded config path=%s targets=%d jump_hosts=%d", path, len(cfg.Targets), len(cfg.JumpHosts))
	return cfg, nil
}

// Config returns the config loaded by the running command, or nil.
func Config() *config.Config {
	return loadedConfig
}

// Execute runs the root command and exits with the matching code.
// Ctrl+C cancels in-flight polls; outcomes gathered so far are still shown.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	os.Exit(handleError(err))
}

// handleError reports err the way the active output mode expects and
// returns the process exit code.
func handleError(err error) int {
	if code, ok := errors.GetExitCode(err); ok {
		return code
	}

	if machineMode {
		_ = WriteJSONFromError(os.Stdout, err)
	} else {
		fmt.Fprintln(os.Stderr, renderError(err))
		if isUnknownCommandError(err) {
			if name := extractUnknownCommand(err); name != "" {
				fmt.Fprintf(os.Stderr, "\n  '%s' isn't a gpufleet command. Run 'gpufleet --help' to see what is.\n", name)
			}
		}
	}

	return exitCodeFor(err)
}

func renderError(err error) string {
	var fleetErr *errors.Error
	if stderrors.As(err, &fleetErr) {
		return strings.TrimRight(fleetErr.Error(), "\n")
	}
	msg := ui.SymbolFail + " " + err.Error()
	if hint := errors.SuggestionOf(err); hint != "" {
		msg += "\n\n  " + hint
	}
	return msg
}

func exitCodeFor(err error) int {
	if errors.IsCode(err, errors.ErrConfig) || isUnknownCommandError(err) {
		return errors.ExitConfig
	}
	return errors.ExitFailure
}

// isUnknownCommandError checks whether cobra rejected the command line.
func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag")
}

// extractUnknownCommand pulls the command name out of cobra's
// `unknown command "foo" for "gpufleet"` message.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start == -1 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end == -1 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
