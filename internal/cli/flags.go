package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/gpufleet/internal/errors"
)

// TimeoutFlags override the per-stage timeouts from config for one run.
type TimeoutFlags struct {
	Connect string
	Command string
}

// AddTimeoutFlags registers --connect-timeout and --command-timeout on a command.
func AddTimeoutFlags(cmd *cobra.Command, flags *TimeoutFlags) {
	cmd.Flags().StringVar(&flags.Connect, "connect-timeout", "", "jump host connect timeout (e.g., 5s, 2m)")
	cmd.Flags().StringVar(&flags.Command, "command-timeout", "", "nvidia-smi timeout (e.g., 5s, 2m)")
}

// ParseTimeout parses a timeout flag into a duration.
// Returns zero duration if the flag is empty.
func ParseTimeout(flag string) (time.Duration, error) {
	if flag == "" {
		return 0, nil
	}

	duration, err := time.ParseDuration(flag)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("'%s' doesn't look like a valid timeout", flag),
			"Try something like 5s, 2m, or 500ms.")
	}
	if duration <= 0 {
		return 0, errors.New(errors.ErrConfig,
			fmt.Sprintf("Timeout must be positive, got %s", flag),
			"Try something like 5s, 2m, or 500ms.")
	}
	return duration, nil
}

// splitList splits a comma-separated flag, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
