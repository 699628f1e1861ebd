package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/pkg/sshutil"
)

var hostnameRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)

// Validate checks the config before any network activity and returns a
// structured ErrConfig describing the first problem found.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but gpufleet only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade gpufleet to read this config.")
	}

	if len(cfg.Targets) == 0 {
		return errors.New(errors.ErrConfig,
			"No targets configured",
			"Add machines under 'targets' in .gpufleet.yaml, e.g. targets: [\"gpu{25..36}\"]")
	}
	if len(cfg.JumpHosts) == 0 {
		return errors.New(errors.ErrConfig,
			"No jump hosts configured",
			"Add at least one entry under 'jump_hosts' in .gpufleet.yaml, or set GPUFLEET_JUMP_HOSTS")
	}
	if strings.TrimSpace(cfg.User) == "" {
		return errors.New(errors.ErrConfig,
			"No SSH user configured",
			"Set 'user' in .gpufleet.yaml or GPUFLEET_USER")
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return errors.New(errors.ErrConfig,
			"No SSH key configured",
			"Set 'key' in .gpufleet.yaml to your private key path")
	}

	for i, jh := range cfg.JumpHosts {
		if strings.TrimSpace(jh) == "" || strings.ContainsAny(jh, " \t@") {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Jump host #%d (%q) isn't a valid host", i+1, jh),
				"Use a hostname, host:port, or an alias from ~/.ssh/config. The user comes from 'user'.")
		}
	}

	names, err := ExpandTargets(cfg.Targets)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid target pattern",
			fmt.Sprintf("Ranges look like gpu{25..36} with start <= end and at most %d names", MaxPatternSize))
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if !hostnameRe.MatchString(name) {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Target %q isn't a valid hostname", name),
				"Target names may contain letters, digits, dots, dashes and underscores")
		}
		if seen[name] {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Target %q is listed more than once", name),
				"Remove the duplicate or narrow the overlapping range")
		}
		seen[name] = true
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Port %d is out of range", cfg.Port),
			"Use a port between 1 and 65535 (usually 22)")
	}
	if cfg.MaxParallel < 0 {
		return errors.New(errors.ErrConfig,
			"max_parallel can't be negative",
			"Use 0 to poll every target at once")
	}
	if cfg.DialRate < 0 {
		return errors.New(errors.ErrConfig,
			"dial_rate can't be negative",
			"Use 0 for no limit")
	}

	if err := validateTimeouts(cfg.Timeouts); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'timeouts' section in .gpufleet.yaml.")
	}

	if !sshutil.HostKeyPolicy(cfg.HostKey.Policy).Valid() {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown host_key.policy %q", cfg.HostKey.Policy),
			"Use 'tofu', 'strict', or 'ignore'")
	}

	return nil
}

func validateTimeouts(t TimeoutConfig) error {
	stages := []struct {
		name string
		d    time.Duration
	}{
		{"connect", t.Connect},
		{"channel", t.Channel},
		{"auth", t.Auth},
		{"command", t.Command},
	}
	for _, s := range stages {
		if s.d <= 0 {
			return fmt.Errorf("timeouts.%s must be positive, got %s", s.name, s.d)
		}
	}
	return nil
}
