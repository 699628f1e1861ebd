package host

import (
	"fmt"
	"strings"

	"github.com/rileyhilliard/gpufleet/internal/config"
	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/internal/util"
)

// Target is one machine to poll.
type Target struct {
	Name     string // short display name, e.g. gpu25
	Hostname string // what the jump host dials, e.g. gpu25.doc.ic.ac.uk
}

// TargetsFromConfig expands target patterns and applies the domain suffix.
func TargetsFromConfig(cfg *config.Config) ([]Target, error) {
	names, err := config.ExpandTargets(cfg.Targets)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid target pattern",
			"Ranges look like gpu{25..36} with start <= end")
	}

	targets := make([]Target, 0, len(names))
	for _, name := range names {
		targets = append(targets, Target{Name: name, Hostname: config.Qualify(name, cfg.Domain)})
	}
	return targets, nil
}

// Filter keeps only the targets named in only, in configured order.
// An empty filter returns targets unchanged. Unknown names are an error.
func Filter(targets []Target, only []string) ([]Target, error) {
	if len(only) == 0 {
		return targets, nil
	}

	want := make(map[string]bool, len(only))
	for _, n := range only {
		want[n] = true
	}

	var out []Target
	for _, t := range targets {
		if want[t.Name] || want[t.Hostname] {
			out = append(out, t)
			delete(want, t.Name)
			delete(want, t.Hostname)
		}
	}

	if len(want) > 0 {
		var unknown []string
		for _, n := range only {
			if want[n] {
				unknown = append(unknown, n)
			}
		}
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Not a configured target: %s", strings.Join(unknown, ", ")),
			fmt.Sprintf("Configured targets: %s", util.JoinOrNone(names(targets))))
	}
	return out, nil
}

func names(targets []Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.Name
	}
	return out
}
