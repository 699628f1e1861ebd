package gpu

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/internal/logger"
	"github.com/rileyhilliard/gpufleet/pkg/sshutil"
)

// Prober runs QueryCommand over a session and parses the result.
type Prober struct {
	Timeout time.Duration
	Log     logger.Logger
}

// NewProber creates a Prober with the given command timeout.
func NewProber(timeout time.Duration, log logger.Logger) *Prober {
	if log == nil {
		log = logger.Noop()
	}
	return &Prober{Timeout: timeout, Log: log}
}

// Probe runs the query on session and returns a Sample for target. The
// caller owns session and closes it whatever the outcome.
func (p *Prober) Probe(ctx context.Context, target string, session sshutil.Session) (*Sample, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	stdout, stderr, exitCode, err := session.Run(ctx, QueryCommand)
	if len(stderr) > 0 {
		p.Log.Debug("%s: nvidia-smi stderr: %s", target, strings.TrimSpace(string(stderr)))
	}
	if err != nil {
		if errors.CodeOf(err) == "" {
			err = errors.WrapWithCode(err, errors.ErrExec,
				fmt.Sprintf("Running nvidia-smi on %s failed", target), "")
		}
		return nil, err
	}
	if exitCode != 0 {
		return nil, errors.New(errors.ErrExec,
			fmt.Sprintf("nvidia-smi exited %d on %s", exitCode, target),
			firstLine(stderr, "Check that nvidia-smi is installed on the target."))
	}

	sample, err := Parse(target, string(stdout))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrParse,
			fmt.Sprintf("Unexpected nvidia-smi output from %s", target),
			errors.SuggestionOf(err))
	}
	sample.JumpHost = session.JumpHost()
	return sample, nil
}

func firstLine(b []byte, fallback string) string {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return fallback
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
