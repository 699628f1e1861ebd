package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/rileyhilliard/gpufleet/internal/host"
)

// JumpHostCheck verifies one jump host accepts an SSH login.
type JumpHostCheck struct {
	JumpHost string
	Dial     host.JumpDialer
	Status   host.JumpStatus // populated after Run
}

func (c *JumpHostCheck) Name() string     { return "jump_" + c.JumpHost }
func (c *JumpHostCheck) Category() string { return CategoryJumps }

func (c *JumpHostCheck) Run(ctx context.Context) CheckResult {
	c.Status = host.CheckJumps(ctx, []string{c.JumpHost}, c.Dial)[0]
	if c.Status.OK {
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s (%s)", c.JumpHost, c.Status.Latency.Round(time.Millisecond)),
		}
	}

	suggestion := fmt.Sprintf("%s may be offline or firewalled", c.JumpHost)
	switch c.Status.Reason {
	case host.FailRefused:
		suggestion = "SSH server may not be running on the jump host"
	case host.FailAuth:
		suggestion = "Check that your public key is in ~/.ssh/authorized_keys on the jump host"
	case host.FailHostKey:
		suggestion = "The jump host key doesn't match known_hosts. Verify it, then remove the old entry"
	case host.FailTimeout:
		suggestion = "Jump host may be offline or blocked by a firewall"
	}
	return CheckResult{
		Status:     StatusFail,
		Message:    fmt.Sprintf("%s: %s", c.JumpHost, c.Status.Reason),
		Suggestion: suggestion,
	}
}

// NewJumpChecks creates one check per jump host, in config order.
func NewJumpChecks(jumpHosts []string, dial host.JumpDialer) []Check {
	checks := make([]Check, len(jumpHosts))
	for i, jh := range jumpHosts {
		checks[i] = &JumpHostCheck{JumpHost: jh, Dial: dial}
	}
	return checks
}
