package doctor

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/rileyhilliard/gpufleet/internal/config"
	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/pkg/sshutil"
)

// SSHKeyCheck verifies the configured private key loads without a
// passphrase.
type SSHKeyCheck struct {
	User    string
	KeyPath string
}

func (c *SSHKeyCheck) Name() string     { return "ssh_key" }
func (c *SSHKeyCheck) Category() string { return CategorySSH }

func (c *SSHKeyCheck) Run(context.Context) CheckResult {
	creds, err := sshutil.LoadCredentials(c.User, c.KeyPath)
	if err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    errors.MessageOf(err),
			Suggestion: errors.SuggestionOf(err),
		}
	}

	result := CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("SSH key %s (%s)", creds.KeyPath, creds.PublicKey().Type()),
	}
	if info, err := os.Stat(creds.KeyPath); err == nil && info.Mode().Perm()&0077 != 0 {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("SSH key %s is readable by other users", creds.KeyPath)
		result.Suggestion = fmt.Sprintf("Fix: chmod 600 %s", creds.KeyPath)
	}
	return result
}

// KnownHostsCheck verifies the host key policy can be honored.
type KnownHostsCheck struct {
	Policy string
	Path   string
}

func (c *KnownHostsCheck) Name() string     { return "known_hosts" }
func (c *KnownHostsCheck) Category() string { return CategorySSH }

func (c *KnownHostsCheck) Run(context.Context) CheckResult {
	policy := sshutil.HostKeyPolicy(c.Policy)
	if !policy.Valid() {
		return CheckResult{
			Status:     StatusFail,
			Message:    fmt.Sprintf("Unknown host key policy %q", c.Policy),
			Suggestion: "Set host_key.policy to tofu, strict or ignore",
		}
	}
	if policy == sshutil.HostKeyIgnore {
		return CheckResult{
			Status:     StatusWarn,
			Message:    "Host keys are not verified (policy: ignore)",
			Suggestion: "Use policy tofu to record keys on first connect",
		}
	}

	path := config.ExpandTilde(c.Path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if policy == sshutil.HostKeyStrict {
			return CheckResult{
				Status:     StatusFail,
				Message:    fmt.Sprintf("known_hosts file %s doesn't exist (policy: strict)", path),
				Suggestion: "Connect once with 'ssh' to each host, or switch host_key.policy to tofu",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s will be created on first connect", path),
		}
	}

	if _, err := knownhosts.New(path); err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    fmt.Sprintf("Can't parse %s: %v", path, err),
			Suggestion: "Remove the malformed line, or point host_key.known_hosts at another file",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("known_hosts: %s (policy: %s)", path, policy)}
}
