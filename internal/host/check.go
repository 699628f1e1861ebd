package host

import (
	"context"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/rileyhilliard/gpufleet/pkg/sshutil"
)

// JumpStatus is the result of checking one jump host.
type JumpStatus struct {
	JumpHost string
	OK       bool
	Latency  time.Duration
	Reason   FailReason
	Err      error
}

// JumpDialer opens a plain SSH connection to a jump host.
type JumpDialer func(ctx context.Context, jumpHost string) (*ssh.Client, error)

// TunnelDialer returns a JumpDialer backed by sshutil.DialJump.
func TunnelDialer(creds *sshutil.Credentials, opts sshutil.Options) JumpDialer {
	return func(ctx context.Context, jumpHost string) (*ssh.Client, error) {
		return sshutil.DialJump(ctx, jumpHost, creds, opts)
	}
}

// CheckJumps dials every jump host concurrently and reports reachability.
// Results come back in the same order as jumpHosts.
func CheckJumps(ctx context.Context, jumpHosts []string, dial JumpDialer) []JumpStatus {
	results := make([]JumpStatus, len(jumpHosts))

	var g errgroup.Group
	for i, jumpHost := range jumpHosts {
		g.Go(func() error {
			start := time.Now()
			client, err := dial(ctx, jumpHost)
			status := JumpStatus{JumpHost: jumpHost, Latency: time.Since(start)}
			if err != nil {
				status.Err = err
				status.Reason = Categorize(err)
			} else {
				status.OK = true
				client.Close()
			}
			results[i] = status
			return nil
		})
	}
	_ = g.Wait()

	return results
}
