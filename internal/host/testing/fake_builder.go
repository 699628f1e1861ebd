// Package testing provides test doubles for the host package.
package testing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rileyhilliard/gpufleet/internal/host"
	"github.com/rileyhilliard/gpufleet/pkg/sshutil"
	sstesting "github.com/rileyhilliard/gpufleet/pkg/sshutil/testing"
)

// DefaultOutput is what fake sessions print for nvidia-smi unless overridden.
const DefaultOutput = "45, 2048, 8192\n"

// Call records one Build invocation.
type Call struct {
	JumpHost string
	Target   string
}

type route struct {
	jump   string
	target string // empty matches every target
}

// FakeBuilder simulates tunnel construction for testing.
// It allows tests to configure which jump/target routes fail or hang
// without real SSH.
type FakeBuilder struct {
	mu        sync.Mutex
	failures  map[route]error
	hangs     map[route]bool
	responses map[string]sstesting.CommandResponse
	sessions  map[string]*sstesting.MockSession
	calls     []Call

	// StageTimeout bounds a hanging route. Zero waits for the context.
	StageTimeout time.Duration
	// Latency is added to every successful build.
	Latency time.Duration
}

var _ host.Builder = (*FakeBuilder)(nil)

// NewFakeBuilder creates a builder where every route succeeds.
func NewFakeBuilder() *FakeBuilder {
	return &FakeBuilder{
		failures:  make(map[route]error),
		hangs:     make(map[route]bool),
		responses: make(map[string]sstesting.CommandResponse),
		sessions:  make(map[string]*sstesting.MockSession),
	}
}

// FailJump makes every build through jumpHost fail. A nil err becomes a
// connection-refused StageError.
func (b *FakeBuilder) FailJump(jumpHost string, err error) *FakeBuilder {
	return b.FailRoute(jumpHost, "", err)
}

// FailRoute makes builds to target through jumpHost fail.
func (b *FakeBuilder) FailRoute(jumpHost, target string, err error) *FakeBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		err = &sshutil.StageError{
			Stage:    sshutil.StageJumpConnect,
			JumpHost: jumpHost,
			Target:   target,
			Cause:    errors.New("dial tcp: connect: connection refused"),
		}
	}
	b.failures[route{jumpHost, target}] = err
	return b
}

// HangRoute makes builds to target through jumpHost block until the
// context is done or StageTimeout passes.
func (b *FakeBuilder) HangRoute(jumpHost, target string) *FakeBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hangs[route{jumpHost, target}] = true
	return b
}

// SetResponse overrides the nvidia-smi response for target.
func (b *FakeBuilder) SetResponse(target string, resp sstesting.CommandResponse) *FakeBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[target] = resp
	return b
}

// Build implements host.Builder.
func (b *FakeBuilder) Build(ctx context.Context, jumpHost string, target host.Target) (sshutil.Session, error) {
	b.mu.Lock()
	b.calls = append(b.calls, Call{JumpHost: jumpHost, Target: target.Name})
	hang := b.hangs[route{jumpHost, target.Name}] || b.hangs[route{jumpHost, ""}]
	failErr, fail := b.failures[route{jumpHost, target.Name}]
	if !fail {
		failErr, fail = b.failures[route{jumpHost, ""}]
	}
	resp, hasResp := b.responses[target.Name]
	b.mu.Unlock()

	if hang {
		var timeout <-chan time.Time
		if b.StageTimeout > 0 {
			timer := time.NewTimer(b.StageTimeout)
			defer timer.Stop()
			timeout = timer.C
		}
		cause := context.DeadlineExceeded
		select {
		case <-ctx.Done():
			cause = ctx.Err()
		case <-timeout:
		}
		return nil, &sshutil.StageError{
			Stage:    sshutil.StageTargetAuth,
			JumpHost: jumpHost,
			Target:   target.Hostname,
			Cause:    cause,
		}
	}
	if fail {
		return nil, failErr
	}

	if b.Latency > 0 {
		select {
		case <-time.After(b.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if !hasResp {
		resp = sstesting.CommandResponse{Stdout: []byte(DefaultOutput)}
	}
	session := sstesting.NewMockSession(jumpHost)
	session.SetCommandResponse("nvidia-smi", resp)

	b.mu.Lock()
	b.sessions[target.Name] = session
	b.mu.Unlock()
	return session, nil
}

// Calls returns every Build invocation in call order.
func (b *FakeBuilder) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallsFor returns the jump hosts tried for target, in order.
func (b *FakeBuilder) CallsFor(target string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var jumps []string
	for _, c := range b.calls {
		if c.Target == target {
			jumps = append(jumps, c.JumpHost)
		}
	}
	return jumps
}

// Session returns the last session handed out for target, or nil.
func (b *FakeBuilder) Session(target string) *sstesting.MockSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[target]
}
