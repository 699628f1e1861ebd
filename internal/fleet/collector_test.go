package fleet_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rileyhilliard/gpufleet/internal/fleet"
	"github.com/rileyhilliard/gpufleet/internal/gpu"
	"github.com/rileyhilliard/gpufleet/internal/host"
	hosttest "github.com/rileyhilliard/gpufleet/internal/host/testing"
	"github.com/rileyhilliard/gpufleet/internal/logger"
	sshtest "github.com/rileyhilliard/gpufleet/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTargets(n int) []host.Target {
	targets := make([]host.Target, n)
	for i := range targets {
		name := fmt.Sprintf("gpu%02d", i+1)
		targets[i] = host.Target{Name: name, Hostname: name + ".doc.ic.ac.uk"}
	}
	return targets
}

func byTarget(outcomes []fleet.Outcome) map[string]fleet.Outcome {
	m := make(map[string]fleet.Outcome, len(outcomes))
	for _, o := range outcomes {
		m[o.Target] = o
	}
	return m
}

func TestCollect_FallbackAcrossFleet(t *testing.T) {
	targets := makeTargets(12)
	fake := hosttest.NewFakeBuilder()
	for i, tgt := range targets {
		if i < 6 {
			fake.FailRoute("shell1", tgt.Name, nil)
		}
		// Distinct free memory so the ranking is checkable.
		fake.SetResponse(tgt.Name, sshtest.CommandResponse{
			Stdout: []byte(fmt.Sprintf("10, %d, 8192\n", 1000+i*100)),
		})
	}

	sel := host.NewSelector([]string{"shell1", "shell2"}, fake)
	c := fleet.NewCollector(sel, gpu.NewProber(time.Second, nil))

	outcomes := c.Collect(context.Background(), targets)
	require.Len(t, outcomes, 12)

	got := byTarget(outcomes)
	require.Len(t, got, 12, "exactly one outcome per target")

	for i, tgt := range targets {
		o := got[tgt.Name]
		require.True(t, o.OK(), "%s: %v", tgt.Name, o.Err)
		if i < 6 {
			assert.Equal(t, "shell2", o.JumpHost, tgt.Name)
			require.Len(t, o.Attempts, 1, tgt.Name)
			assert.Equal(t, "shell1", o.Attempts[0].JumpHost)
			assert.Equal(t, []string{"shell1", "shell2"}, fake.CallsFor(tgt.Name))
		} else {
			assert.Equal(t, "shell1", o.JumpHost, tgt.Name)
			assert.Empty(t, o.Attempts, tgt.Name)
			assert.Equal(t, []string{"shell1"}, fake.CallsFor(tgt.Name))
		}
		assert.Equal(t, o.JumpHost, o.Sample.JumpHost)
		assert.True(t, fake.Session(tgt.Name).Closed(), "%s session should be closed", tgt.Name)
	}

	report := fleet.Rank(outcomes)
	require.Len(t, report.Rows, 12)
	assert.Empty(t, report.Failures)
	assert.True(t, report.Complete())
	assert.Equal(t, "gpu01", report.Rows[0].Target, "least used memory ranks first")
	assert.Equal(t, "gpu12", report.Rows[11].Target)
}

func TestCollect_HungProbeDoesNotBlockOthers(t *testing.T) {
	targets := makeTargets(12)
	fake := hosttest.NewFakeBuilder().
		SetResponse("gpu05", sshtest.CommandResponse{Hang: true})

	sel := host.NewSelector([]string{"shell1"}, fake)
	c := fleet.NewCollector(sel, gpu.NewProber(100*time.Millisecond, nil))

	start := time.Now()
	outcomes := c.Collect(context.Background(), targets)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, outcomes, 12)
	got := byTarget(outcomes)

	hung := got["gpu05"]
	assert.False(t, hung.OK())
	assert.Nil(t, hung.Sample)
	assert.True(t, stderrors.Is(hung.Err, context.DeadlineExceeded))
	assert.Equal(t, fleet.KindTimeout, hung.Kind())
	assert.True(t, fake.Session("gpu05").Closed())

	for _, tgt := range targets {
		if tgt.Name == "gpu05" {
			continue
		}
		assert.True(t, got[tgt.Name].OK(), tgt.Name)
	}

	report := fleet.Rank(outcomes)
	assert.Len(t, report.Rows, 11)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "gpu05", report.Failures[0].Target)
}

func TestCollect_HungConnectDoesNotBlockOthers(t *testing.T) {
	targets := makeTargets(12)
	fake := hosttest.NewFakeBuilder().HangRoute("shell1", "gpu03")
	fake.StageTimeout = 100 * time.Millisecond

	sel := host.NewSelector([]string{"shell1"}, fake)
	c := fleet.NewCollector(sel, gpu.NewProber(time.Second, nil))

	start := time.Now()
	outcomes := c.Collect(context.Background(), targets)
	assert.Less(t, time.Since(start), 2*time.Second)

	got := byTarget(outcomes)
	require.Len(t, got, 12)

	hung := got["gpu03"]
	assert.False(t, hung.OK())
	assert.Equal(t, fleet.KindUnreachable, hung.Kind())
	require.Len(t, hung.Attempts, 1)
	assert.Equal(t, host.FailTimeout, hung.Attempts[0].Reason)

	ok := 0
	for _, o := range outcomes {
		if o.OK() {
			ok++
		}
	}
	assert.Equal(t, 11, ok)
}

func TestCollect_AllJumpHostsDown(t *testing.T) {
	targets := makeTargets(3)
	fake := hosttest.NewFakeBuilder().FailJump("shell1", nil).FailJump("shell2", nil)
	sel := host.NewSelector([]string{"shell1", "shell2"}, fake)
	c := fleet.NewCollector(sel, gpu.NewProber(time.Second, nil))

	outcomes := c.Collect(context.Background(), targets)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.False(t, o.OK())
		assert.Equal(t, fleet.KindUnreachable, o.Kind())
		assert.Len(t, o.Attempts, 2)
		assert.Empty(t, o.JumpHost)
	}

	report := fleet.Rank(outcomes)
	assert.Empty(t, report.Rows)
	assert.Len(t, report.Failures, 3)
}

func TestCollect_ParseFailureIsLocal(t *testing.T) {
	targets := makeTargets(2)
	fake := hosttest.NewFakeBuilder().
		SetResponse("gpu01", sshtest.CommandResponse{Stdout: []byte("no data\n")})
	sel := host.NewSelector([]string{"shell1"}, fake)
	c := fleet.NewCollector(sel, gpu.NewProber(time.Second, nil))

	got := byTarget(c.Collect(context.Background(), targets))
	assert.Equal(t, fleet.KindParse, got["gpu01"].Kind())
	assert.Equal(t, "shell1", got["gpu01"].JumpHost)
	assert.True(t, got["gpu02"].OK())
}

func TestCollect_NonZeroExit(t *testing.T) {
	fake := hosttest.NewFakeBuilder().
		SetResponse("gpu01", sshtest.CommandResponse{ExitCode: 9, Stderr: []byte("NVIDIA-SMI has failed")})
	sel := host.NewSelector([]string{"shell1"}, fake)
	c := fleet.NewCollector(sel, gpu.NewProber(time.Second, nil))

	outcomes := c.Collect(context.Background(), makeTargets(1))
	require.Len(t, outcomes, 1)
	assert.Equal(t, fleet.KindExec, outcomes[0].Kind())
}

type panicConnector struct {
	inner  fleet.Connector
	target string
}

func (p panicConnector) Connect(ctx context.Context, target host.Target) (*host.Connection, error) {
	if target.Name == p.target {
		panic("boom")
	}
	return p.inner.Connect(ctx, target)
}

func TestCollect_RecoversPanics(t *testing.T) {
	fake := hosttest.NewFakeBuilder()
	sel := host.NewSelector([]string{"shell1"}, fake)
	log := logger.NewBufferLogger()
	c := fleet.NewCollector(panicConnector{inner: sel, target: "gpu02"}, gpu.NewProber(time.Second, nil))
	c.SetLogger(log)

	got := byTarget(c.Collect(context.Background(), makeTargets(3)))
	require.Len(t, got, 3)

	assert.Equal(t, fleet.KindPanic, got["gpu02"].Kind())
	var panicErr *fleet.PanicError
	require.True(t, stderrors.As(got["gpu02"].Err, &panicErr))
	assert.Equal(t, "boom", panicErr.Value)
	assert.True(t, log.HasLevel("error"))

	assert.True(t, got["gpu01"].OK())
	assert.True(t, got["gpu03"].OK())
}

type countingConnector struct {
	inner    fleet.Connector
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (c *countingConnector) Connect(ctx context.Context, target host.Target) (*host.Connection, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return c.inner.Connect(ctx, target)
}

func TestCollect_MaxParallel(t *testing.T) {
	counter := &countingConnector{inner: host.NewSelector([]string{"shell1"}, hosttest.NewFakeBuilder())}
	c := fleet.NewCollector(counter, gpu.NewProber(time.Second, nil))
	c.SetMaxParallel(3)

	outcomes := c.Collect(context.Background(), makeTargets(10))
	assert.Len(t, outcomes, 10)
	assert.LessOrEqual(t, counter.peak.Load(), int32(3))
}

func TestCollect_UnboundedByDefault(t *testing.T) {
	counter := &countingConnector{inner: host.NewSelector([]string{"shell1"}, hosttest.NewFakeBuilder())}
	c := fleet.NewCollector(counter, gpu.NewProber(time.Second, nil))

	outcomes := c.Collect(context.Background(), makeTargets(8))
	assert.Len(t, outcomes, 8)
	assert.Greater(t, counter.peak.Load(), int32(1))
}

func TestCollect_OnOutcome(t *testing.T) {
	sel := host.NewSelector([]string{"shell1"}, hosttest.NewFakeBuilder())
	c := fleet.NewCollector(sel, gpu.NewProber(time.Second, nil))

	var mu sync.Mutex
	var seen []string
	c.OnOutcome(func(o fleet.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, o.Target)
	})

	outcomes := c.Collect(context.Background(), makeTargets(5))
	assert.Len(t, seen, 5)
	assert.Len(t, outcomes, 5)
}

func TestCollect_Empty(t *testing.T) {
	sel := host.NewSelector([]string{"shell1"}, hosttest.NewFakeBuilder())
	c := fleet.NewCollector(sel, gpu.NewProber(time.Second, nil))
	assert.Empty(t, c.Collect(context.Background(), nil))
}

func TestCollect_CancelledContext(t *testing.T) {
	fake := hosttest.NewFakeBuilder().HangRoute("shell1", "")
	sel := host.NewSelector([]string{"shell1"}, fake)
	c := fleet.NewCollector(sel, gpu.NewProber(time.Second, nil))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	outcomes := c.Collect(ctx, makeTargets(4))
	require.Len(t, outcomes, 4)
	for _, o := range outcomes {
		assert.False(t, o.OK())
	}
}
