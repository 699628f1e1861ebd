package fleet

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rileyhilliard/gpufleet/internal/gpu"
	"github.com/rileyhilliard/gpufleet/internal/host"
	"github.com/rileyhilliard/gpufleet/internal/logger"
)

// Connector reaches a target through some jump host. *host.Selector
// implements it.
type Connector interface {
	Connect(ctx context.Context, target host.Target) (*host.Connection, error)
}

var _ Connector = (*host.Selector)(nil)

// Collector polls a fleet of targets concurrently.
type Collector struct {
	connector   Connector
	prober      *gpu.Prober
	maxParallel int
	log         logger.Logger
	onOutcome   func(Outcome)
}

// NewCollector creates a collector that connects with connector and probes
// with prober.
func NewCollector(connector Connector, prober *gpu.Prober) *Collector {
	return &Collector{
		connector: connector,
		prober:    prober,
		log:       logger.Noop(),
	}
}

// SetMaxParallel caps how many targets are polled at once. Zero or negative
// polls every target at once.
func (c *Collector) SetMaxParallel(n int) {
	c.maxParallel = n
}

// SetLogger sets the logger for per-target diagnostics.
func (c *Collector) SetLogger(log logger.Logger) {
	if log == nil {
		log = logger.Noop()
	}
	c.log = log
}

// OnOutcome registers a callback invoked as each target finishes. It may be
// called from several goroutines at once.
func (c *Collector) OnOutcome(fn func(Outcome)) {
	c.onOutcome = fn
}

// Collect polls every target and returns one Outcome per target in the
// order they finished. It returns only after every target has reported.
// A failure on one target never affects another.
func (c *Collector) Collect(ctx context.Context, targets []host.Target) []Outcome {
	var (
		mu       sync.Mutex
		outcomes = make([]Outcome, 0, len(targets))
	)

	var g errgroup.Group
	if c.maxParallel > 0 {
		g.SetLimit(c.maxParallel)
	}

	for _, target := range targets {
		g.Go(func() error {
			out := c.collectOne(ctx, target)

			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()

			if c.onOutcome != nil {
				c.onOutcome(out)
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (c *Collector) collectOne(ctx context.Context, target host.Target) (out Outcome) {
	start := time.Now()
	out.Target = target.Name

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic polling %s: %v\n%s", target.Name, r, debug.Stack())
			out.Sample = nil
			out.Err = &PanicError{Target: target.Name, Value: r}
		}
		out.Elapsed = time.Since(start)
	}()

	conn, err := c.connector.Connect(ctx, target)
	if err != nil {
		c.log.Warn("%s: %v", target.Name, err)
		out.Err = err
		var exhausted *host.ExhaustedError
		if stderrors.As(err, &exhausted) {
			out.Attempts = exhausted.Attempts
		}
		return out
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			c.log.Debug("%s: closing session: %v", target.Name, cerr)
		}
	}()

	out.JumpHost = conn.JumpHost
	out.Attempts = conn.Attempts

	sample, err := c.prober.Probe(ctx, target.Name, conn.Session)
	if err != nil {
		c.log.Warn("%s via %s: %v", target.Name, conn.JumpHost, err)
		out.Err = err
		return out
	}
	out.Sample = sample
	return out
}

// String renders a one-line summary, mostly for logs.
func (o Outcome) String() string {
	if o.OK() {
		return fmt.Sprintf("%s via %s: %d MiB left", o.Target, o.JumpHost, o.Sample.MemoryLeft)
	}
	return fmt.Sprintf("%s: %s", o.Target, o.Kind())
}
