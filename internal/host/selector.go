package host

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/internal/logger"
	"github.com/rileyhilliard/gpufleet/pkg/sshutil"
)

// ConnectionEvent represents an event during connection attempts.
type ConnectionEvent struct {
	Type     ConnectionEventType
	Target   string
	JumpHost string
	Message  string
	Error    error
	Latency  time.Duration
}

// ConnectionEventType categorizes connection events.
type ConnectionEventType int

const (
	// EventTrying indicates a jump host attempt is starting.
	EventTrying ConnectionEventType = iota
	// EventFailed indicates a jump host attempt failed.
	EventFailed
	// EventConnected indicates the tunnel to the target is up.
	EventConnected
)

// String returns a human-readable description of the event type.
func (t ConnectionEventType) String() string {
	switch t {
	case EventTrying:
		return "trying"
	case EventFailed:
		return "failed"
	case EventConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// EventHandler is a callback for connection events. The selector is shared
// by every target's goroutine, so handlers must be safe for concurrent use.
type EventHandler func(event ConnectionEvent)

// Builder opens a session to target through one jump host.
type Builder interface {
	Build(ctx context.Context, jumpHost string, target Target) (sshutil.Session, error)
}

// TunnelBuilder builds real two-hop SSH tunnels.
type TunnelBuilder struct {
	Creds   *sshutil.Credentials
	Options sshutil.Options
}

// Build implements Builder.
func (b *TunnelBuilder) Build(ctx context.Context, jumpHost string, target Target) (sshutil.Session, error) {
	return sshutil.BuildTunnel(ctx, jumpHost, target.Hostname, b.Creds, b.Options)
}

// Connection is an established session plus how it was reached.
type Connection struct {
	Session  sshutil.Session
	JumpHost string
	Latency  time.Duration
	// Attempts holds the failed tries that preceded the successful one.
	Attempts []Attempt
}

// Close closes the underlying session.
func (c *Connection) Close() error {
	if c.Session != nil {
		return c.Session.Close()
	}
	return nil
}

// Selector tries jump hosts in priority order until one reaches the target.
type Selector struct {
	jumpHosts    []string
	builder      Builder
	limiters     map[string]*rate.Limiter
	eventHandler EventHandler
	log          logger.Logger
}

// NewSelector creates a selector over jumpHosts, tried in the given order.
func NewSelector(jumpHosts []string, builder Builder) *Selector {
	return &Selector{
		jumpHosts: append([]string(nil), jumpHosts...),
		builder:   builder,
		log:       logger.Noop(),
	}
}

// SetEventHandler sets a callback for connection events.
func (s *Selector) SetEventHandler(handler EventHandler) {
	s.eventHandler = handler
}

// SetLogger sets the logger used for attempt diagnostics.
func (s *Selector) SetLogger(log logger.Logger) {
	if log == nil {
		log = logger.Noop()
	}
	s.log = log
}

// SetDialRate caps new connections per second through each jump host.
// Zero or negative removes the cap. Must be called before Connect.
func (s *Selector) SetDialRate(perSecond float64) {
	if perSecond <= 0 {
		s.limiters = nil
		return
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	s.limiters = make(map[string]*rate.Limiter, len(s.jumpHosts))
	for _, j := range s.jumpHosts {
		s.limiters[j] = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// JumpHosts returns the jump hosts in priority order.
func (s *Selector) JumpHosts() []string {
	return append([]string(nil), s.jumpHosts...)
}

func (s *Selector) emit(event ConnectionEvent) {
	if s.eventHandler != nil {
		s.eventHandler(event)
	}
}

// Connect reaches target through the first jump host that works.
// Every failed attempt is recorded. When all fail the error is an
// *ExhaustedError listing them in order.
func (s *Selector) Connect(ctx context.Context, target Target) (*Connection, error) {
	if len(s.jumpHosts) == 0 {
		return nil, errors.New(errors.ErrConfig,
			"No jump hosts configured",
			"Add at least one entry under 'jump_hosts' in .gpufleet.yaml.")
	}

	var attempts []Attempt
	for i, jumpHost := range s.jumpHosts {
		s.emit(ConnectionEvent{
			Type:     EventTrying,
			Target:   target.Name,
			JumpHost: jumpHost,
			Message:  fmt.Sprintf("trying %s via %s", target.Name, jumpHost),
		})

		start := time.Now()
		session, err := s.build(ctx, jumpHost, target)
		elapsed := time.Since(start)

		if err == nil {
			msg := fmt.Sprintf("connected to %s via %s", target.Name, jumpHost)
			if i > 0 {
				msg = fmt.Sprintf("connected to %s via %s (fallback)", target.Name, jumpHost)
			}
			s.emit(ConnectionEvent{
				Type:     EventConnected,
				Target:   target.Name,
				JumpHost: jumpHost,
				Message:  msg,
				Latency:  elapsed,
			})
			s.log.Debug("tunnel up target=%s jump_host=%s latency=%s failed_attempts=%d",
				target.Name, jumpHost, elapsed, len(attempts))
			return &Connection{
				Session:  session,
				JumpHost: jumpHost,
				Latency:  elapsed,
				Attempts: attempts,
			}, nil
		}

		reason := Categorize(err)
		attempts = append(attempts, Attempt{
			JumpHost: jumpHost,
			Reason:   reason,
			Err:      err,
			Duration: elapsed,
		})
		s.emit(ConnectionEvent{
			Type:     EventFailed,
			Target:   target.Name,
			JumpHost: jumpHost,
			Message:  reason.String(),
			Error:    err,
		})
		s.log.Warn("attempt failed target=%s jump_host=%s reason=%q err=%v",
			target.Name, jumpHost, reason, err)
	}

	return nil, &ExhaustedError{Target: target.Name, Attempts: attempts}
}

func (s *Selector) build(ctx context.Context, jumpHost string, target Target) (sshutil.Session, error) {
	if lim := s.limiters[jumpHost]; lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for dial slot on %s: %w", jumpHost, err)
		}
	}
	return s.builder.Build(ctx, jumpHost, target)
}
