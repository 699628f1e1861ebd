package sshutil

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Default per-stage timeouts.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultChannelTimeout = 10 * time.Second
	DefaultAuthTimeout    = 10 * time.Second
)

// DialFunc opens the TCP connection to a jump host.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options controls how tunnels are built. The zero value uses the default
// timeouts, target port 22 and no host key verification.
type Options struct {
	Port           int // target SSH port
	ConnectTimeout time.Duration
	ChannelTimeout time.Duration
	AuthTimeout    time.Duration
	HostKeys       ssh.HostKeyCallback
	SSHConfig      *SSHConfig // for jump host alias resolution; nil skips it
	Dial           DialFunc

	// HostKeyAlgorithms, if set, returns the host key algorithms to offer
	// for a host:port, usually HostKeyStore.Algorithms.
	HostKeyAlgorithms func(hostport string) []string
}

func (o Options) hostKeyAlgorithms(hostport string) []string {
	if o.HostKeyAlgorithms == nil {
		return nil
	}
	return o.HostKeyAlgorithms(hostport)
}

func (o Options) withDefaults() Options {
	if o.Port == 0 {
		o.Port = 22
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ChannelTimeout <= 0 {
		o.ChannelTimeout = DefaultChannelTimeout
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = DefaultAuthTimeout
	}
	if o.HostKeys == nil {
		o.HostKeys = ssh.InsecureIgnoreHostKey() //nolint:gosec // callers pick a policy via HostKeyStore
	}
	if o.Dial == nil {
		o.Dial = (&net.Dialer{}).DialContext
	}
	return o
}

// Tunnel is a live two-hop connection: an SSH client on the jump host, a
// direct-tcpip channel through it, and an SSH client to the target layered
// on that channel. The target client borrows the channel; Close releases
// the target client first, then the channel, then the jump connection.
type Tunnel struct {
	jumpHost string
	target   string

	jump    *ssh.Client
	channel net.Conn
	client  *ssh.Client

	closeOnce sync.Once
	closeErr  error
}

// BuildTunnel connects to jumpHost, opens a forward to target, and
// authenticates to target over it with the same credentials. Each stage
// has its own timeout. On failure everything opened so far is released and
// a *StageError is returned.
func BuildTunnel(ctx context.Context, jumpHost, target string, creds *Credentials, opts Options) (*Tunnel, error) {
	opts = opts.withDefaults()

	jump, err := dialJump(ctx, jumpHost, creds, opts)
	if err != nil {
		return nil, &StageError{Stage: StageJumpConnect, JumpHost: jumpHost, Target: target, Cause: err}
	}

	channel, err := runStage(ctx, opts.ChannelTimeout,
		func() (net.Conn, error) { return openDirectTCPIP(jump, target, opts.Port) },
		func() { jump.Close() },
		func(c net.Conn) { c.Close() })
	if err != nil {
		jump.Close()
		return nil, &StageError{Stage: StageChannelOpen, JumpHost: jumpHost, Target: target, Cause: err}
	}

	targetAddr := net.JoinHostPort(target, strconv.Itoa(opts.Port))
	client, err := runStage(ctx, opts.AuthTimeout,
		func() (*ssh.Client, error) {
			conn, chans, reqs, err := ssh.NewClientConn(channel, targetAddr, creds.clientConfig(opts.HostKeys, opts.hostKeyAlgorithms(targetAddr)))
			if err != nil {
				return nil, err
			}
			return ssh.NewClient(conn, chans, reqs), nil
		},
		func() {
			channel.Close()
			jump.Close()
		},
		func(c *ssh.Client) { c.Close() })
	if err != nil {
		channel.Close()
		jump.Close()
		return nil, &StageError{Stage: StageTargetAuth, JumpHost: jumpHost, Target: target, Cause: err}
	}

	return &Tunnel{
		jumpHost: jumpHost,
		target:   target,
		jump:     jump,
		channel:  channel,
		client:   client,
	}, nil
}

// DialJump opens an authenticated SSH connection to a jump host.
// Failures are *StageError values at the jump-host connect stage.
func DialJump(ctx context.Context, jumpHost string, creds *Credentials, opts Options) (*ssh.Client, error) {
	client, err := dialJump(ctx, jumpHost, creds, opts.withDefaults())
	if err != nil {
		return nil, &StageError{Stage: StageJumpConnect, JumpHost: jumpHost, Cause: err}
	}
	return client, nil
}

func dialJump(ctx context.Context, jumpHost string, creds *Credentials, opts Options) (*ssh.Client, error) {
	ep := opts.SSHConfig.Resolve(jumpHost, 22)

	connectCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	conn, err := opts.Dial(connectCtx, "tcp", ep.Address())
	if err != nil {
		return nil, err
	}
	if deadline, ok := connectCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	stop := context.AfterFunc(connectCtx, func() { conn.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, ep.Address(), creds.clientConfig(opts.HostKeys, opts.hostKeyAlgorithms(ep.Address())))
	if !stop() {
		if err == nil {
			sshConn.Close()
		}
		return nil, fmt.Errorf("handshake with %s: %w", ep.Address(), connectCtx.Err())
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// directTCPIPMsg is the RFC 4254 section 7.2 channel open payload.
type directTCPIPMsg struct {
	Host       string
	Port       uint32
	OriginHost string
	OriginPort uint32
}

func openDirectTCPIP(jump *ssh.Client, target string, port int) (net.Conn, error) {
	payload := ssh.Marshal(&directTCPIPMsg{
		Host:       target,
		Port:       uint32(port),
		OriginHost: "localhost",
		OriginPort: 22,
	})
	ch, reqs, err := jump.OpenChannel("direct-tcpip", payload)
	if err != nil {
		return nil, err
	}
	go ssh.DiscardRequests(reqs)
	return &channelConn{Channel: ch}, nil
}

type stageResult[T any] struct {
	val T
	err error
}

// runStage runs fn with a timeout. Blocking SSH calls over a channel can't
// take deadlines, so on expiry abort closes the underlying resources to
// unblock fn, and a late successful result is handed to discard.
func runStage[T any](ctx context.Context, timeout time.Duration, fn func() (T, error), abort func(), discard func(T)) (T, error) {
	done := make(chan stageResult[T], 1)
	go func() {
		v, err := fn()
		done <- stageResult[T]{v, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case r := <-done:
		return r.val, r.err
	case <-timer.C:
		abort()
		go drainStage(done, discard)
		return zero, fmt.Errorf("timed out after %s: %w", timeout, context.DeadlineExceeded)
	case <-ctx.Done():
		abort()
		go drainStage(done, discard)
		return zero, ctx.Err()
	}
}

func drainStage[T any](done <-chan stageResult[T], discard func(T)) {
	if r := <-done; r.err == nil {
		discard(r.val)
	}
}

// JumpHost returns the jump host this tunnel goes through.
func (t *Tunnel) JumpHost() string {
	return t.jumpHost
}

// Target returns the target hostname.
func (t *Tunnel) Target() string {
	return t.target
}

// Close releases the target client, the channel and the jump connection,
// in that order. Safe to call more than once.
func (t *Tunnel) Close() error {
	t.closeOnce.Do(func() {
		var errs []error
		errs = append(errs, ignoreClosed(t.client.Close()))
		_ = t.channel.Close()
		errs = append(errs, ignoreClosed(t.jump.Close()))
		t.closeErr = stderrors.Join(errs...)
	})
	return t.closeErr
}

func ignoreClosed(err error) error {
	if err == nil || stderrors.Is(err, net.ErrClosed) || stderrors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// channelConn adapts an ssh.Channel to net.Conn so an SSH client can run
// over it. Deadlines are not supported.
type channelConn struct {
	ssh.Channel
}

var zeroAddr = &net.TCPAddr{IP: net.IPv4zero}

func (c *channelConn) LocalAddr() net.Addr  { return zeroAddr }
func (c *channelConn) RemoteAddr() net.Addr { return zeroAddr }

func (c *channelConn) SetDeadline(t time.Time) error {
	return errDeadlineUnsupported
}

func (c *channelConn) SetReadDeadline(t time.Time) error {
	return errDeadlineUnsupported
}

func (c *channelConn) SetWriteDeadline(t time.Time) error {
	return errDeadlineUnsupported
}

var errDeadlineUnsupported = stderrors.New("sshutil: deadlines not supported on tunneled channel")
