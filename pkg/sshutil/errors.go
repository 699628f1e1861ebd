package sshutil

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"runtime"
	"strings"

	"golang.org/x/crypto/ssh/knownhosts"
)

// Tunnel stages, in the order they run.
const (
	StageJumpConnect = "jump-host connect"
	StageChannelOpen = "channel open"
	StageTargetAuth  = "target auth"
)

// StageError reports which step of building a tunnel failed.
type StageError struct {
	Stage    string
	JumpHost string
	Target   string
	Cause    error
}

func (e *StageError) Error() string {
	switch e.Stage {
	case StageJumpConnect:
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.JumpHost, e.Cause)
	default:
		return fmt.Sprintf("%s: %s via %s: %v", e.Stage, e.Target, e.JumpHost, e.Cause)
	}
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// Timeout reports whether the stage failed because its deadline expired.
func (e *StageError) Timeout() bool {
	if stderrors.Is(e.Cause, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(e.Cause, &netErr) && netErr.Timeout()
}

// Suggestion returns a next step for the user based on the stage and cause.
func (e *StageError) Suggestion() string {
	var hostKeyErr *HostKeyMismatchError
	if stderrors.As(e.Cause, &hostKeyErr) {
		return hostKeyErr.Suggestion()
	}
	switch e.Stage {
	case StageJumpConnect:
		if e.Timeout() {
			return "Jump host didn't answer in time. It may be down or firewalled."
		}
		return suggestionForDialError(e.Cause)
	case StageChannelOpen:
		if e.Timeout() {
			return "The jump host accepted us but never opened the forward. It may be overloaded."
		}
		return fmt.Sprintf("The jump host refused to forward to %s. Check the target name and that AllowTcpForwarding is on.", e.Target)
	default:
		if e.Timeout() {
			return fmt.Sprintf("%s didn't finish the SSH handshake in time. It may be hung.", e.Target)
		}
		return suggestionForHandshakeError(e.Cause)
	}
}

// EncryptedKeyError is returned when an SSH key requires a passphrase.
type EncryptedKeyError struct {
	Path string
}

func (e *EncryptedKeyError) Error() string {
	return fmt.Sprintf("SSH key at %s is encrypted (passphrase protected)", e.Path)
}

// Suggestion tells the user how to get an unencrypted key to gpufleet.
func (e *EncryptedKeyError) Suggestion() string {
	if runtime.GOOS == "darwin" {
		return fmt.Sprintf("gpufleet needs an unencrypted key file. Create one for polling:\n  ssh-keygen -t ed25519 -N '' -f ~/.ssh/gpufleet\n  or strip the passphrase: ssh-keygen -p -f %s", e.Path)
	}
	return fmt.Sprintf("gpufleet needs an unencrypted key file. Strip the passphrase with:\n  ssh-keygen -p -f %s", e.Path)
}

// HostKeyMismatchError provides helpful context when known_hosts verification fails.
type HostKeyMismatchError struct {
	Hostname     string
	ReceivedType string
	KnownHosts   string
	Want         []knownhosts.KnownKey
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: server sent %s key", e.Hostname, e.ReceivedType)
}

// Suggestion returns actionable steps to fix the host key mismatch.
func (e *HostKeyMismatchError) Suggestion() string {
	host := e.Hostname
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	var wantTypes []string
	for _, k := range e.Want {
		wantTypes = append(wantTypes, k.Key.Type())
	}
	wantStr := "unknown"
	if len(wantTypes) > 0 {
		wantStr = strings.Join(wantTypes, ", ")
	}

	return fmt.Sprintf(
		"The server's host key doesn't match what's in known_hosts.\n"+
			"  Known types: %s\n"+
			"  Server sent: %s\n\n"+
			"  If the host was reinstalled, remove the old entry:\n"+
			"    ssh-keygen -R %s -f %s",
		wantStr, e.ReceivedType, host, e.KnownHosts)
}

// UnknownHostError is returned under the strict policy for hosts missing
// from known_hosts.
type UnknownHostError struct {
	Hostname   string
	KnownHosts string
}

func (e *UnknownHostError) Error() string {
	return fmt.Sprintf("%s is not in %s", e.Hostname, e.KnownHosts)
}

// Suggestion explains how to trust the host.
func (e *UnknownHostError) Suggestion() string {
	host := e.Hostname
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return fmt.Sprintf("Connect once with ssh to accept the key, or set host_key.policy to 'tofu':\n  ssh %s", host)
}

func suggestionForDialError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") {
		return "Is SSH running on the jump host? Try: ssh <jump host>"
	}
	if strings.Contains(errStr, "no such host") {
		return "The jump host name doesn't resolve. Check jump_hosts in .gpufleet.yaml."
	}
	if strings.Contains(errStr, "no route to host") || strings.Contains(errStr, "network is unreachable") {
		return "Can't route to the jump host. Check your network connection or VPN."
	}
	if strings.Contains(errStr, "unable to authenticate") || strings.Contains(errStr, "no supported methods") {
		return "The jump host rejected the key. Check 'user' and 'key' in .gpufleet.yaml."
	}
	return "Make sure the jump host is reachable: ssh <jump host>"
}

func suggestionForHandshakeError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "unable to authenticate") || strings.Contains(errStr, "no supported methods") {
		return "The target rejected the key. Is your public key in its authorized_keys?"
	}
	if strings.Contains(errStr, "host key") {
		return "Host key issue. Try connecting manually first: ssh -J <jump host> <target>"
	}
	return "Something went wrong during the SSH handshake. Try: ssh -J <jump host> <target>"
}
