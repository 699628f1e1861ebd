package host

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/gpufleet/internal/util"
	"github.com/rileyhilliard/gpufleet/pkg/sshutil"
)

// FailReason categorizes why reaching a host failed.
type FailReason int

const (
	FailUnknown FailReason = iota
	FailTimeout
	FailRefused
	FailUnreachable
	FailAuth
	FailHostKey
	FailChannelDenied
)

// String returns a human-readable description of the failure reason.
func (r FailReason) String() string {
	switch r {
	case FailTimeout:
		return "timed out"
	case FailRefused:
		return "connection refused"
	case FailUnreachable:
		return "host unreachable"
	case FailAuth:
		return "authentication failed"
	case FailHostKey:
		return "host key verification failed"
	case FailChannelDenied:
		return "forward refused"
	default:
		return "unknown error"
	}
}

// Code is a stable identifier for JSON output.
func (r FailReason) Code() string {
	switch r {
	case FailTimeout:
		return "TIMEOUT"
	case FailRefused:
		return "REFUSED"
	case FailUnreachable:
		return "UNREACHABLE"
	case FailAuth:
		return "AUTH"
	case FailHostKey:
		return "HOST_KEY"
	case FailChannelDenied:
		return "CHANNEL_DENIED"
	default:
		return "UNKNOWN"
	}
}

// Attempt records one try at reaching a target through a jump host.
type Attempt struct {
	JumpHost string
	Reason   FailReason
	Err      error
	Duration time.Duration
}

// ExhaustedError means every jump host was tried for a target and none
// produced a session.
type ExhaustedError struct {
	Target   string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	tried := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		tried[i] = fmt.Sprintf("%s: %s", a.JumpHost, a.Reason)
	}
	return fmt.Sprintf("couldn't reach %s through any jump host (tried %s)", e.Target, util.JoinOrNone(tried))
}

// Unwrap exposes every attempt's error to errors.Is and errors.As.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// Suggestion points at the most useful next step given how the attempts failed.
func (e *ExhaustedError) Suggestion() string {
	if len(e.Attempts) == 0 {
		return "Add jump hosts under 'jump_hosts' in .gpufleet.yaml."
	}
	jumpFailures := 0
	for _, a := range e.Attempts {
		var stageErr *sshutil.StageError
		if stderrors.As(a.Err, &stageErr) && stageErr.Stage == sshutil.StageJumpConnect {
			jumpFailures++
		}
	}
	if jumpFailures == len(e.Attempts) {
		return "No jump host was reachable. Run 'gpufleet jumps' to check them."
	}
	var stageErr *sshutil.StageError
	last := e.Attempts[len(e.Attempts)-1].Err
	if stderrors.As(last, &stageErr) {
		return stageErr.Suggestion()
	}
	return fmt.Sprintf("%s may be down. Try: ssh -J %s %s", e.Target, e.Attempts[0].JumpHost, e.Target)
}

// Categorize maps a connection error to a FailReason.
func Categorize(err error) FailReason {
	if err == nil {
		return FailUnknown
	}

	var stageErr *sshutil.StageError
	if stderrors.As(err, &stageErr) {
		if stageErr.Timeout() {
			return FailTimeout
		}
		if stageErr.Stage == sshutil.StageChannelOpen {
			return FailChannelDenied
		}
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return FailTimeout
	}

	var mismatch *sshutil.HostKeyMismatchError
	var unknown *sshutil.UnknownHostError
	if stderrors.As(err, &mismatch) || stderrors.As(err, &unknown) {
		return FailHostKey
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return FailTimeout
	case strings.Contains(errStr, "connection refused"):
		return FailRefused
	case strings.Contains(errStr, "no route to host"),
		strings.Contains(errStr, "network is unreachable"),
		strings.Contains(errStr, "host is down"),
		strings.Contains(errStr, "no such host"):
		return FailUnreachable
	case strings.Contains(errStr, "unable to authenticate"),
		strings.Contains(errStr, "no supported methods"),
		strings.Contains(errStr, "permission denied"),
		strings.Contains(errStr, "authentication failed"):
		return FailAuth
	case strings.Contains(errStr, "host key"):
		return FailHostKey
	}
	return FailUnknown
}
