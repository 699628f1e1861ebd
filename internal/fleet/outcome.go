// Package fleet polls every target concurrently and ranks the results.
package fleet

import (
	stderrors "errors"
	"time"

	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/internal/gpu"
	"github.com/rileyhilliard/gpufleet/internal/host"
)

// Outcome is the result of polling one target: a sample or an error,
// never both.
type Outcome struct {
	Target   string
	Sample   *gpu.Sample
	Err      error
	JumpHost string         // jump host that produced the session, if any
	Attempts []host.Attempt // failed jump host attempts, in order
	Elapsed  time.Duration
}

// OK reports whether the outcome carries a sample.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Sample != nil
}

// Failure kinds reported by Outcome.Kind.
const (
	KindOK          = "ok"
	KindUnreachable = "unreachable"
	KindExec        = "exec"
	KindParse       = "parse"
	KindTimeout     = "timeout"
	KindPanic       = "panic"
	KindError       = "error"
)

// Kind classifies the outcome for display and JSON output.
func (o Outcome) Kind() string {
	if o.OK() {
		return KindOK
	}
	var exhausted *host.ExhaustedError
	var panicErr *PanicError
	switch {
	case stderrors.As(o.Err, &panicErr):
		return KindPanic
	case stderrors.As(o.Err, &exhausted):
		return KindUnreachable
	case errors.IsCode(o.Err, errors.ErrParse):
		return KindParse
	case errors.IsCode(o.Err, errors.ErrExec):
		if host.Categorize(o.Err) == host.FailTimeout {
			return KindTimeout
		}
		return KindExec
	}
	return KindError
}

// PanicError wraps a value recovered from a panicking poll.
type PanicError struct {
	Target string
	Value  any
}

func (e *PanicError) Error() string {
	return "internal error while polling " + e.Target
}
