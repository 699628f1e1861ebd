package cli

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"strings"
	"time"

	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/internal/fleet"
	"github.com/rileyhilliard/gpufleet/internal/host"
	"github.com/rileyhilliard/gpufleet/pkg/sshutil"
)

// Machine mode flag - when true, outputs JSON and suppresses human-friendly decorations
var machineMode bool

// MachineMode returns true if machine-readable output is enabled
func MachineMode() bool {
	return machineMode
}

// JSONEnvelope wraps command output in a consistent structure for machine parsing.
// All --json output should use this envelope.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *JSONError  `json:"error,omitempty"`
}

// JSONError provides structured error information for machine parsing.
type JSONError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

// Error codes for machine-readable output.
const (
	ErrCodeConfigNotFound    = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid     = "CONFIG_INVALID"
	ErrCodeSSHTimeout        = "SSH_TIMEOUT"
	ErrCodeSSHAuthFailed     = "SSH_AUTH_FAILED"
	ErrCodeSSHHostKey        = "SSH_HOST_KEY"
	ErrCodeSSHConnectionFail = "SSH_CONNECTION_FAILED"
	ErrCodeChannelDenied     = "CHANNEL_DENIED"
	ErrCodeAllJumpsFailed    = "ALL_JUMP_HOSTS_FAILED"
	ErrCodeCommandFailed     = "COMMAND_FAILED"
	ErrCodeCommandTimeout    = "COMMAND_TIMEOUT"
	ErrCodeParseFailed       = "PARSE_FAILED"
	ErrCodePartial           = "PARTIAL_RESULTS"
	ErrCodeInternal          = "INTERNAL"
	ErrCodeUnknown           = "UNKNOWN"
)

// PollJSON is the data payload of a poll.
type PollJSON struct {
	Results   []fleet.Row   `json:"results"`
	Failures  []FailureJSON `json:"failures"`
	Total     int           `json:"total"`
	ElapsedMS int64         `json:"elapsed_ms"`
}

// FailureJSON describes one target that produced no sample.
type FailureJSON struct {
	Target   string        `json:"target"`
	Kind     string        `json:"kind"`
	JumpHost string        `json:"jump_host,omitempty"`
	Error    *JSONError    `json:"error"`
	Attempts []AttemptJSON `json:"attempts,omitempty"`
}

// AttemptJSON is one failed try through a jump host.
type AttemptJSON struct {
	JumpHost   string `json:"jump_host"`
	Reason     string `json:"reason"`
	Message    string `json:"message"`
	DurationMS int64  `json:"duration_ms"`
}

// JumpJSON is one row of `gpufleet jumps --json`.
type JumpJSON struct {
	JumpHost  string `json:"jump_host"`
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
}

// NewPollJSON converts a ranked report.
func NewPollJSON(report fleet.Report, elapsed time.Duration) PollJSON {
	out := PollJSON{
		Results:   report.Rows,
		Failures:  make([]FailureJSON, 0, len(report.Failures)),
		Total:     report.Total,
		ElapsedMS: elapsed.Milliseconds(),
	}
	if out.Results == nil {
		out.Results = []fleet.Row{}
	}
	for _, o := range report.Failures {
		f := FailureJSON{
			Target:   o.Target,
			Kind:     o.Kind(),
			JumpHost: o.JumpHost,
			Error:    ErrorToJSON(o.Err),
		}
		for _, a := range o.Attempts {
			f.Attempts = append(f.Attempts, attemptJSON(a))
		}
		out.Failures = append(out.Failures, f)
	}
	return out
}

func attemptJSON(a host.Attempt) AttemptJSON {
	msg := ""
	if a.Err != nil {
		msg = a.Err.Error()
	}
	return AttemptJSON{
		JumpHost:   a.JumpHost,
		Reason:     a.Reason.Code(),
		Message:    msg,
		DurationMS: a.Duration.Milliseconds(),
	}
}

// NewJumpJSON converts jump host check results.
func NewJumpJSON(statuses []host.JumpStatus) []JumpJSON {
	out := make([]JumpJSON, len(statuses))
	for i, s := range statuses {
		out[i] = JumpJSON{
			JumpHost:  s.JumpHost,
			OK:        s.OK,
			LatencyMS: s.Latency.Milliseconds(),
		}
		if !s.OK {
			out[i].Reason = s.Reason.Code()
			if s.Err != nil {
				out[i].Message = s.Err.Error()
			}
		}
	}
	return out
}

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	return writeJSONEnvelope(w, JSONEnvelope{Success: true, Data: data})
}

// WriteJSONPartial writes data alongside an error, for polls where some
// targets failed.
func WriteJSONPartial(w io.Writer, data interface{}, jsonErr *JSONError) error {
	return writeJSONEnvelope(w, JSONEnvelope{Success: false, Data: data, Error: jsonErr})
}

// WriteJSONFromError converts a Go error to a JSON error response.
func WriteJSONFromError(w io.Writer, err error) error {
	return writeJSONEnvelope(w, JSONEnvelope{Success: false, Error: ErrorToJSON(err)})
}

// writeJSONEnvelope writes the envelope with consistent formatting.
func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts a Go error to a JSONError with appropriate code mapping.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}

	var exhausted *host.ExhaustedError
	if stderrors.As(err, &exhausted) {
		attempts := make([]AttemptJSON, len(exhausted.Attempts))
		for i, a := range exhausted.Attempts {
			attempts[i] = attemptJSON(a)
		}
		return &JSONError{
			Code:       ErrCodeAllJumpsFailed,
			Message:    exhausted.Error(),
			Suggestion: exhausted.Suggestion(),
			Details:    map[string]interface{}{"attempts": attempts},
		}
	}

	var panicErr *fleet.PanicError
	if stderrors.As(err, &panicErr) {
		return &JSONError{Code: ErrCodeInternal, Message: panicErr.Error()}
	}

	var fleetErr *errors.Error
	if stderrors.As(err, &fleetErr) {
		return &JSONError{
			Code:       mapErrorCode(fleetErr),
			Message:    errors.MessageOf(fleetErr),
			Suggestion: errors.SuggestionOf(err),
		}
	}

	var stageErr *sshutil.StageError
	if stderrors.As(err, &stageErr) {
		return &JSONError{
			Code:       reasonToCode(host.Categorize(err)),
			Message:    stageErr.Error(),
			Suggestion: stageErr.Suggestion(),
			Details: map[string]interface{}{
				"stage":     stageErr.Stage,
				"jump_host": stageErr.JumpHost,
			},
		}
	}

	return &JSONError{
		Code:       ErrCodeUnknown,
		Message:    err.Error(),
		Suggestion: errors.SuggestionOf(err),
	}
}

// mapErrorCode maps internal error codes to machine-readable codes.
func mapErrorCode(e *errors.Error) string {
	switch e.Code {
	case errors.ErrConfig:
		msgLower := strings.ToLower(e.Message)
		if strings.Contains(msgLower, "not found") || strings.Contains(msgLower, "couldn't find") {
			return ErrCodeConfigNotFound
		}
		return ErrCodeConfigInvalid
	case errors.ErrSSH, errors.ErrTunnel:
		return reasonToCode(host.Categorize(e))
	case errors.ErrExec:
		if host.Categorize(e) == host.FailTimeout {
			return ErrCodeCommandTimeout
		}
		return ErrCodeCommandFailed
	case errors.ErrParse:
		return ErrCodeParseFailed
	}
	return ErrCodeUnknown
}

// reasonToCode maps a connection failure reason to an SSH error code.
func reasonToCode(r host.FailReason) string {
	switch r {
	case host.FailTimeout:
		return ErrCodeSSHTimeout
	case host.FailAuth:
		return ErrCodeSSHAuthFailed
	case host.FailHostKey:
		return ErrCodeSSHHostKey
	case host.FailChannelDenied:
		return ErrCodeChannelDenied
	}
	return ErrCodeSSHConnectionFail
}
