package errors

import (
	"errors"
	"fmt"
)

// Exit codes returned by the gpufleet binary.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
	// ExitPartial means the poll finished but at least one target failed.
	ExitPartial = 3
)

// ExitError carries a process exit code without an extra message.
// The CLI has already printed whatever the user needs to see.
type ExitError struct {
	Code int
}

// NewExitError creates an ExitError with the given code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// GetExitCode extracts the exit code from an ExitError anywhere in the chain.
func GetExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
