package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig = "CONFIG"
	ErrSSH    = "SSH"
	ErrTunnel = "TUNNEL"
	ErrExec   = "EXEC"
	ErrParse  = "PARSE"
)

// Error is a structured error with code, message, suggestion, and optional cause.
// Rendered as:
//
//	✗ <What failed>
//
//	  <Why it failed>
//
//	  <How to fix it>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrSSH code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrSSH,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var fleetErr *Error
	if errors.As(err, &fleetErr) {
		return fleetErr.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost structured Error in the chain,
// or an empty string when there is none.
func CodeOf(err error) string {
	var fleetErr *Error
	if errors.As(err, &fleetErr) {
		return fleetErr.Code
	}
	return ""
}

// SuggestionOf walks the chain and returns the first non-empty suggestion.
// Errors outside this package contribute through a Suggestion() method.
func SuggestionOf(err error) string {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			if e.Suggestion != "" {
				return e.Suggestion
			}
		case interface{ Suggestion() string }:
			if s := e.Suggestion(); s != "" {
				return s
			}
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// MessageOf returns a one-line description of err: the message of a
// structured Error with its cause appended, or err.Error() otherwise.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var fleetErr *Error
	if errors.As(err, &fleetErr) {
		if fleetErr.Cause != nil {
			return fleetErr.Message + ": " + fleetErr.Cause.Error()
		}
		return fleetErr.Message
	}
	return err.Error()
}
