// Package errors provides structured error types for batchtower.
//
// Every condition that ends a run is one of a small, closed set of codes.
// All of them are fatal for the current run: nothing is retried, and the
// process exits nonzero. The code carries the distinguishing detail that the
// original batch scripts only ever wrote to their logs.
//
// # Error Codes
//
//   - CONFIG_ERROR: malformed graph or undefined dependency reference
//   - LOCK_HELD / LOCK_ERROR: single-instance lock problems
//   - LAUNCH_ERROR: the OS could not start a task process
//   - NODE_FAILURE / NODE_TIMEOUT: a task exited nonzero or overran its timeout
//   - DEADLINE_EXCEEDED / RESOURCE_TIMEOUT: run-level time budgets
//   - CYCLE_OR_INCOMPLETE: the loop drained without completing every node
//
// # Usage
//
//	err := errors.New(errors.ErrCodeConfig, "dependency %q of %q is not defined", dep, id)
//	if errors.Is(err, errors.ErrCodeConfig) {
//	    // Handle configuration error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeLaunch, origErr, "start %s", id)
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for the fatal-abort taxonomy.
const (
	ErrCodeConfig            Code = "CONFIG_ERROR"
	ErrCodeLockHeld          Code = "LOCK_HELD"
	ErrCodeLock              Code = "LOCK_ERROR"
	ErrCodeLaunch            Code = "LAUNCH_ERROR"
	ErrCodeNodeFailure       Code = "NODE_FAILURE"
	ErrCodeNodeTimeout       Code = "NODE_TIMEOUT"
	ErrCodeDeadlineExceeded  Code = "DEADLINE_EXCEEDED"
	ErrCodeResourceTimeout   Code = "RESOURCE_TIMEOUT"
	ErrCodeCycleOrIncomplete Code = "CYCLE_OR_INCOMPLETE"

	// Run interrupted by a signal.
	ErrCodeCanceled Code = "CANCELED"

	// Input validation and internal errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeInternal     Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Node    string // Node the error is about (optional)
	Detail  string // Captured task output or other long-form context (optional)
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithNode sets the node the error refers to and returns e.
func (e *Error) WithNode(id string) *Error {
	e.Node = id
	return e
}

// WithDetail attaches long-form context such as captured stderr and returns e.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// As is errors.As, re-exported so callers importing this package under its
// own name need not import the standard library package too.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Detail returns the long-form detail attached to err, if any.
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return ""
}

// exitCodes assigns each fatal kind its own process exit status.
var exitCodes = map[Code]int{
	ErrCodeConfig:            2,
	ErrCodeLockHeld:          3,
	ErrCodeLock:              4,
	ErrCodeLaunch:            5,
	ErrCodeNodeFailure:       6,
	ErrCodeNodeTimeout:       7,
	ErrCodeDeadlineExceeded:  8,
	ErrCodeResourceTimeout:   9,
	ErrCodeCycleOrIncomplete: 10,
	ErrCodeCanceled:          130,
}

// ExitCode maps err to a process exit status. A nil error maps to 0; every
// other error maps to a nonzero value, 1 when no specific code applies.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return 130 // Standard shell convention for SIGINT
	}
	if code, ok := exitCodes[GetCode(err)]; ok {
		return code
	}
	return 1
}
