// Package domainerrors provides coded errors for domain and service layers.
//
// Stores report infrastructure facts through pkg/platform/sentinel; services
// translate those facts (and their own rule violations) into coded errors that
// handlers can map to transport responses without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport mapping and retry decisions.
type Code string

const (
	// CodeValidation marks input that fails a domain rule (zero amount,
	// oversized memo, threshold out of range). Resubmit with corrected input.
	CodeValidation Code = "validation"
	// CodeInvalidInput marks input that fails shape parsing at a trust
	// boundary (malformed UUID, bad address token).
	CodeInvalidInput Code = "invalid_input"
	// CodeBadRequest marks a request the transport layer could not interpret.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized marks a caller without a usable identity.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks an authenticated caller lacking the right to the
	// operation (not an owner, not the proposer, not the authority).
	CodeForbidden Code = "forbidden"
	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"
	// CodeConflict marks a request valid in shape but invalid against current
	// state (wrong status, duplicate vote, insufficient funds). Re-read and
	// retry with a valid transition.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation marks an operation that would break a structural
	// invariant (removing the last owner).
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal marks unexpected infrastructure failures.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. The wrapped cause, when present, is reachable
// through errors.Unwrap for sentinel checks.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias for HasCode, kept for call-site readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// produced outside the domain layers.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
