// Package domainerrors provides coded errors for domain and service layers.
//
// Stores return sentinel errors (pkg/platform/sentinel) for infrastructure
// facts; services translate those into coded errors here. Transport maps
// codes onto HTTP responses in pkg/platform/httputil.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for programmatic handling across layer boundaries.
type Code string

const (
	// CodeInvalidInput marks untrusted input rejected at a parse boundary.
	CodeInvalidInput Code = "invalid_input"
	// CodeValidation marks a request that parsed but failed validation rules.
	CodeValidation Code = "validation"
	// CodeBadRequest marks a structurally unusable request.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized marks missing or failed authentication.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks an authenticated caller lacking permission.
	CodeForbidden Code = "forbidden"
	// CodeNotFound marks a missing entity surfaced to the caller.
	CodeNotFound Code = "not_found"
	// CodeConflict marks a write that lost to a concurrent competitor.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation marks a broken domain invariant; these indicate
	// a programming error, not bad input.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeTimeout marks an operation that exceeded its deadline.
	CodeTimeout Code = "timeout"
	// CodeUnavailable marks a dependency that is temporarily unreachable.
	// Callers may retry; the operation itself was never attempted.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks an unexpected failure with no caller remedy.
	CodeInternal Code = "internal_error"
)

// Error is a coded error. It wraps an optional cause for errors.Is/As chains.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code Code) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability in tests.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the code of the outermost coded error in the chain, or
// CodeInternal when the error carries no code.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// MessageOf returns the message of the outermost coded error, or the plain
// error text for uncoded errors. Suitable for caller-facing descriptions.
func MessageOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
