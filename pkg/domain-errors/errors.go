// Package domainerrors defines the error vocabulary shared by every layer.
//
// Services construct these errors; transports map codes to status lines and
// audit emitters read the machine reason. Stores do NOT use this package
// directly: they return pkg/platform/sentinel errors and services translate.
//
// Usage:
//
//	return dErrors.New(dErrors.CodeNotFound, "account not found")
//	return dErrors.NewWithReason(dErrors.CodePolicy, ReasonTotalPayableExceeded, "deposit would exceed total payable")
//	if dErrors.HasCode(err, dErrors.CodeConflict) { ... }
//	reason := dErrors.ReasonOf(err) // "" when the error carries no reason
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for programmatic handling. Codes are coarse;
// the optional Reason carries the fine-grained machine-readable cause.
type Code string

const (
	// CodeValidation marks malformed or inconsistent caller input.
	CodeValidation Code = "VALIDATION"
	// CodePolicy marks a well-formed request rejected by a business rule.
	CodePolicy Code = "POLICY"
	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "NOT_FOUND"
	// CodeForbidden marks a caller acting outside their role or scope.
	CodeForbidden Code = "FORBIDDEN"
	// CodeUnauthorized marks a missing or unverifiable identity.
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeConflict marks a lost optimistic-concurrency race.
	CodeConflict Code = "CONFLICT"
	// CodeDefect marks broken stored configuration. The request was fine;
	// the data it hit was not. Operators get paged, callers get a 500.
	CodeDefect Code = "DEFECT"
	// CodeTimeout marks a deadline exceeded talking to a dependency.
	CodeTimeout Code = "TIMEOUT"
	// CodeUnavailable marks a dependency that refused or dropped the call.
	CodeUnavailable Code = "UNAVAILABLE"
	// CodeInternal marks everything else. Details stay in the log.
	CodeInternal Code = "INTERNAL"
)

// Error is the concrete type behind every domain error. Construct via New,
// NewWithReason, Wrap or WrapWithReason; never build the struct directly.
type Error struct {
	code   Code
	reason string
	msg    string
	cause  error
}

// New returns a domain error with a code and a human-readable message.
func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

// Newf is New with fmt-style message construction.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// NewWithReason returns a domain error carrying a stable machine reason.
// Reasons are API surface: they appear verbatim in responses and audit
// events, so they are never renamed once released.
func NewWithReason(code Code, reason, msg string) *Error {
	return &Error{code: code, reason: reason, msg: msg}
}

// Wrap annotates a cause with a code and message, preserving the chain for
// errors.Is / errors.As.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{code: code, msg: msg, cause: err}
}

// Wrapf is Wrap with fmt-style message construction.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...), cause: err}
}

// WrapWithReason annotates a cause with a code and a machine reason.
func WrapWithReason(err error, code Code, reason, msg string) *Error {
	return &Error{code: code, reason: reason, msg: msg, cause: err}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Unwrap exposes the cause to the errors package.
func (e *Error) Unwrap() error { return e.cause }

// Is makes domain errors comparable under errors.Is: two are equal when
// their code, reason and message all match. Causes are not compared.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == te.code && e.reason == te.reason && e.msg == te.msg
}

// Code returns the classification code.
func (e *Error) Code() Code { return e.code }

// Reason returns the machine-readable reason, or "" when none was attached.
func (e *Error) Reason() string { return e.reason }

// Message returns the human-readable message without the cause chain.
func (e *Error) Message() string { return e.msg }

// HasCode reports whether any error in the chain is a domain error with the
// given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.code == code
	}
	return false
}

// Is is a shorthand for HasCode, reading naturally at call sites:
//
//	if dErrors.Is(err, dErrors.CodeConflict) { ... }
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// HasReason reports whether any error in the chain carries the given reason.
func HasReason(err error, reason string) bool {
	return ReasonOf(err) == reason
}

// CodeOf returns the code of the outermost domain error in the chain.
// Non-domain errors classify as CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}

// ReasonOf returns the reason of the outermost domain error carrying one.
// Returns "" for non-domain errors and for domain errors without a reason.
func ReasonOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.reason
	}
	return ""
}
