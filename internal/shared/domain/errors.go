package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode classifies failures into the categories exposed to callers.
type ErrorCode string

const (
	CodeNotFound              ErrorCode = "NOT_FOUND"
	CodeValidation            ErrorCode = "VALIDATION_ERROR"
	CodeForbidden             ErrorCode = "FORBIDDEN"
	CodeConflict              ErrorCode = "CONFLICT"
	CodeInvalidSignature      ErrorCode = "INVALID_SIGNATURE"
	CodeBusinessRuleViolation ErrorCode = "BUSINESS_RULE_VIOLATION"
	CodeUpstreamUnavailable   ErrorCode = "UPSTREAM_UNAVAILABLE"
	CodeTimeout               ErrorCode = "TIMEOUT"
	CodeInternal              ErrorCode = "INTERNAL_ERROR"
)

// Error is a classified domain failure. Reason is a stable sub-code such as
// SLOT_CONFLICT; Message is human readable.
type Error struct {
	Code    ErrorCode
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors with the same code and reason, so sentinels compare with
// errors.Is even after Wrap.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Reason == t.Reason
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Code: e.Code, Reason: e.Reason, Message: e.Message, Err: cause}
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Code: e.Code, Reason: e.Reason, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

func newError(code ErrorCode, reason, message string) *Error {
	return &Error{Code: code, Reason: reason, Message: message}
}

func NewNotFoundError(reason, message string) *Error {
	return newError(CodeNotFound, reason, message)
}

func NewValidationError(reason, message string) *Error {
	return newError(CodeValidation, reason, message)
}

func NewForbiddenError(reason, message string) *Error {
	return newError(CodeForbidden, reason, message)
}

func NewConflictError(reason, message string) *Error {
	return newError(CodeConflict, reason, message)
}

func NewBusinessRuleError(reason, message string) *Error {
	return newError(CodeBusinessRuleViolation, reason, message)
}

func NewUpstreamError(reason, message string) *Error {
	return newError(CodeUpstreamUnavailable, reason, message)
}

func NewInternalError(reason, message string) *Error {
	return newError(CodeInternal, reason, message)
}

var (
	ErrInvalidSignature = newError(CodeInvalidSignature, "INVALID_SIGNATURE", "signature verification failed")
	ErrTimeout          = newError(CodeTimeout, "DEADLINE_EXCEEDED", "operation timed out")
	ErrForbidden        = NewForbiddenError("FORBIDDEN", "caller may not perform this action")
	ErrVersionConflict  = NewConflictError("VERSION_CONFLICT", "aggregate was modified concurrently")
)

// CodeOf resolves the classification of err. Deadline errors map to TIMEOUT
// and anything unclassified maps to INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeInternal
}

// AsError returns the classified error in err's chain, synthesizing an
// internal or timeout error when none is present.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout.Wrap(err)
	}
	return NewInternalError("INTERNAL_ERROR", "internal error").Wrap(err)
}
