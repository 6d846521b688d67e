package moderation

import (
	"errors"
	"fmt"
)

// Kind is the stable error code carried by every engine-raised error.
type Kind string

const (
	KindValidation              Kind = "VALIDATION_ERROR"
	KindUnauthorized            Kind = "UNAUTHORIZED"
	KindInsufficientPermissions Kind = "INSUFFICIENT_PERMISSIONS"
	KindNotFound                Kind = "NOT_FOUND"
	KindRateLimitExceeded       Kind = "RATE_LIMIT_EXCEEDED"
	KindInvalidAction           Kind = "INVALID_ACTION"
	KindDatabase                Kind = "DATABASE_ERROR"
)

// Error is the single error type returned by the engine. Context carries
// structured fields for logging (offending field, counts, timestamps).
// Callers never see raw collaborator errors; those are wrapped as Cause.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// With returns a copy of the error with an added context field.
func (e *Error) With(key string, value any) *Error {
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	return &Error{Kind: e.Kind, Message: e.Message, Context: ctx, Cause: e.Cause}
}

// NewError creates an engine error with the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError wraps a collaborator failure, preserving it as the cause.
func WrapError(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: err}
}

func validationError(field, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: message,
		Context: map[string]any{"field": field},
	}
}

// KindOf returns the kind of an engine error, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ContextOf returns the structured context of an engine error, if any.
func ContextOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Context
	}
	return nil
}

func IsValidation(err error) bool   { return KindOf(err) == KindValidation }
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }
func IsForbidden(err error) bool    { return KindOf(err) == KindInsufficientPermissions }
func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsRateLimited(err error) bool  { return KindOf(err) == KindRateLimitExceeded }

// wrapUnexpected rewraps any non-engine error as a database error so callers
// never see raw collaborator failures. Engine errors pass through untouched.
func wrapUnexpected(err error, op string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return WrapError(err, KindDatabase, op+" failed")
}
