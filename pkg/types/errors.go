package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to callers.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindConflict      ErrorKind = "conflict"
	KindAuthorization ErrorKind = "authorization"
	KindNotFound      ErrorKind = "not_found"
)

// Error is the error type returned by the registry, board and tracker.
// Callers decide whether to retry; nothing in the core retries on its own.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error

	// Existing is set on a conflict caused by another live session for the
	// same course so the caller can surface it.
	Existing *Session
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation codes and conflict codes used by the HTTP layer.
const (
	CodeEmptyText         = "empty_text"
	CodeTextTooLong       = "text_too_long"
	CodeBadParent         = "bad_parent_reply"
	CodeDuplicateQuestion = "duplicate_question"
	CodeLiveSessionExists = "live_session_exists"
	CodeSessionCompleted  = "session_completed"
)

func newError(kind ErrorKind, code string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validationf builds a validation error.
func Validationf(code, format string, args ...any) *Error {
	return newError(KindValidation, code, nil, format, args...)
}

// Conflictf builds a conflict error.
func Conflictf(code, format string, args ...any) *Error {
	return newError(KindConflict, code, nil, format, args...)
}

// Unauthorizedf builds an authorization error.
func Unauthorizedf(format string, args ...any) *Error {
	return newError(KindAuthorization, "forbidden", nil, format, args...)
}

// NotFoundf builds a not-found error wrapping the store's cause.
func NotFoundf(err error, format string, args ...any) *Error {
	return newError(KindNotFound, "not_found", err, format, args...)
}

// KindOf returns the kind of err, or "" when err is not a *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsValidation(err error) bool    { return KindOf(err) == KindValidation }
func IsConflict(err error) bool      { return KindOf(err) == KindConflict }
func IsAuthorization(err error) bool { return KindOf(err) == KindAuthorization }
func IsNotFound(err error) bool      { return KindOf(err) == KindNotFound }

// AsError unwraps err into a *Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
