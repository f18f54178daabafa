// Package apperr classifies failures so callers can tell a normal miss from a
// bad request, a misconfiguration, or corrupted data.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindConfiguration
	KindConflict
	KindInvariant
	KindSideEffect
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindConflict:
		return "conflict"
	case KindInvariant:
		return "invariant"
	case KindSideEffect:
		return "side_effect"
	default:
		return "unknown"
	}
}

// Error is a classified error. Fields carries structured context, such as
// the offending field names for validation errors.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports an absent document, user or resource.
func NotFound(op, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Validation reports a rejected input. fields may be nil.
func Validation(op, message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message, Fields: fields}
}

// Configuration reports a deployment misconfiguration discovered at runtime.
func Configuration(op, format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a lost optimistic-concurrency race; the caller may retry.
func Conflict(op, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Invariant reports persisted state that breaks a data invariant.
func Invariant(op, format string, args ...any) *Error {
	return &Error{Kind: KindInvariant, Op: op, Message: fmt.Sprintf(format, args...)}
}

// SideEffect wraps a failed notification or audit write.
func SideEffect(op string, err error) *Error {
	return &Error{Kind: KindSideEffect, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool      { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool    { return KindOf(err) == KindValidation }
func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }
func IsConflict(err error) bool      { return KindOf(err) == KindConflict }
func IsInvariant(err error) bool     { return KindOf(err) == KindInvariant }
