package services

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindForbidden    Kind = "forbidden"
	KindInvalidState Kind = "invalid_state"
	KindNotFound     Kind = "not_found"
)

// Error is a rejection the caller can act on. Anything that is not an
// *Error is an internal failure.
type Error struct {
	Kind    Kind
	Message string
	// State carries the current state for InvalidState rejections.
	State string
}

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrNotFound     = &Error{Kind: KindNotFound}
)

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(state string, format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...), State: state}
}

func NotFound(what string) error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

// KindOf returns the rejection kind of err, or "" for internal errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StateOf returns the state attached to an InvalidState error.
func StateOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.State
	}
	return ""
}
