package engagement

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a transition was rejected.
type ErrorKind string

const (
	KindNotFound                ErrorKind = "NOT_FOUND"
	KindInvalidTransition       ErrorKind = "INVALID_TRANSITION"
	KindUnauthorized            ErrorKind = "UNAUTHORIZED"
	KindGuardNotMet             ErrorKind = "GUARD_NOT_MET"
	KindStaleState              ErrorKind = "STALE_STATE"
	KindRescheduleLimitExceeded ErrorKind = "RESCHEDULE_LIMIT_EXCEEDED"
	KindValidation              ErrorKind = "VALIDATION"
)

// Sentinels for errors.Is; matching is by kind only.
var (
	ErrNotFound                = &Error{Kind: KindNotFound, Message: "engagement not found"}
	ErrInvalidTransition       = &Error{Kind: KindInvalidTransition, Message: "invalid transition"}
	ErrUnauthorized            = &Error{Kind: KindUnauthorized, Message: "actor is not allowed to perform this transition"}
	ErrGuardNotMet             = &Error{Kind: KindGuardNotMet, Message: "transition precondition not met"}
	ErrStaleState              = &Error{Kind: KindStaleState, Message: "engagement was modified concurrently"}
	ErrRescheduleLimitExceeded = &Error{Kind: KindRescheduleLimitExceeded, Message: "tour reschedule limit reached"}
	ErrValidation              = &Error{Kind: KindValidation, Message: "invalid input"}
)

// Error is returned by every rejected operation.
type Error struct {
	Kind       ErrorKind
	Transition Transition
	Status     Status
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Transition != "" {
		msg += " " + string(e.Transition)
	}
	if e.Status != "" {
		msg += " from " + string(e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError builds a rejection of the given kind.
func NewError(kind ErrorKind, transition Transition, status Status, format string, args ...any) *Error {
	return &Error{
		Kind:       kind,
		Transition: transition,
		Status:     status,
		Message:    fmt.Sprintf(format, args...),
	}
}

// Wrap attaches a cause to a new rejection.
func Wrap(kind ErrorKind, transition Transition, status Status, cause error) *Error {
	return &Error{Kind: kind, Transition: transition, Status: status, Cause: cause}
}

// KindOf extracts the kind of err, or "" for errors that are not rejections.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
