// Package ferrors defines the tagged error taxonomy shared across flock's
// components: validation, not-found, conflict, transient, and fatal errors,
// each surfaced with both a human reason and a machine-readable kind.
package ferrors

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable error classification.
type Kind string

const (
	Validation Kind = "validation"
	NotFound   Kind = "not_found"
	Conflict   Kind = "conflict"
	Transient  Kind = "transient"
	Fatal      Kind = "fatal"
)

// Sentinel errors used with errors.Is throughout the codebase.
var (
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidPhase      = errors.New("invalid phase transition")
	ErrInvalidTransition = errors.New("invalid home state transition")

	ErrHomeNotFound   = errors.New("home not found")
	ErrAgentNotFound  = errors.New("agent not found")
	ErrTicketNotFound = errors.New("migration ticket not found")
	ErrChannelNotFound = errors.New("channel not found")

	ErrAlreadyExists = errors.New("already exists")
	ErrAgentFrozen   = errors.New("agent is frozen")
	ErrDuplicate     = errors.New("duplicate key")

	ErrTimeout             = errors.New("timeout")
	ErrNetwork             = errors.New("network error")
	ErrVerificationFailed  = errors.New("verification failed")

	ErrInternal = errors.New("internal error")
)

// Error is a tagged-variant error: a Kind plus a wrapped cause and an
// optional human-facing reason distinct from the wrapped error's own
// message (e.g. naming allowed transitions for diagnostics).
type Error struct {
	Kind   Kind
	Err    error
	Reason string
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ferrors.ErrHomeNotFound) to match through Error.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// New constructs a tagged Error wrapping cause with a human reason.
func New(kind Kind, cause error, reason string) *Error {
	return &Error{Kind: kind, Err: cause, Reason: reason}
}

// Newf is New with a formatted reason.
func Newf(kind Kind, cause error, format string, args ...any) *Error {
	return New(kind, cause, fmt.Sprintf(format, args...))
}

// KindOf extracts the Kind of a tagged error, defaulting to Fatal for
// untagged errors (fail closed: unrecognized errors are not silently
// retried as Transient).
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Fatal
}
