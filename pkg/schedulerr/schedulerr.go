// Package schedulerr provides a single typed-kind error wrapper for the
// scheduling engine's failure taxonomy. Most of the codebase wraps errors
// with plain fmt.Errorf("...: %w", err); this package adds one sentinel
// layer on top of that for the handful of kinds that downstream code
// actually branches on (tagging, retry/fallback, target-fatal routing).
package schedulerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for routing purposes: does it get recorded as a
// resource tag, retried, or treated as fatal to the whole target?
type Kind string

const (
	KindParse                Kind = "parse"
	KindValidation           Kind = "validation"
	KindUnknownSchedule      Kind = "unknown_schedule"
	KindUnknownPeriod        Kind = "unknown_period"
	KindUnsupportedResource  Kind = "unsupported_resource"
	KindInsufficientCapacity Kind = "insufficient_capacity"
	KindTransientProvider    Kind = "transient_provider"
	KindRoleAssumption       Kind = "role_assumption"
	KindStoreConflict        Kind = "store_conflict"
)

// schedulerError pairs a Kind with the underlying cause.
type schedulerError struct {
	kind Kind
	err  error
}

func (e *schedulerError) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.err)
}

func (e *schedulerError) Unwrap() error {
	return e.err
}

// Wrap attaches kind to err. Wrapping a nil error returns nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &schedulerError{kind: kind, err: err}
}

// Wrapf formats a message and wraps it with kind, in one step.
func Wrapf(kind Kind, format string, args ...interface{}) error {
	return Wrap(kind, fmt.Errorf(format, args...))
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var se *schedulerError
	if errors.As(err, &se) {
		return se.kind == kind
	}
	return false
}

// KindOf returns the Kind attached to err, and false if err carries none.
func KindOf(err error) (Kind, bool) {
	var se *schedulerError
	if errors.As(err, &se) {
		return se.kind, true
	}
	return "", false
}

// TargetFatal reports whether a failure of this kind should abort
// processing of the whole target rather than just the one resource.
func TargetFatal(kind Kind) bool {
	switch kind {
	case KindRoleAssumption, KindStoreConflict:
		return true
	default:
		return false
	}
}

// Retryable reports whether the decision function should fall back to
// retrying on the next evaluation cycle rather than giving up.
func Retryable(kind Kind) bool {
	switch kind {
	case KindInsufficientCapacity, KindTransientProvider:
		return true
	default:
		return false
	}
}
