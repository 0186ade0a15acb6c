package domain

import (
	"errors"
	"fmt"
	"time"
)

// SyncError is the tagged error family the classifier's decision table
// operates on. Driver and transport errors are converted into one of
// these variants at the boundary where they are caught, so classification
// never has to match on ad hoc error strings.
type SyncError interface {
	error
	syncError()
}

// NetworkError wraps transport, timeout and connection failures
// raised by a source adapter.
type NetworkError struct {
	Op      string // operation that failed, e.g. "fetch_page"
	Timeout bool
	Cause   error
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("network timeout during %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Cause)
}
func (e *NetworkError) Unwrap() error { return e.Cause }
func (e *NetworkError) syncError()    {}

// ConstraintError wraps uniqueness, foreign-key and check violations
// raised by the target store.
type ConstraintError struct {
	Constraint string // constraint name if known
	Kind       string // unique | foreign_key | check
	Cause      error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation (%s %s): %v", e.Kind, e.Constraint, e.Cause)
}
func (e *ConstraintError) Unwrap() error { return e.Cause }
func (e *ConstraintError) syncError()    {}

// ValidationError reports a record that failed schema or domain validation.
// Retrying does not fix bad input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}
func (e *ValidationError) syncError() {}

// RateLimitError reports that the source or an internal limiter
// declined the call.
type RateLimitError struct {
	Limiter    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s", e.Limiter)
}
func (e *RateLimitError) syncError() {}

// SlowOperationError flags an operation that succeeded or failed only
// after exceeding its expected duration.
type SlowOperationError struct {
	Op       string
	Elapsed  time.Duration
	Expected time.Duration
	Cause    error
}

func (e *SlowOperationError) Error() string {
	return fmt.Sprintf("operation %s took %s (expected <= %s)", e.Op, e.Elapsed, e.Expected)
}
func (e *SlowOperationError) Unwrap() error { return e.Cause }
func (e *SlowOperationError) syncError()    {}

// ApplicationError is the conservative default for anything unclassified.
type ApplicationError struct {
	Op    string
	Cause error
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("application error in %s: %v", e.Op, e.Cause)
}
func (e *ApplicationError) Unwrap() error { return e.Cause }
func (e *ApplicationError) syncError()    {}

// AsSyncError extracts a SyncError from an error chain, if present.
func AsSyncError(err error) (SyncError, bool) {
	var se SyncError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
