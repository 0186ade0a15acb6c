package session

import (
	"errors"
	"time"

	"github.com/vietddude/syncer/internal/core/domain"
)

// Status is an alias for domain.SessionStatus for internal use.
type Status = domain.SessionStatus

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current status, value is the list of valid next statuses.
var ValidTransitions = map[Status][]Status{
	domain.SessionStatusPending: {
		domain.SessionStatusRunning,
		domain.SessionStatusCancelled,
		domain.SessionStatusFailed,
	},
	domain.SessionStatusRunning: {
		domain.SessionStatusPaused,
		domain.SessionStatusCompleted,
		domain.SessionStatusFailed,
		domain.SessionStatusCancelled,
	},
	domain.SessionStatusPaused: {
		domain.SessionStatusRunning,
		domain.SessionStatusCancelled,
		domain.SessionStatusFailed,
	},
}

// CanTransition checks if a transition from one status to another is valid.
func CanTransition(from, to Status) bool {
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}

	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a status change with metadata.
type Transition struct {
	From      Status
	To        Status
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to Status, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StatusDescription returns a human-readable description of a status.
func StatusDescription(s Status) string {
	switch s {
	case domain.SessionStatusPending:
		return "Pending - session created, not yet started"
	case domain.SessionStatusRunning:
		return "Running - actively processing batches"
	case domain.SessionStatusPaused:
		return "Paused - stopped by operator, resumable"
	case domain.SessionStatusCompleted:
		return "Completed - finished successfully"
	case domain.SessionStatusFailed:
		return "Failed - aborted with an error"
	case domain.SessionStatusCancelled:
		return "Cancelled - stopped by operator, not resumable"
	default:
		return "Unknown status"
	}
}
