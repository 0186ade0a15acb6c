package domain

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of a sync session.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// SyncType identifies what kind of import a session performs.
type SyncType string

const (
	SyncTypeImportCases   SyncType = "import_cases"
	SyncTypeImportNotices SyncType = "import_notices"
	SyncTypeImportAll     SyncType = "import_all"
)

// SessionIDPattern is the naming pattern every session ID must match:
// sync_<type>_<unix>_<8 hex chars>.
var SessionIDPattern = regexp.MustCompile(`^sync_[a-z_]+_\d+_[0-9a-f]{8}$`)

// ResourcePattern constrains target resource identifiers to a
// fully-qualified dotted form, e.g. "enforcement.cases".
var ResourcePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)+$`)

// ProgressStats holds cumulative counters for a sync run.
// All values are non-negative.
type ProgressStats struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Existing  int `json:"existing"`
	Errors    int `json:"errors"`
}

// Add merges another stats snapshot into this one.
func (p *ProgressStats) Add(other ProgressStats) {
	p.Processed += other.Processed
	p.Created += other.Created
	p.Updated += other.Updated
	p.Existing += other.Existing
	p.Errors += other.Errors
}

// Session is the persisted record of one synchronization run.
type Session struct {
	ID               string         `json:"session_id"`
	SyncType         SyncType       `json:"sync_type"`
	TargetResource   string         `json:"target_resource"`
	SourceAdapter    string         `json:"source_adapter"`
	Status           SessionStatus  `json:"status"`
	EstimatedTotal   *int           `json:"estimated_total,omitempty"`
	Progress         ProgressStats  `json:"progress_stats"`
	ErrorCount       int            `json:"error_count"`
	FinalStats       *ProgressStats `json:"final_stats,omitempty"`
	ErrorInfo        map[string]any `json:"error_info,omitempty"`
	Config           map[string]any `json:"config,omitempty"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
}

// NewSessionID generates a session ID matching SessionIDPattern.
func NewSessionID(syncType SyncType) string {
	return fmt.Sprintf("sync_%s_%d_%s", syncType, time.Now().Unix(), uuid.NewString()[:8])
}

// IsActive reports whether the session is still in a non-terminal state.
func (s *Session) IsActive() bool {
	switch s.Status {
	case SessionStatusPending, SessionStatusRunning, SessionStatusPaused:
		return true
	}
	return false
}

// CompletionPercentage returns 100 * processed / estimated_total,
// or 0 when the total is unknown or zero.
func (s *Session) CompletionPercentage() float64 {
	if s.EstimatedTotal == nil || *s.EstimatedTotal <= 0 {
		return 0
	}
	return 100 * float64(s.Progress.Processed) / float64(*s.EstimatedTotal)
}

// RecordsPerMinute returns processing throughput since the session started.
func (s *Session) RecordsPerMinute() float64 {
	if s.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	minutes := end.Sub(*s.StartedAt).Minutes()
	if minutes <= 0 {
		return 0
	}
	return float64(s.Progress.Processed) / minutes
}

// ErrorRatePercentage returns 100 * error_count / estimated_total,
// or 0 when the total is unknown or zero.
func (s *Session) ErrorRatePercentage() float64 {
	if s.EstimatedTotal == nil || *s.EstimatedTotal <= 0 {
		return 0
	}
	return 100 * float64(s.ErrorCount) / float64(*s.EstimatedTotal)
}
