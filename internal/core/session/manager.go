package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/syncer/internal/core/domain"
	"github.com/vietddude/syncer/internal/infra/storage"
)

// Manager handles session lifecycle with state machine enforcement.
type Manager interface {
	// Start creates a new session in pending state and stamps the
	// start time.
	Start(ctx context.Context, syncType domain.SyncType, targetResource, sourceAdapter string, config map[string]any) (*domain.Session, error)

	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// MarkRunning transitions a session to running and records the
	// source's estimated total.
	MarkRunning(ctx context.Context, id string, estimatedTotal *int) error

	// UpdateProgress merges a batch's stats into the session counters
	// without changing state. Allowed in any non-terminal state.
	UpdateProgress(ctx context.Context, id string, delta domain.ProgressStats) (*domain.Session, error)

	// Complete finishes the session successfully and freezes final stats.
	Complete(ctx context.Context, id string) (*domain.Session, error)

	// Fail aborts the session, recording what went wrong.
	Fail(ctx context.Context, id string, errorInfo map[string]any) (*domain.Session, error)

	// Cancel stops the session at the operator's request.
	Cancel(ctx context.Context, id string, reason string) (*domain.Session, error)

	// Pause suspends a running session.
	Pause(ctx context.Context, id string, reason string) error

	// Resume returns a paused session to running.
	Resume(ctx context.Context, id string) error

	// ListActive returns sessions in a non-terminal state.
	ListActive(ctx context.Context) ([]*domain.Session, error)

	// ListRecent returns the most recently started sessions.
	ListRecent(ctx context.Context, limit int) ([]*domain.Session, error)

	// SetStatusChangeCallback registers a callback for status changes.
	SetStatusChangeCallback(fn func(sessionID string, t Transition))
}

// DefaultManager implements Manager with state machine enforcement.
type DefaultManager struct {
	repo           storage.SessionRepository
	log            *slog.Logger
	mu             sync.RWMutex
	statusCallback func(string, Transition)
	now            func() time.Time
}

// NewManager creates a session manager over the given repository.
func NewManager(repo storage.SessionRepository) *DefaultManager {
	return &DefaultManager{
		repo: repo,
		log:  slog.Default(),
		now:  time.Now,
	}
}

// Start creates a new session in pending state and stamps the start time.
func (m *DefaultManager) Start(
	ctx context.Context,
	syncType domain.SyncType,
	targetResource string,
	sourceAdapter string,
	config map[string]any,
) (*domain.Session, error) {
	if !domain.ResourcePattern.MatchString(targetResource) {
		return nil, fmt.Errorf("invalid target resource %q", targetResource)
	}

	started := m.now()
	session := &domain.Session{
		ID:             domain.NewSessionID(syncType),
		SyncType:       syncType,
		TargetResource: targetResource,
		SourceAdapter:  sourceAdapter,
		Status:         domain.SessionStatusPending,
		Config:         config,
		StartedAt:      &started,
	}

	if err := m.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// Get retrieves a session by ID.
func (m *DefaultManager) Get(ctx context.Context, id string) (*domain.Session, error) {
	return m.repo.Get(ctx, id)
}

// MarkRunning transitions a session to running and records the
// source's estimated total.
func (m *DefaultManager) MarkRunning(ctx context.Context, id string, estimatedTotal *int) error {
	session, err := m.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	if err := m.transition(session, domain.SessionStatusRunning, "sync started"); err != nil {
		return err
	}

	session.EstimatedTotal = estimatedTotal

	if err := m.repo.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// UpdateProgress merges a batch's stats into the session counters
// without changing state. The session may be in any non-terminal
// state; counters only move forward, so negative delta fields are
// ignored.
func (m *DefaultManager) UpdateProgress(
	ctx context.Context,
	id string,
	delta domain.ProgressStats,
) (*domain.Session, error) {
	session, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if !session.IsActive() {
		return nil, fmt.Errorf("cannot record progress in terminal state %s", session.Status)
	}

	delta = clampNonNegative(delta)
	session.Progress.Add(delta)
	session.ErrorCount += delta.Errors

	if session.EstimatedTotal != nil && session.Progress.Processed > *session.EstimatedTotal {
		m.log.Warn("processed count exceeds estimated total",
			"session_id", session.ID,
			"processed", session.Progress.Processed,
			"estimated_total", *session.EstimatedTotal)
	}

	if err := m.repo.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return session, nil
}

// clampNonNegative zeroes negative counter deltas so progress never
// moves backwards.
func clampNonNegative(d domain.ProgressStats) domain.ProgressStats {
	if d.Processed < 0 {
		d.Processed = 0
	}
	if d.Created < 0 {
		d.Created = 0
	}
	if d.Updated < 0 {
		d.Updated = 0
	}
	if d.Existing < 0 {
		d.Existing = 0
	}
	if d.Errors < 0 {
		d.Errors = 0
	}
	return d
}

// Complete finishes the session successfully and freezes final stats.
func (m *DefaultManager) Complete(ctx context.Context, id string) (*domain.Session, error) {
	return m.finish(ctx, id, domain.SessionStatusCompleted, "sync completed", nil)
}

// Fail aborts the session, recording what went wrong.
func (m *DefaultManager) Fail(ctx context.Context, id string, errorInfo map[string]any) (*domain.Session, error) {
	return m.finish(ctx, id, domain.SessionStatusFailed, "sync failed", errorInfo)
}

// Cancel stops the session at the operator's request.
func (m *DefaultManager) Cancel(ctx context.Context, id string, reason string) (*domain.Session, error) {
	if reason == "" {
		reason = "cancelled by operator"
	}
	return m.finish(ctx, id, domain.SessionStatusCancelled, reason, nil)
}

// finish drives a session into a terminal state.
func (m *DefaultManager) finish(
	ctx context.Context,
	id string,
	status Status,
	reason string,
	errorInfo map[string]any,
) (*domain.Session, error) {
	session, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if err := m.transition(session, status, reason); err != nil {
		return nil, err
	}

	completed := m.now()
	session.CompletedAt = &completed
	if session.StartedAt != nil {
		session.ProcessingTimeMs = completed.Sub(*session.StartedAt).Milliseconds()
	}

	stats := session.Progress
	session.FinalStats = &stats
	if errorInfo != nil {
		session.ErrorInfo = errorInfo
	}

	if err := m.repo.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return session, nil
}

// Pause suspends a running session.
func (m *DefaultManager) Pause(ctx context.Context, id string, reason string) error {
	session, err := m.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	if err := m.transition(session, domain.SessionStatusPaused, reason); err != nil {
		return err
	}
	if err := m.repo.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// Resume returns a paused session to running.
func (m *DefaultManager) Resume(ctx context.Context, id string) error {
	session, err := m.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	if session.Status != domain.SessionStatusPaused {
		return fmt.Errorf("session is not paused, current status: %s", session.Status)
	}

	if err := m.transition(session, domain.SessionStatusRunning, "manual resume"); err != nil {
		return err
	}
	if err := m.repo.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// ListActive returns sessions in a non-terminal state.
func (m *DefaultManager) ListActive(ctx context.Context) ([]*domain.Session, error) {
	return m.repo.ListActive(ctx)
}

// ListRecent returns the most recently started sessions.
func (m *DefaultManager) ListRecent(ctx context.Context, limit int) ([]*domain.Session, error) {
	return m.repo.ListRecent(ctx, limit)
}

// SetStatusChangeCallback registers a callback for status changes.
func (m *DefaultManager) SetStatusChangeCallback(fn func(sessionID string, t Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCallback = fn
}

// transition validates and applies a status change in memory, firing
// the registered callback. Callers persist the session afterwards.
func (m *DefaultManager) transition(session *domain.Session, to Status, reason string) error {
	if !CanTransition(session.Status, to) {
		return fmt.Errorf(
			"%w: cannot transition from %s to %s",
			ErrInvalidTransition,
			session.Status,
			to,
		)
	}

	t := NewTransition(session.Status, to, reason)
	session.Status = to

	m.mu.RLock()
	callback := m.statusCallback
	m.mu.RUnlock()
	if callback != nil {
		callback(session.ID, t)
	}
	return nil
}
