package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/syncer/internal/core/domain"
	"github.com/vietddude/syncer/internal/infra/storage"
)

// =============================================================================
// Mock Repository
// =============================================================================

type mockSessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{
		sessions: make(map[string]*domain.Session),
	}
}

func (r *mockSessionRepo) Create(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := *session
	r.sessions[session.ID] = &s
	return nil
}

func (r *mockSessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	// Return a copy
	s := *session
	return &s, nil
}

func (r *mockSessionRepo) Update(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; !ok {
		return storage.ErrSessionNotFound
	}
	s := *session
	r.sessions[session.ID] = &s
	return nil
}

func (r *mockSessionRepo) ListActive(ctx context.Context) ([]*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Session
	for _, session := range r.sessions {
		if session.IsActive() {
			s := *session
			out = append(out, &s)
		}
	}
	return out, nil
}

func (r *mockSessionRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		s := *session
		out = append(out, &s)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// State Transition Tests
// =============================================================================

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     Status
		to       Status
		expected bool
	}{
		{"pending to running", domain.SessionStatusPending, domain.SessionStatusRunning, true},
		{"pending to cancelled", domain.SessionStatusPending, domain.SessionStatusCancelled, true},
		{"pending to completed", domain.SessionStatusPending, domain.SessionStatusCompleted, false},
		{"running to paused", domain.SessionStatusRunning, domain.SessionStatusPaused, true},
		{"running to completed", domain.SessionStatusRunning, domain.SessionStatusCompleted, true},
		{"running to failed", domain.SessionStatusRunning, domain.SessionStatusFailed, true},
		{"paused to running", domain.SessionStatusPaused, domain.SessionStatusRunning, true},
		{"paused to completed", domain.SessionStatusPaused, domain.SessionStatusCompleted, false},
		{"completed to running", domain.SessionStatusCompleted, domain.SessionStatusRunning, false},
		{"cancelled to running", domain.SessionStatusCancelled, domain.SessionStatusRunning, false},
		{"failed to running", domain.SessionStatusFailed, domain.SessionStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

// =============================================================================
// Manager Tests
// =============================================================================

func newTestManager() (*DefaultManager, *mockSessionRepo) {
	repo := newMockSessionRepo()
	m := NewManager(repo)
	return m, repo
}

func TestStartCreatesPendingSession(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	session, err := m.Start(ctx, domain.SyncTypeImportCases, "enforcement.cases", "rest", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if session.Status != domain.SessionStatusPending {
		t.Errorf("expected pending status, got %s", session.Status)
	}
	if !domain.SessionIDPattern.MatchString(session.ID) {
		t.Errorf("session ID %q does not match naming pattern", session.ID)
	}
	if session.StartedAt == nil {
		t.Error("expected start timestamp to be stamped at creation")
	}
}

func TestStartRejectsInvalidResource(t *testing.T) {
	m, _ := newTestManager()

	_, err := m.Start(context.Background(), domain.SyncTypeImportCases, "NotAResource", "rest", nil)
	if err == nil {
		t.Fatal("expected error for invalid resource identifier")
	}
}

func TestSessionLifecycle(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	session, err := m.Start(ctx, domain.SyncTypeImportCases, "enforcement.cases", "rest", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	total := 100
	if err := m.MarkRunning(ctx, session.ID, &total); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}

	updated, err := m.UpdateProgress(ctx, session.ID, domain.ProgressStats{
		Processed: 50, Created: 30, Updated: 10, Existing: 8, Errors: 2,
	})
	if err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if updated.Progress.Processed != 50 {
		t.Errorf("expected 50 processed, got %d", updated.Progress.Processed)
	}
	if updated.ErrorCount != 2 {
		t.Errorf("expected error count 2, got %d", updated.ErrorCount)
	}

	done, err := m.Complete(ctx, session.ID)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if done.Status != domain.SessionStatusCompleted {
		t.Errorf("expected completed status, got %s", done.Status)
	}
	if done.FinalStats == nil || done.FinalStats.Processed != 50 {
		t.Errorf("final stats not frozen: %+v", done.FinalStats)
	}
	if done.CompletedAt == nil {
		t.Error("expected completion timestamp")
	}
}

func TestCompleteFromPendingRejected(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	session, _ := m.Start(ctx, domain.SyncTypeImportCases, "enforcement.cases", "rest", nil)

	_, err := m.Complete(ctx, session.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPauseResume(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	session, _ := m.Start(ctx, domain.SyncTypeImportCases, "enforcement.cases", "rest", nil)
	if err := m.MarkRunning(ctx, session.ID, nil); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}

	if err := m.Pause(ctx, session.ID, "maintenance window"); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	// In-flight batches may still report while paused
	if _, err := m.UpdateProgress(ctx, session.ID, domain.ProgressStats{Processed: 1}); err != nil {
		t.Errorf("expected progress update to succeed while paused, got %v", err)
	}

	if err := m.Resume(ctx, session.ID); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	got, _ := m.Get(ctx, session.ID)
	if got.Status != domain.SessionStatusRunning {
		t.Errorf("expected running after resume, got %s", got.Status)
	}
}

func TestUpdateProgressStatesAndClamping(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	session, _ := m.Start(ctx, domain.SyncTypeImportCases, "enforcement.cases", "rest", nil)
	total := 100
	_ = m.MarkRunning(ctx, session.ID, &total)

	if _, err := m.UpdateProgress(ctx, session.ID, domain.ProgressStats{Processed: 40, Created: 40}); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	if err := m.Pause(ctx, session.ID, "maintenance window"); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	updated, err := m.UpdateProgress(ctx, session.ID, domain.ProgressStats{Processed: 10, Created: 10})
	if err != nil {
		t.Fatalf("UpdateProgress while paused failed: %v", err)
	}
	if updated.Status != domain.SessionStatusPaused {
		t.Errorf("progress update must not change state, got %s", updated.Status)
	}
	if updated.Progress.Processed != 50 {
		t.Errorf("expected 50 processed, got %d", updated.Progress.Processed)
	}

	// Negative deltas are ignored so counters never move backwards
	updated, err = m.UpdateProgress(ctx, session.ID, domain.ProgressStats{Processed: -80, Created: -80})
	if err != nil {
		t.Fatalf("UpdateProgress with negative delta failed: %v", err)
	}
	if updated.Progress.Processed != 50 || updated.Progress.Created != 50 {
		t.Errorf("negative delta must not reduce counters: %+v", updated.Progress)
	}

	if _, err := m.Cancel(ctx, session.ID, "abort"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, err := m.UpdateProgress(ctx, session.ID, domain.ProgressStats{Processed: 1}); err == nil {
		t.Error("expected progress update to fail in terminal state")
	}
}

func TestResumeRequiresPaused(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	session, _ := m.Start(ctx, domain.SyncTypeImportCases, "enforcement.cases", "rest", nil)
	if err := m.Resume(ctx, session.ID); err == nil {
		t.Fatal("expected resume of non-paused session to fail")
	}
}

func TestFailRecordsErrorInfo(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	session, _ := m.Start(ctx, domain.SyncTypeImportCases, "enforcement.cases", "rest", nil)
	_ = m.MarkRunning(ctx, session.ID, nil)

	failed, err := m.Fail(ctx, session.ID, map[string]any{"reason": "source unreachable"})
	if err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if failed.Status != domain.SessionStatusFailed {
		t.Errorf("expected failed status, got %s", failed.Status)
	}
	if failed.ErrorInfo["reason"] != "source unreachable" {
		t.Errorf("error info not recorded: %+v", failed.ErrorInfo)
	}
}

func TestProcessingTimeComputed(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	m.now = func() time.Time { return clock }

	session, _ := m.Start(ctx, domain.SyncTypeImportCases, "enforcement.cases", "rest", nil)
	_ = m.MarkRunning(ctx, session.ID, nil)

	clock = base.Add(90 * time.Second)
	done, err := m.Complete(ctx, session.ID)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if done.ProcessingTimeMs != 90000 {
		t.Errorf("expected 90000ms processing time, got %d", done.ProcessingTimeMs)
	}
}

func TestStatusChangeCallback(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	var transitions []Transition
	m.SetStatusChangeCallback(func(id string, tr Transition) {
		transitions = append(transitions, tr)
	})

	session, _ := m.Start(ctx, domain.SyncTypeImportCases, "enforcement.cases", "rest", nil)
	_ = m.MarkRunning(ctx, session.ID, nil)
	_, _ = m.Complete(ctx, session.ID)

	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(transitions))
	}
	if transitions[0].To != domain.SessionStatusRunning {
		t.Errorf("first transition should be to running, got %s", transitions[0].To)
	}
	if transitions[1].To != domain.SessionStatusCompleted {
		t.Errorf("second transition should be to completed, got %s", transitions[1].To)
	}
}

func TestCancelTerminal(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	session, _ := m.Start(ctx, domain.SyncTypeImportCases, "enforcement.cases", "rest", nil)

	cancelled, err := m.Cancel(ctx, session.ID, "")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != domain.SessionStatusCancelled {
		t.Errorf("expected cancelled status, got %s", cancelled.Status)
	}

	// Terminal: no further transitions allowed
	if err := m.MarkRunning(ctx, session.ID, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition after cancel, got %v", err)
	}
}
