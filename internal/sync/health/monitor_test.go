package health

import (
	"context"
	"testing"

	"github.com/vietddude/syncer/internal/core/domain"
	"github.com/vietddude/syncer/internal/core/session"
	"github.com/vietddude/syncer/internal/infra/storage/memory"
)

func newTestMonitor(t *testing.T) (*Monitor, session.Manager) {
	t.Helper()
	mgr := session.NewManager(memory.NewSessionRepo(memory.NewMemoryStorage()))
	return NewMonitor(mgr, nil), mgr
}

func TestHealthyWithNoSessions(t *testing.T) {
	m, _ := newTestMonitor(t)

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.SystemStatus)
	}
	if len(report.ActiveSessions) != 0 {
		t.Errorf("expected no active sessions, got %d", len(report.ActiveSessions))
	}
}

func TestDegradedOnSessionErrors(t *testing.T) {
	m, mgr := newTestMonitor(t)
	ctx := context.Background()

	sess, err := mgr.Start(ctx, domain.SyncTypeImportCases, "enforcement.cases", "rest", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	total := 1000
	if err := mgr.MarkRunning(ctx, sess.ID, &total); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if _, err := mgr.UpdateProgress(ctx, sess.ID, domain.ProgressStats{Processed: 100, Created: 95, Errors: 5}); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	report := m.CheckHealth(ctx)
	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded with session errors, got %s", report.SystemStatus)
	}
	sh, ok := report.ActiveSessions[sess.ID]
	if !ok {
		t.Fatal("active session missing from report")
	}
	if sh.ErrorCount != 5 {
		t.Errorf("expected 5 errors, got %d", sh.ErrorCount)
	}
}

func TestReportCached(t *testing.T) {
	m, mgr := newTestMonitor(t)
	ctx := context.Background()

	first := m.CheckHealth(ctx)

	// New session inside the cache window must not change the report
	if _, err := mgr.Start(ctx, domain.SyncTypeImportCases, "enforcement.cases", "rest", nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	second := m.CheckHealth(ctx)
	if len(second.ActiveSessions) != len(first.ActiveSessions) {
		t.Error("expected cached report inside rate-limit window")
	}
}
