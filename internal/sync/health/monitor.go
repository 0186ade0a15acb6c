package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/syncer/internal/core/session"
	"github.com/vietddude/syncer/internal/sync/metrics"
)

// DatabasePinger checks whether the backing store is reachable.
type DatabasePinger interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from active sessions and the store.
type Monitor struct {
	sessions   session.Manager
	db         DatabasePinger
	lastCheck  time.Time
	lastReport *Report
	mu         sync.RWMutex
}

// NewMonitor creates a new health monitor. db may be nil for the
// in-memory backend.
func NewMonitor(sessions session.Manager, db DatabasePinger) *Monitor {
	return &Monitor{
		sessions: sessions,
		db:       db,
	}
}

// CheckHealth builds a health report over all active sessions.
func (m *Monitor) CheckHealth(ctx context.Context) *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks (max once per 10s) to avoid hammering the store
	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport != nil {
		return m.lastReport
	}

	report := &Report{
		SystemStatus:   StatusHealthy,
		Database:       StatusHealthy,
		ActiveSessions: make(map[string]SessionHealth),
	}

	if m.db != nil {
		if err := m.db.Health(ctx); err != nil {
			report.Database = StatusCritical
			report.SystemStatus = StatusCritical
		}
	}

	active, err := m.sessions.ListActive(ctx)
	if err != nil {
		report.SystemStatus = StatusCritical
		m.lastCheck = time.Now()
		m.lastReport = report
		return report
	}
	metrics.ActiveSessions.Set(float64(len(active)))

	for _, sess := range active {
		sh := SessionHealth{
			SessionID:     sess.ID,
			Status:        StatusHealthy,
			SessionStatus: string(sess.Status),
			Processed:     sess.Progress.Processed,
			ErrorCount:    sess.ErrorCount,
			ErrorRate:     sess.ErrorRatePercentage(),
			CompletionPct: sess.CompletionPercentage(),
			RecordsPerMin: sess.RecordsPerMinute(),
		}

		if sh.ErrorRate > 25 || sess.ErrorCount > 100 {
			sh.Status = StatusCritical
		} else if sh.ErrorRate > 5 || sess.ErrorCount > 0 {
			sh.Status = StatusDegraded
		}

		if sh.Status == StatusCritical {
			report.SystemStatus = StatusCritical
		} else if sh.Status == StatusDegraded && report.SystemStatus == StatusHealthy {
			report.SystemStatus = StatusDegraded
		}

		report.ActiveSessions[sess.ID] = sh
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
