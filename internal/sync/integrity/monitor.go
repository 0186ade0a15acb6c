package integrity

import (
	"context"
	"time"

	"github.com/vietddude/syncer/internal/core/domain"
)

// MonitorOptions tunes a continuous integrity monitor.
type MonitorOptions struct {
	// CheckInterval between verification passes. Defaults to 30s.
	CheckInterval time.Duration

	// AlertThresholdPercentage is the discrepancy percentage above
	// which an alert fires. Defaults to 5.0.
	AlertThresholdPercentage float64

	// AutoCorrection reconciles issues as they are found.
	AutoCorrection bool

	// Resources restricts monitoring to these resource identifiers.
	Resources []string
}

// Monitor is a handle on a running background integrity check.
type Monitor struct {
	stop chan struct{}
	done chan struct{}
}

// Stop halts the background loop and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
}

// MonitorSession starts a recurring count-only verification for a
// session's resources, alerting when drift exceeds the threshold.
func (v *Verifier) MonitorSession(ctx context.Context, sessionID string, opts MonitorOptions) *Monitor {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 30 * time.Second
	}
	if opts.AlertThresholdPercentage <= 0 {
		opts.AlertThresholdPercentage = 5.0
	}

	m := &Monitor{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(opts.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				v.checkOnce(ctx, sessionID, opts)
			}
		}
	}()
	return m
}

func (v *Verifier) checkOnce(ctx context.Context, sessionID string, opts MonitorOptions) {
	report, err := v.Verify(ctx, domain.VerifyCountOnly, Options{Resources: opts.Resources})
	if err != nil {
		v.logger.Warn("integrity monitor check failed",
			"session_id", sessionID, "error", err)
		return
	}

	discrepancy := 100 - report.IntegrityScore
	if discrepancy <= opts.AlertThresholdPercentage {
		return
	}

	v.logger.Error("integrity drift above threshold",
		"session_id", sessionID,
		"discrepancy_pct", discrepancy,
		"threshold_pct", opts.AlertThresholdPercentage,
		"status", string(report.OverallStatus),
	)

	if opts.AutoCorrection {
		if _, err := v.Reconcile(ctx, report, ReconcileOptions{Actor: "integrity_monitor"}); err != nil {
			v.logger.Error("auto correction failed", "session_id", sessionID, "error", err)
		}
	}
}
