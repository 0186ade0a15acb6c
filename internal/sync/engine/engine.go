package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/syncer/internal/core/domain"
	"github.com/vietddude/syncer/internal/core/session"
	"github.com/vietddude/syncer/internal/infra/storage"
	"github.com/vietddude/syncer/internal/notify"
	"github.com/vietddude/syncer/internal/sync/classify"
	"github.com/vietddude/syncer/internal/sync/metrics"
	"github.com/vietddude/syncer/internal/sync/processor"
	"github.com/vietddude/syncer/internal/sync/retry"
	"github.com/vietddude/syncer/internal/sync/source"
)

// Status values reported in a sync Result.
const (
	StatusCompleted = "completed"
	StatusDryRun    = "dry_run"
)

// Result summarizes one finished sync run.
type Result struct {
	Status     string               `json:"status"`
	SessionID  string               `json:"session_id,omitempty"`
	Stats      domain.ProgressStats `json:"stats"`
	Batches    int                  `json:"batches"`
	DurationMs int64                `json:"duration_ms"`

	// Config echoes the validated configuration on dry runs.
	Config *Config `json:"config,omitempty"`
}

// Engine orchestrates full sync runs: validation, adapter setup,
// batch streaming, target processing, session tracking and progress
// notification.
type Engine struct {
	adapters *source.Registry
	store    storage.TargetStore
	sessions session.Manager
	retrier  *retry.Executor
	notifier notify.Notifier
	logger   *slog.Logger

	mu        sync.Mutex
	cancelled map[string]bool
}

// New wires an engine from its collaborators. notifier may be nil.
func New(
	adapters *source.Registry,
	store storage.TargetStore,
	sessions session.Manager,
	retrier *retry.Executor,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Engine {
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &Engine{
		adapters:  adapters,
		store:     store,
		sessions:  sessions,
		retrier:   retrier,
		notifier:  notifier,
		logger:    logger,
		cancelled: make(map[string]bool),
	}
}

// Execute runs a full sync to completion. Validation and adapter setup
// happen before any session exists, so an invalid run leaves no trace.
func (e *Engine) Execute(ctx context.Context, cfg Config, opts Options) (*Result, error) {
	adapter, proc, err := e.initialize(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		e.logger.Info("dry run validated",
			"source_adapter", cfg.SourceAdapter,
			"target_resource", cfg.TargetResource)
		return &Result{Status: StatusDryRun, Config: &cfg}, nil
	}

	sess, err := e.sessions.Start(ctx, cfg.SyncType, cfg.TargetResource, cfg.SourceAdapter, map[string]any{
		"batch_size": cfg.Processing.BatchSize,
		"limit":      cfg.Processing.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	var estimated *int
	if total, ok, err := adapter.TotalCount(ctx); err == nil && ok {
		estimated = &total
	}

	if err := e.sessions.MarkRunning(ctx, sess.ID, estimated); err != nil {
		return nil, err
	}

	started := time.Now()
	result, runErr := e.run(ctx, cfg, adapter, proc, sess.ID)
	e.clearCancel(sess.ID)

	if runErr != nil {
		if errors.Is(runErr, errCancelled) {
			cancelledSess, _ := e.sessions.Cancel(ctx, sess.ID, "cancel requested")
			e.notifyStatus(ctx, cancelledSess)
			result.Status = string(domain.SessionStatusCancelled)
			result.SessionID = sess.ID
			result.DurationMs = time.Since(started).Milliseconds()
			return result, nil
		}

		classification := classify.Classify(runErr, classify.Context{
			Operation: "execute_sync",
			Resource:  cfg.TargetResource,
			SessionID: sess.ID,
		})
		metrics.SyncErrorsTotal.WithLabelValues(
			string(classification.Category), string(classification.Severity)).Inc()

		failedSess, _ := e.sessions.Fail(ctx, sess.ID, map[string]any{
			"error":       runErr.Error(),
			"category":    string(classification.Category),
			"fingerprint": classification.Fingerprint,
		})
		e.notifyStatus(ctx, failedSess)
		return nil, fmt.Errorf("sync %s failed: %w", sess.ID, runErr)
	}

	doneSess, err := e.sessions.Complete(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	e.notifyStatus(ctx, doneSess)

	result.Status = StatusCompleted
	result.SessionID = sess.ID
	result.DurationMs = time.Since(started).Milliseconds()
	if doneSess.FinalStats != nil {
		result.Stats = *doneSess.FinalStats
	}

	e.logger.Info("sync completed",
		"session_id", sess.ID,
		"processed", result.Stats.Processed,
		"created", result.Stats.Created,
		"updated", result.Stats.Updated,
		"existing", result.Stats.Existing,
		"errors", result.Stats.Errors,
		"duration_ms", result.DurationMs,
	)
	return result, nil
}

// errCancelled aborts the batch loop when a cancel flag is observed.
var errCancelled = errors.New("sync cancelled")

// run drives the batch loop over an initialized adapter.
func (e *Engine) run(
	ctx context.Context,
	cfg Config,
	adapter source.Adapter,
	proc *processor.Processor,
	sessionID string,
) (*Result, error) {
	it, err := adapter.Stream(ctx)
	if err != nil {
		return &Result{}, fmt.Errorf("failed to open source stream: %w", err)
	}
	defer it.Close()

	result := &Result{}
	processed := 0

	for batchNum := 1; ; batchNum++ {
		if e.isCancelled(sessionID) {
			return result, errCancelled
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		size := cfg.Processing.BatchSize
		if cfg.Processing.Limit > 0 && processed+size > cfg.Processing.Limit {
			size = cfg.Processing.Limit - processed
		}
		if size <= 0 {
			break
		}

		batch, err := readBatch(ctx, it, size)
		if err != nil {
			return result, err
		}
		if len(batch) == 0 {
			break
		}

		batchStart := time.Now()
		stats := e.processBatch(ctx, cfg, proc, sessionID, batch)
		metrics.BatchDuration.WithLabelValues(cfg.TargetResource).
			Observe(time.Since(batchStart).Seconds())

		processed += stats.Processed
		result.Batches = batchNum
		result.Stats.Add(stats)

		sess, err := e.sessions.UpdateProgress(ctx, sessionID, stats)
		if err != nil {
			return result, err
		}
		e.notifyProgress(ctx, sess, batchNum)

		if len(batch) < size {
			break
		}
		if cfg.Processing.Limit > 0 && processed >= cfg.Processing.Limit {
			break
		}
	}

	return result, nil
}

// processBatch writes one batch through the target processor,
// optionally routing each record through the retry engine.
func (e *Engine) processBatch(
	ctx context.Context,
	cfg Config,
	proc *processor.Processor,
	sessionID string,
	batch []*domain.SourceRecord,
) domain.ProgressStats {
	outcomes := make([]domain.Outcome, 0, len(batch))

	for _, raw := range batch {
		if e.isCancelled(sessionID) {
			break
		}

		var outcome domain.Outcome
		if cfg.Processing.EnableErrorRecovery {
			outcome = e.processWithRetry(ctx, cfg, proc, raw)
		} else {
			outcome = proc.ProcessRecord(ctx, raw, cfg.Actor)
		}

		if outcome.Err != nil {
			classification := classify.Classify(outcome.Err, classify.Context{
				Operation: "process_record",
				Resource:  cfg.TargetResource,
				SessionID: sessionID,
			})
			metrics.SyncErrorsTotal.WithLabelValues(
				string(classification.Category), string(classification.Severity)).Inc()
			e.logger.Warn("record failed",
				"session_id", sessionID,
				"external_id", raw.ExternalID,
				"category", string(classification.Category),
				"fingerprint", classification.Fingerprint,
				"error", outcome.Err,
			)
		} else {
			metrics.RecordsProcessed.WithLabelValues(cfg.TargetResource, string(outcome.Kind)).Inc()
		}
		outcomes = append(outcomes, outcome)
	}

	return processor.BatchStats(outcomes)
}

func (e *Engine) processWithRetry(
	ctx context.Context,
	cfg Config,
	proc *processor.Processor,
	raw *domain.SourceRecord,
) domain.Outcome {
	policyName := retry.PolicyDatabaseOperations
	if cfg.Processing.EnableCircuitBreaker {
		policyName = retry.PolicyCriticalOperations
	}

	opts := retry.Options{
		PolicyName: policyName,
		RetryWhen: func(err error) bool {
			c := classify.Classify(err, classify.Context{Operation: "process_record"})
			return c.RetryEligible
		},
	}
	if cfg.Processing.MaxRecoveryAttempts > 0 {
		if p, ok := retry.NamedPolicy(policyName); ok {
			p.MaxAttempts = cfg.Processing.MaxRecoveryAttempts
			opts.Policy = &p
			opts.PolicyName = ""
		}
	}

	operationID := "process_record:" + cfg.TargetResource
	result, err := e.retrier.Execute(ctx, operationID, func() (any, error) {
		outcome := proc.ProcessRecord(ctx, raw, cfg.Actor)
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		return outcome, nil
	}, opts)
	if err != nil {
		return domain.Outcome{Err: err}
	}
	return result.(domain.Outcome)
}

// initialize validates config and prepares the adapter and processor.
// Fails fast: no session, no writes.
func (e *Engine) initialize(ctx context.Context, cfg Config) (source.Adapter, *processor.Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	adapter, err := e.adapters.Get(cfg.SourceAdapter)
	if err != nil {
		return nil, nil, &InitError{Stage: "adapter_init", Detail: err.Error(), Cause: err}
	}
	if err := adapter.Init(ctx, cfg.SourceConfig); err != nil {
		return nil, nil, &InitError{Stage: "adapter_init", Detail: err.Error(), Cause: err}
	}
	if err := adapter.ValidateConnection(ctx); err != nil {
		return nil, nil, &InitError{Stage: "connection", Detail: err.Error(), Cause: err}
	}

	proc, err := processor.New(e.store, cfg.TargetResource, cfg.TargetConfig)
	if err != nil {
		return nil, nil, &InitError{Stage: "validation", Detail: err.Error(), Cause: err}
	}
	return adapter, proc, nil
}

// Cancel signals a running session to stop after its current batch.
func (e *Engine) Cancel(ctx context.Context, sessionID string) error {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.IsActive() {
		return fmt.Errorf("session %s is not active (status %s)", sessionID, sess.Status)
	}

	e.mu.Lock()
	e.cancelled[sessionID] = true
	e.mu.Unlock()

	e.logger.Info("cancel requested", "session_id", sessionID)
	return nil
}

// Status returns the current session snapshot.
func (e *Engine) Status(ctx context.Context, sessionID string) (*domain.Session, error) {
	return e.sessions.Get(ctx, sessionID)
}

func (e *Engine) isCancelled(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled[sessionID]
}

func (e *Engine) clearCancel(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cancelled, sessionID)
}

func (e *Engine) notifyProgress(ctx context.Context, sess *domain.Session, batchNum int) {
	if sess == nil {
		return
	}
	_ = e.notifier.Notify(ctx, notify.Progress{
		SessionID:      sess.ID,
		Status:         string(sess.Status),
		BatchNumber:    batchNum,
		PagesProcessed: batchNum,
		ItemsFound:     sess.Progress.Processed,
		ItemsCreated:   sess.Progress.Created,
		ItemsUpdated:   sess.Progress.Updated,
		ItemsExisting:  sess.Progress.Existing,
		ErrorsCount:    sess.Progress.Errors,
	})
}

func (e *Engine) notifyStatus(ctx context.Context, sess *domain.Session) {
	if sess == nil {
		return
	}
	_ = e.notifier.Notify(ctx, notify.Progress{
		SessionID:     sess.ID,
		Status:        string(sess.Status),
		ItemsFound:    sess.Progress.Processed,
		ItemsCreated:  sess.Progress.Created,
		ItemsUpdated:  sess.Progress.Updated,
		ItemsExisting: sess.Progress.Existing,
		ErrorsCount:   sess.Progress.Errors,
	})
}

// readBatch pulls up to size records off the iterator. A short batch
// means the source is exhausted.
func readBatch(ctx context.Context, it source.RecordIterator, size int) ([]*domain.SourceRecord, error) {
	batch := make([]*domain.SourceRecord, 0, size)
	for len(batch) < size {
		rec, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return batch, nil
		}
		if err != nil {
			return batch, err
		}
		batch = append(batch, rec)
	}
	return batch, nil
}
