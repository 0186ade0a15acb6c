package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/syncer/internal/core/domain"
	"github.com/vietddude/syncer/internal/core/session"
	"github.com/vietddude/syncer/internal/infra/storage"
	"github.com/vietddude/syncer/internal/infra/storage/memory"
	"github.com/vietddude/syncer/internal/notify"
	"github.com/vietddude/syncer/internal/sync/processor"
	"github.com/vietddude/syncer/internal/sync/retry"
	"github.com/vietddude/syncer/internal/sync/source"
)

const testResource = "enforcement.cases"

// =============================================================================
// Test Fixtures
// =============================================================================

type capturingNotifier struct {
	mu       sync.Mutex
	events   []notify.Progress
	onNotify func(notify.Progress)
}

func (n *capturingNotifier) Notify(ctx context.Context, p notify.Progress) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, p)
	if n.onNotify != nil {
		n.onNotify(p)
	}
	return nil
}

func (n *capturingNotifier) all() []notify.Progress {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Progress, len(n.events))
	copy(out, n.events)
	return out
}

type fixture struct {
	engine   *Engine
	repo     *memory.SessionRepo
	store    *memory.TargetStore
	notifier *capturingNotifier
}

func newFixture(t *testing.T, records []*domain.SourceRecord) *fixture {
	t.Helper()

	mem := memory.NewMemoryStorage()
	repo := memory.NewSessionRepo(mem)
	store := memory.NewTargetStore(mem, []string{testResource})

	registry := source.NewRegistry()
	registry.Register(source.NewStaticAdapter("static", records))

	notifier := &capturingNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eng := New(
		registry,
		store,
		session.NewManager(repo),
		retry.NewExecutor(nil, nil),
		notifier,
		logger,
	)
	return &fixture{engine: eng, repo: repo, store: store, notifier: notifier}
}

func testRecords(n int) []*domain.SourceRecord {
	records := make([]*domain.SourceRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, &domain.SourceRecord{
			ExternalID: fmt.Sprintf("rec-%d", i),
			Fields: map[string]any{
				"case_id": fmt.Sprintf("rec-%d", i),
				"name":    fmt.Sprintf("case %d", i),
			},
		})
	}
	return records
}

func testConfig() Config {
	return Config{
		SourceAdapter:  "static",
		TargetResource: testResource,
		TargetConfig: processor.Config{
			UniqueField: "regulator_id",
			FieldMapping: map[string]string{
				"case_id": "regulator_id",
				"name":    "offender_name",
			},
		},
		Processing: ProcessingConfig{BatchSize: 10},
		SyncType:   domain.SyncTypeImportCases,
		Actor:      "system",
	}
}

// =============================================================================
// Execute Tests
// =============================================================================

func TestExecuteFullSync(t *testing.T) {
	f := newFixture(t, testRecords(25))

	result, err := f.engine.Execute(context.Background(), testConfig(), Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", result.Status)
	}
	if result.Stats.Created != 25 || result.Stats.Processed != 25 {
		t.Errorf("unexpected stats: %+v", result.Stats)
	}
	if result.Batches != 3 {
		t.Errorf("expected 3 batches for 25 records at batch_size 10, got %d", result.Batches)
	}

	sess, err := f.repo.Get(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if sess.Status != domain.SessionStatusCompleted {
		t.Errorf("expected completed session, got %s", sess.Status)
	}
	if sess.EstimatedTotal == nil || *sess.EstimatedTotal != 25 {
		t.Errorf("expected estimated total 25, got %v", sess.EstimatedTotal)
	}

	count, _ := f.store.Count(context.Background(), testResource)
	if count != 25 {
		t.Errorf("expected 25 target records, got %d", count)
	}

	// One progress event per batch plus the terminal transition
	events := f.notifier.all()
	if len(events) != 4 {
		t.Errorf("expected 4 notifications, got %d", len(events))
	}
}

func TestExecuteIdempotentWithSkip(t *testing.T) {
	f := newFixture(t, testRecords(12))

	cfg := testConfig()
	cfg.TargetConfig.DuplicateStrategy = "skip"

	first, err := f.engine.Execute(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.Stats.Created != 12 {
		t.Fatalf("expected 12 created on first run, got %d", first.Stats.Created)
	}

	second, err := f.engine.Execute(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.Stats.Created != 0 || second.Stats.Existing != 12 {
		t.Errorf("second run should be a no-op: %+v", second.Stats)
	}
}

func TestExecuteDryRun(t *testing.T) {
	f := newFixture(t, testRecords(10))

	result, err := f.engine.Execute(context.Background(), testConfig(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	if result.Status != StatusDryRun {
		t.Errorf("expected dry_run status, got %s", result.Status)
	}
	if result.Stats.Processed != 0 {
		t.Errorf("dry run must process zero records, got %d", result.Stats.Processed)
	}
	if result.Config == nil {
		t.Error("dry run should echo the validated config")
	}

	sessions, _ := f.repo.ListRecent(context.Background(), 10)
	if len(sessions) != 0 {
		t.Errorf("dry run must not create a session, found %d", len(sessions))
	}

	count, _ := f.store.Count(context.Background(), testResource)
	if count != 0 {
		t.Errorf("dry run must not write records, found %d", count)
	}
}

func TestExecuteInvalidConfigFailsFast(t *testing.T) {
	f := newFixture(t, testRecords(5))

	cfg := testConfig()
	cfg.Processing.BatchSize = 0

	_, err := f.engine.Execute(context.Background(), cfg, Options{})
	var initErr *InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected InitError, got %v", err)
	}

	sessions, _ := f.repo.ListRecent(context.Background(), 10)
	if len(sessions) != 0 {
		t.Errorf("failed validation must not create a session, found %d", len(sessions))
	}
}

func TestExecuteConnectionFailureFailsFast(t *testing.T) {
	mem := memory.NewMemoryStorage()
	registry := source.NewRegistry()
	adapter := source.NewStaticAdapter("static", nil)
	adapter.FailConnection(&domain.NetworkError{Op: "ping", Cause: errors.New("refused")})
	registry.Register(adapter)

	eng := New(
		registry,
		memory.NewTargetStore(mem, []string{testResource}),
		session.NewManager(memory.NewSessionRepo(mem)),
		retry.NewExecutor(nil, nil),
		&capturingNotifier{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	_, err := eng.Execute(context.Background(), testConfig(), Options{})
	var initErr *InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected InitError, got %v", err)
	}
	if initErr.Stage != "connection" {
		t.Errorf("expected connection stage, got %s", initErr.Stage)
	}
}

func TestExecuteRespectsLimit(t *testing.T) {
	f := newFixture(t, testRecords(50))

	cfg := testConfig()
	cfg.Processing.Limit = 15

	result, err := f.engine.Execute(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Stats.Processed != 15 {
		t.Errorf("expected 15 processed with limit, got %d", result.Stats.Processed)
	}
}

// failingStore wraps a TargetStore and fails every Create with a fixed
// error, counting the attempts.
type failingStore struct {
	storage.TargetStore
	mu       sync.Mutex
	attempts int
	err      error
}

func (s *failingStore) Create(ctx context.Context, resource, uniqueField string, attrs map[string]any, actor string) (*domain.TargetRecord, error) {
	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()
	return nil, s.err
}

func TestExecuteDoesNotRetrySlowOperations(t *testing.T) {
	mem := memory.NewMemoryStorage()
	store := &failingStore{
		TargetStore: memory.NewTargetStore(mem, []string{testResource}),
		err: &domain.SlowOperationError{
			Op:       "create",
			Elapsed:  2 * time.Second,
			Expected: time.Second,
		},
	}

	registry := source.NewRegistry()
	registry.Register(source.NewStaticAdapter("static", testRecords(1)))

	eng := New(
		registry,
		store,
		session.NewManager(memory.NewSessionRepo(mem)),
		retry.NewExecutor(nil, nil),
		&capturingNotifier{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	cfg := testConfig()
	cfg.Processing.EnableErrorRecovery = true

	result, err := eng.Execute(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Stats.Errors != 1 {
		t.Errorf("expected 1 errored record, got %+v", result.Stats)
	}

	// Slow operations are recoverable but not retry eligible, so the
	// write must be attempted exactly once.
	if store.attempts != 1 {
		t.Errorf("expected 1 write attempt, got %d", store.attempts)
	}
}

func TestCancelStopsAfterCurrentBatch(t *testing.T) {
	f := newFixture(t, testRecords(100))

	// Request cancellation as soon as the first batch reports progress.
	f.notifier.onNotify = func(p notify.Progress) {
		if p.BatchNumber == 1 {
			_ = f.engine.Cancel(context.Background(), p.SessionID)
		}
	}

	result, err := f.engine.Execute(context.Background(), testConfig(), Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Status != string(domain.SessionStatusCancelled) {
		t.Fatalf("expected cancelled status, got %s", result.Status)
	}
	if result.Stats.Processed >= 100 {
		t.Errorf("cancellation should stop before all records, processed %d", result.Stats.Processed)
	}

	sess, _ := f.repo.Get(context.Background(), result.SessionID)
	if sess.Status != domain.SessionStatusCancelled {
		t.Errorf("expected cancelled session, got %s", sess.Status)
	}
}

func TestCancelUnknownSession(t *testing.T) {
	f := newFixture(t, nil)

	err := f.engine.Cancel(context.Background(), "sync_import_cases_0_deadbeef")
	if !errors.Is(err, storage.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

// =============================================================================
// Stream Tests
// =============================================================================

func TestStreamYieldsPerBatchResults(t *testing.T) {
	f := newFixture(t, testRecords(25))

	stream, err := f.engine.Stream(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer stream.Close()

	var batches []*BatchResult
	for {
		batch, err := stream.Next(context.Background())
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if batch == nil {
			break
		}
		batches = append(batches, batch)
	}

	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if batches[0].BatchNumber != 1 || batches[2].BatchNumber != 3 {
		t.Errorf("batch numbering wrong: %+v", batches)
	}
	if batches[2].Processed != 5 {
		t.Errorf("last batch should hold the 5 leftover records, got %d", batches[2].Processed)
	}
}
