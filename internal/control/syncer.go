package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/syncer/internal/core/config"
	"github.com/vietddude/syncer/internal/core/domain"
	"github.com/vietddude/syncer/internal/core/session"
	redisclient "github.com/vietddude/syncer/internal/infra/redis"
	"github.com/vietddude/syncer/internal/infra/storage"
	"github.com/vietddude/syncer/internal/infra/storage/memory"
	"github.com/vietddude/syncer/internal/infra/storage/postgres"
	"github.com/vietddude/syncer/internal/notify"
	"github.com/vietddude/syncer/internal/sync/breaker"
	"github.com/vietddude/syncer/internal/sync/engine"
	"github.com/vietddude/syncer/internal/sync/health"
	"github.com/vietddude/syncer/internal/sync/integrity"
	"github.com/vietddude/syncer/internal/sync/ratelimit"
	"github.com/vietddude/syncer/internal/sync/retry"
	"github.com/vietddude/syncer/internal/sync/source"
)

// Syncer is the main application struct wiring storage, adapters,
// the sync engine and its monitoring surfaces together.
type Syncer struct {
	cfg *config.AppConfig

	engine   *engine.Engine
	verifier *integrity.Verifier
	sessions session.Manager

	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client

	monitors []*integrity.Monitor
	log      *slog.Logger
}

// NewSyncer creates a Syncer with all dependencies initialized.
func NewSyncer(cfg *config.AppConfig) (*Syncer, error) {
	log := slog.Default()

	// 1. Initialize Storage
	var (
		sessionRepo storage.SessionRepository
		targetStore storage.TargetStore
		runsRepo    storage.VerificationRunRepository
		db          *postgres.DB
	)

	resources := cfg.Resources()

	if cfg.Storage.Backend == "postgres" && cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		sessionRepo = postgres.NewSessionRepo(db)
		targetStore = postgres.NewTargetStore(db, resources)
		runsRepo = postgres.NewVerificationRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		sessionRepo = memory.NewSessionRepo(store)
		targetStore = memory.NewTargetStore(store, resources)
		runsRepo = memory.NewVerificationRepo(store)
		log.Info("Using Memory storage")
	}

	// 2. Source adapters
	adapters := source.NewRegistry()
	adapters.Register(source.NewRESTAdapter())

	// 3. Retry infrastructure
	breakers := breaker.NewRegistry()
	limiters := ratelimit.NewRegistry()
	retrier := retry.NewExecutor(breakers, limiters)

	// 4. Progress notifications
	var notifier notify.Notifier = notify.NewLogNotifier(log)
	var redisClient *redisclient.Client
	if cfg.PubSub.Enabled && cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, falling back to log notifications", "error", err)
		} else {
			notifier = notify.NewMultiNotifier(
				notify.NewLogNotifier(log),
				notify.NewRedisNotifier(redisClient, cfg.PubSub.Channel),
			)
		}
	}

	// 5. Core components
	sessions := session.NewManager(sessionRepo)
	eng := engine.New(adapters, targetStore, sessions, retrier, notifier, log)
	verifier := integrity.NewVerifier(adapters, targetStore, runsRepo, cfg.Verify.Resources, log)

	// 6. Health surface
	var pinger health.DatabasePinger
	if db != nil {
		pinger = db
	}
	healthMon := health.NewMonitor(sessions, pinger)
	healthServer := health.NewServer(healthMon, cfg.Server.Port)

	return &Syncer{
		cfg:          cfg,
		engine:       eng,
		verifier:     verifier,
		sessions:     sessions,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		log:          log,
	}, nil
}

// Start launches the health server and background integrity monitoring.
func (s *Syncer) Start(ctx context.Context) error {
	go func() {
		if err := s.healthServer.Start(); err != nil {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}

	if s.cfg.Verify.MonitorIntervalSeconds > 0 && len(s.cfg.Verify.Resources) > 0 {
		monitor := s.verifier.MonitorSession(ctx, "system", integrity.MonitorOptions{
			CheckInterval:            time.Duration(s.cfg.Verify.MonitorIntervalSeconds) * time.Second,
			AlertThresholdPercentage: s.cfg.Verify.AlertThresholdPercentage,
		})
		s.monitors = append(s.monitors, monitor)
		s.log.Info("Integrity monitoring started",
			"interval_seconds", s.cfg.Verify.MonitorIntervalSeconds)
	}
	return nil
}

// Stop shuts down background work and the health server.
func (s *Syncer) Stop(ctx context.Context) error {
	s.log.Info("Stopping Syncer...")

	for _, m := range s.monitors {
		m.Stop()
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("Failed to close database", "error", err)
		}
	}

	return s.healthServer.Stop(ctx)
}

// RunSync executes the named configured sync pipeline.
func (s *Syncer) RunSync(ctx context.Context, name string, opts engine.Options) (*engine.Result, error) {
	for _, sc := range s.cfg.Syncs {
		if sc.Name == name {
			return s.engine.Execute(ctx, sc.Sync, opts)
		}
	}
	return nil, fmt.Errorf("no sync named %q configured", name)
}

// RunAll executes every configured sync pipeline in order. The first
// failure stops the run.
func (s *Syncer) RunAll(ctx context.Context, opts engine.Options) ([]*engine.Result, error) {
	results := make([]*engine.Result, 0, len(s.cfg.Syncs))
	for _, sc := range s.cfg.Syncs {
		s.log.Info("Running sync", "name", sc.Name)
		result, err := s.engine.Execute(ctx, sc.Sync, opts)
		if err != nil {
			return results, fmt.Errorf("sync %q: %w", sc.Name, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// Verify runs an integrity verification in the given mode.
func (s *Syncer) Verify(ctx context.Context, mode domain.VerificationMode, opts integrity.Options) (*domain.IntegrityReport, error) {
	return s.verifier.Verify(ctx, mode, opts)
}

// Reconcile applies or plans fixes for a verification report.
func (s *Syncer) Reconcile(ctx context.Context, report *domain.IntegrityReport, opts integrity.ReconcileOptions) (*integrity.ReconcileSummary, error) {
	return s.verifier.Reconcile(ctx, report, opts)
}

// CancelSync requests a running session to stop after its current batch.
func (s *Syncer) CancelSync(ctx context.Context, sessionID string) error {
	return s.engine.Cancel(ctx, sessionID)
}

// SyncStatus returns one session's snapshot.
func (s *Syncer) SyncStatus(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.engine.Status(ctx, sessionID)
}

// RecentSessions lists the most recently started sessions.
func (s *Syncer) RecentSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	return s.sessions.ListRecent(ctx, limit)
}
