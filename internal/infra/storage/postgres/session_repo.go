package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vietddude/syncer/internal/core/domain"
	"github.com/vietddude/syncer/internal/infra/storage"
)

// SessionRepo implements storage.SessionRepository using PostgreSQL.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new PostgreSQL session repository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

type sessionRow struct {
	ID               string        `db:"session_id"`
	SyncType         string        `db:"sync_type"`
	TargetResource   string        `db:"target_resource"`
	SourceAdapter    string        `db:"source_adapter"`
	Status           string        `db:"status"`
	EstimatedTotal   sql.NullInt64 `db:"estimated_total"`
	Progress         []byte        `db:"progress_stats"`
	ErrorCount       int           `db:"error_count"`
	FinalStats       []byte        `db:"final_stats"`
	ErrorInfo        []byte        `db:"error_info"`
	Config           []byte        `db:"config"`
	StartedAt        sql.NullTime  `db:"started_at"`
	CompletedAt      sql.NullTime  `db:"completed_at"`
	ProcessingTimeMs int64         `db:"processing_time_ms"`
}

// Create inserts a new session.
func (r *SessionRepo) Create(ctx context.Context, session *domain.Session) error {
	row, err := toRow(session)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sync_sessions
			(session_id, sync_type, target_resource, source_adapter, status,
			 estimated_total, progress_stats, error_count, final_stats,
			 error_info, config, started_at, completed_at, processing_time_ms)
		VALUES
			(:session_id, :sync_type, :target_resource, :source_adapter, :status,
			 :estimated_total, :progress_stats, :error_count, :final_stats,
			 :error_info, :config, :started_at, :completed_at, :processing_time_ms)
	`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to create session: %w", WrapStoreError(err))
	}
	return nil
}

// Get retrieves a session by ID.
func (r *SessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT * FROM sync_sessions WHERE session_id = $1`

	var row sessionRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return fromRow(&row)
}

// Update persists the full current state of a session.
func (r *SessionRepo) Update(ctx context.Context, session *domain.Session) error {
	row, err := toRow(session)
	if err != nil {
		return err
	}

	query := `
		UPDATE sync_sessions SET
			status = :status,
			estimated_total = :estimated_total,
			progress_stats = :progress_stats,
			error_count = :error_count,
			final_stats = :final_stats,
			error_info = :error_info,
			started_at = :started_at,
			completed_at = :completed_at,
			processing_time_ms = :processing_time_ms
		WHERE session_id = :session_id
	`
	res, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", WrapStoreError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrSessionNotFound
	}
	return nil
}

// ListActive retrieves sessions in a non-terminal state.
func (r *SessionRepo) ListActive(ctx context.Context) ([]*domain.Session, error) {
	query := `
		SELECT * FROM sync_sessions
		WHERE status IN ('pending', 'running', 'paused')
		ORDER BY started_at DESC NULLS LAST
	`
	return r.list(ctx, query)
}

// ListRecent retrieves the most recently started sessions.
func (r *SessionRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Session, error) {
	query := `
		SELECT * FROM sync_sessions
		ORDER BY started_at DESC NULLS LAST
		LIMIT $1
	`
	return r.list(ctx, query, limit)
}

func (r *SessionRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Session, error) {
	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*domain.Session, 0, len(rows))
	for i := range rows {
		s, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func toRow(s *domain.Session) (*sessionRow, error) {
	progress, err := json.Marshal(s.Progress)
	if err != nil {
		return nil, fmt.Errorf("failed to encode progress: %w", err)
	}

	row := &sessionRow{
		ID:               s.ID,
		SyncType:         string(s.SyncType),
		TargetResource:   s.TargetResource,
		SourceAdapter:    s.SourceAdapter,
		Status:           string(s.Status),
		Progress:         progress,
		ErrorCount:       s.ErrorCount,
		ProcessingTimeMs: s.ProcessingTimeMs,
	}

	if s.EstimatedTotal != nil {
		row.EstimatedTotal = sql.NullInt64{Int64: int64(*s.EstimatedTotal), Valid: true}
	}
	if s.StartedAt != nil {
		row.StartedAt = sql.NullTime{Time: *s.StartedAt, Valid: true}
	}
	if s.CompletedAt != nil {
		row.CompletedAt = sql.NullTime{Time: *s.CompletedAt, Valid: true}
	}
	if s.FinalStats != nil {
		if row.FinalStats, err = json.Marshal(s.FinalStats); err != nil {
			return nil, fmt.Errorf("failed to encode final stats: %w", err)
		}
	}
	if s.ErrorInfo != nil {
		if row.ErrorInfo, err = json.Marshal(s.ErrorInfo); err != nil {
			return nil, fmt.Errorf("failed to encode error info: %w", err)
		}
	}
	if s.Config != nil {
		if row.Config, err = json.Marshal(s.Config); err != nil {
			return nil, fmt.Errorf("failed to encode config: %w", err)
		}
	}
	return row, nil
}

func fromRow(row *sessionRow) (*domain.Session, error) {
	s := &domain.Session{
		ID:               row.ID,
		SyncType:         domain.SyncType(row.SyncType),
		TargetResource:   row.TargetResource,
		SourceAdapter:    row.SourceAdapter,
		Status:           domain.SessionStatus(row.Status),
		ErrorCount:       row.ErrorCount,
		ProcessingTimeMs: row.ProcessingTimeMs,
	}

	if len(row.Progress) > 0 {
		if err := json.Unmarshal(row.Progress, &s.Progress); err != nil {
			return nil, fmt.Errorf("failed to decode progress: %w", err)
		}
	}
	if row.EstimatedTotal.Valid {
		total := int(row.EstimatedTotal.Int64)
		s.EstimatedTotal = &total
	}
	if row.StartedAt.Valid {
		t := row.StartedAt.Time
		s.StartedAt = &t
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		s.CompletedAt = &t
	}
	if len(row.FinalStats) > 0 {
		var stats domain.ProgressStats
		if err := json.Unmarshal(row.FinalStats, &stats); err != nil {
			return nil, fmt.Errorf("failed to decode final stats: %w", err)
		}
		s.FinalStats = &stats
	}
	if len(row.ErrorInfo) > 0 {
		if err := json.Unmarshal(row.ErrorInfo, &s.ErrorInfo); err != nil {
			return nil, fmt.Errorf("failed to decode error info: %w", err)
		}
	}
	if len(row.Config) > 0 {
		if err := json.Unmarshal(row.Config, &s.Config); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return s, nil
}
