package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/syncer/internal/core/domain"
)

// VerificationRepo persists verification run summaries for trend
// analysis.
type VerificationRepo struct {
	db *DB
}

func NewVerificationRepo(db *DB) *VerificationRepo {
	return &VerificationRepo{db: db}
}

type verificationRow struct {
	ID          string    `db:"id"`
	Mode        string    `db:"mode"`
	Score       float64   `db:"score"`
	Status      string    `db:"status"`
	IssueCount  int       `db:"issue_count"`
	Resources   []byte    `db:"resources"`
	GeneratedAt time.Time `db:"generated_at"`
}

// Save stores one run summary.
func (r *VerificationRepo) Save(ctx context.Context, run *domain.VerificationRun) error {
	resources, err := json.Marshal(run.Resources)
	if err != nil {
		return fmt.Errorf("failed to encode resource results: %w", err)
	}

	query := `
		INSERT INTO verification_runs
			(id, mode, score, status, issue_count, resources, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.ExecContext(ctx, query,
		run.ID, string(run.Mode), run.Score, string(run.Status),
		run.IssueCount, resources, run.GeneratedAt)
	if err != nil {
		return fmt.Errorf("failed to save verification run: %w", WrapStoreError(err))
	}
	return nil
}

// ListSince retrieves runs generated after the given time, oldest first.
func (r *VerificationRepo) ListSince(ctx context.Context, since time.Time) ([]*domain.VerificationRun, error) {
	query := `
		SELECT * FROM verification_runs
		WHERE generated_at > $1
		ORDER BY generated_at
	`
	var rows []verificationRow
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to list verification runs: %w", err)
	}

	runs := make([]*domain.VerificationRun, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		run := &domain.VerificationRun{
			ID:          row.ID,
			Mode:        domain.VerificationMode(row.Mode),
			Score:       row.Score,
			Status:      domain.IntegrityStatus(row.Status),
			IssueCount:  row.IssueCount,
			GeneratedAt: row.GeneratedAt,
		}
		if len(row.Resources) > 0 {
			if err := json.Unmarshal(row.Resources, &run.Resources); err != nil {
				return nil, fmt.Errorf("failed to decode resource results: %w", err)
			}
		}
		runs = append(runs, run)
	}
	return runs, nil
}
