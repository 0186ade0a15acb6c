package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/syncer/internal/core/domain"
)

// TargetStore implements storage.TargetStore over a single
// target_records table. Record attributes live in a JSONB column and
// the dedupe key is mirrored into record_key, which carries the
// unique index per resource.
type TargetStore struct {
	db        *DB
	resources map[string]bool
}

// NewTargetStore creates a PostgreSQL target store accepting the
// given resource identifiers.
func NewTargetStore(db *DB, resources []string) *TargetStore {
	known := make(map[string]bool, len(resources))
	for _, r := range resources {
		known[r] = true
	}
	return &TargetStore{db: db, resources: known}
}

type targetRow struct {
	ID         string    `db:"id"`
	Resource   string    `db:"resource"`
	RecordKey  string    `db:"record_key"`
	Attributes []byte    `db:"attributes"`
	CreatedBy  string    `db:"created_by"`
	UpdatedBy  string    `db:"updated_by"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// KnownResource reports whether a resource identifier is registered.
func (t *TargetStore) KnownResource(resource string) bool {
	return t.resources[resource]
}

// Lookup finds a record by a unique field value. Returns (nil, nil)
// when no record matches.
func (t *TargetStore) Lookup(ctx context.Context, resource, field string, value any) (*domain.TargetRecord, error) {
	query := `
		SELECT * FROM target_records
		WHERE resource = $1 AND attributes ->> $2 = $3
		LIMIT 1
	`
	var row targetRow
	err := t.db.GetContext(ctx, &row, query, resource, field, fmt.Sprint(value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup record: %w", err)
	}
	return toRecord(&row)
}

// Create inserts a new record. A duplicate record_key surfaces as a
// unique-constraint domain error.
func (t *TargetStore) Create(ctx context.Context, resource, uniqueField string, attrs map[string]any, actor string) (*domain.TargetRecord, error) {
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attributes: %w", err)
	}

	rec := &domain.TargetRecord{
		ID:         uuid.NewString(),
		Resource:   resource,
		Attributes: attrs,
	}

	query := `
		INSERT INTO target_records
			(id, resource, record_key, attributes, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $5)
	`
	_, err = t.db.ExecContext(ctx, query,
		rec.ID, resource, fmt.Sprint(attrs[uniqueField]), encoded, actor)
	if err != nil {
		return nil, fmt.Errorf("failed to create record: %w", WrapStoreError(err))
	}
	return rec, nil
}

// Update applies new attribute values to an existing record.
func (t *TargetStore) Update(ctx context.Context, record *domain.TargetRecord, attrs map[string]any, actor string) (*domain.TargetRecord, error) {
	merged := make(map[string]any, len(record.Attributes)+len(attrs))
	for k, v := range record.Attributes {
		merged[k] = v
	}
	for k, v := range attrs {
		merged[k] = v
	}

	encoded, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attributes: %w", err)
	}

	query := `
		UPDATE target_records
		SET attributes = $1, updated_by = $2, updated_at = NOW()
		WHERE id = $3
	`
	res, err := t.db.ExecContext(ctx, query, encoded, actor, record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", WrapStoreError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("record %s not found in %s", record.ID, record.Resource)
	}

	return &domain.TargetRecord{
		ID:         record.ID,
		Resource:   record.Resource,
		Attributes: merged,
	}, nil
}

// Count returns the number of records stored for a resource.
func (t *TargetStore) Count(ctx context.Context, resource string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM target_records WHERE resource = $1`
	if err := t.db.GetContext(ctx, &count, query, resource); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// List pages through a resource's records in insertion order.
func (t *TargetStore) List(ctx context.Context, resource string, limit, offset int) ([]*domain.TargetRecord, error) {
	query := `
		SELECT * FROM target_records
		WHERE resource = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3
	`
	if limit <= 0 {
		limit = 1000
	}

	var rows []targetRow
	if err := t.db.SelectContext(ctx, &rows, query, resource, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	records := make([]*domain.TargetRecord, 0, len(rows))
	for i := range rows {
		rec, err := toRecord(&rows[i])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Sample returns up to n random records for spot-check verification.
func (t *TargetStore) Sample(ctx context.Context, resource string, n int) ([]*domain.TargetRecord, error) {
	query := `
		SELECT * FROM target_records
		WHERE resource = $1
		ORDER BY random()
		LIMIT $2
	`
	var rows []targetRow
	if err := t.db.SelectContext(ctx, &rows, query, resource, n); err != nil {
		return nil, fmt.Errorf("failed to sample records: %w", err)
	}

	records := make([]*domain.TargetRecord, 0, len(rows))
	for i := range rows {
		rec, err := toRecord(&rows[i])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func toRecord(row *targetRow) (*domain.TargetRecord, error) {
	rec := &domain.TargetRecord{
		ID:       row.ID,
		Resource: row.Resource,
	}
	if len(row.Attributes) > 0 {
		if err := json.Unmarshal(row.Attributes, &rec.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode attributes: %w", err)
		}
	}
	return rec, nil
}
