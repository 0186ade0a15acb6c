package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/syncer/internal/core/domain"
)

var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnknownResource is returned when a target resource is not
	// registered with the store.
	ErrUnknownResource = errors.New("unknown target resource")
)

// SessionRepository persists sync-session lifecycle state.
type SessionRepository interface {
	// Create inserts a new session.
	Create(ctx context.Context, session *domain.Session) error

	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// Update persists the full current state of a session.
	Update(ctx context.Context, session *domain.Session) error

	// ListActive retrieves sessions in pending, running or paused state.
	ListActive(ctx context.Context) ([]*domain.Session, error)

	// ListRecent retrieves the most recently started sessions.
	ListRecent(ctx context.Context, limit int) ([]*domain.Session, error)
}

// TargetStore is the target-resource capability the processor and
// verifier write through: create, update and lookup by unique key.
type TargetStore interface {
	// KnownResource reports whether a resource identifier is registered.
	KnownResource(resource string) bool

	// Lookup finds a record by a unique field value. Returns (nil, nil)
	// when no record matches.
	Lookup(ctx context.Context, resource, field string, value any) (*domain.TargetRecord, error)

	// Create inserts a new record. uniqueField names the attribute used
	// as the record's dedupe key.
	Create(ctx context.Context, resource, uniqueField string, attrs map[string]any, actor string) (*domain.TargetRecord, error)

	// Update applies new attribute values to an existing record.
	Update(ctx context.Context, record *domain.TargetRecord, attrs map[string]any, actor string) (*domain.TargetRecord, error)

	// Count returns the number of records stored for a resource.
	Count(ctx context.Context, resource string) (int, error)

	// List pages through a resource's records in insertion order.
	List(ctx context.Context, resource string, limit, offset int) ([]*domain.TargetRecord, error)

	// Sample returns up to n records for spot-check verification.
	Sample(ctx context.Context, resource string, n int) ([]*domain.TargetRecord, error)
}

// VerificationRunRepository persists verification summaries for
// trend analysis.
type VerificationRunRepository interface {
	// Save stores one run summary.
	Save(ctx context.Context, run *domain.VerificationRun) error

	// ListSince retrieves runs generated after the given time.
	ListSince(ctx context.Context, since time.Time) ([]*domain.VerificationRun, error)
}
