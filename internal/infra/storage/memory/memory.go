package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/syncer/internal/core/domain"
	"github.com/vietddude/syncer/internal/infra/storage"
)

// MemoryStorage backs the repositories when no database is configured
// (tests, dry runs, local development).
type MemoryStorage struct {
	sessions map[string]*domain.Session
	records  map[string][]*domain.TargetRecord // keyed by resource
	runs     []*domain.VerificationRun
	mu       sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]*domain.Session),
		records:  make(map[string][]*domain.TargetRecord),
	}
}

// -----------------------------------------------------------------------------
// Session Repository
// -----------------------------------------------------------------------------

type SessionRepo struct {
	store *MemoryStorage
}

func NewSessionRepo(store *MemoryStorage) *SessionRepo {
	return &SessionRepo{store: store}
}

func (r *SessionRepo) Create(ctx context.Context, session *domain.Session) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	cp := *session
	r.store.sessions[session.ID] = &cp
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	s, ok := r.store.sessions[id]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *SessionRepo) Update(ctx context.Context, session *domain.Session) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.sessions[session.ID]; !ok {
		return storage.ErrSessionNotFound
	}
	cp := *session
	r.store.sessions[session.ID] = &cp
	return nil
}

func (r *SessionRepo) ListActive(ctx context.Context) ([]*domain.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Session
	for _, s := range r.store.sessions {
		if s.IsActive() {
			cp := *s
			out = append(out, &cp)
		}
	}
	sortSessions(out)
	return out, nil
}

func (r *SessionRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.Session, 0, len(r.store.sessions))
	for _, s := range r.store.sessions {
		cp := *s
		out = append(out, &cp)
	}
	sortSessions(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sortSessions orders newest first by start time, then ID for stability.
func sortSessions(sessions []*domain.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if a.StartedAt == nil || b.StartedAt == nil {
			return a.ID > b.ID
		}
		if !a.StartedAt.Equal(*b.StartedAt) {
			return a.StartedAt.After(*b.StartedAt)
		}
		return a.ID > b.ID
	})
}

// -----------------------------------------------------------------------------
// Target Store
// -----------------------------------------------------------------------------

type TargetStore struct {
	store     *MemoryStorage
	resources map[string]bool
}

// NewTargetStore creates an in-memory target store accepting the given
// resource identifiers.
func NewTargetStore(store *MemoryStorage, resources []string) *TargetStore {
	known := make(map[string]bool, len(resources))
	for _, r := range resources {
		known[r] = true
	}
	return &TargetStore{store: store, resources: known}
}

func (t *TargetStore) KnownResource(resource string) bool {
	return t.resources[resource]
}

func (t *TargetStore) Lookup(ctx context.Context, resource, field string, value any) (*domain.TargetRecord, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, rec := range t.store.records[resource] {
		if fmt.Sprint(rec.Attributes[field]) == fmt.Sprint(value) {
			cp := cloneRecord(rec)
			return cp, nil
		}
	}
	return nil, nil
}

func (t *TargetStore) Create(ctx context.Context, resource, uniqueField string, attrs map[string]any, actor string) (*domain.TargetRecord, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	key := fmt.Sprint(attrs[uniqueField])
	for _, rec := range t.store.records[resource] {
		if fmt.Sprint(rec.Attributes[uniqueField]) == key {
			return nil, &domain.ConstraintError{
				Kind:       "unique",
				Constraint: resource + "_" + uniqueField,
				Cause:      fmt.Errorf("duplicate %s=%s", uniqueField, key),
			}
		}
	}

	rec := &domain.TargetRecord{
		ID:         uuid.NewString(),
		Resource:   resource,
		Attributes: cloneAttrs(attrs),
	}
	t.store.records[resource] = append(t.store.records[resource], rec)
	return cloneRecord(rec), nil
}

func (t *TargetStore) Update(ctx context.Context, record *domain.TargetRecord, attrs map[string]any, actor string) (*domain.TargetRecord, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for _, rec := range t.store.records[record.Resource] {
		if rec.ID == record.ID {
			for k, v := range attrs {
				rec.Attributes[k] = v
			}
			return cloneRecord(rec), nil
		}
	}
	return nil, fmt.Errorf("record %s not found in %s", record.ID, record.Resource)
}

func (t *TargetStore) Count(ctx context.Context, resource string) (int, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return len(t.store.records[resource]), nil
}

func (t *TargetStore) List(ctx context.Context, resource string, limit, offset int) ([]*domain.TargetRecord, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	records := t.store.records[resource]
	if offset >= len(records) {
		return nil, nil
	}
	end := len(records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]*domain.TargetRecord, 0, end-offset)
	for _, rec := range records[offset:end] {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

func (t *TargetStore) Sample(ctx context.Context, resource string, n int) ([]*domain.TargetRecord, error) {
	return t.List(ctx, resource, n, 0)
}

func cloneRecord(rec *domain.TargetRecord) *domain.TargetRecord {
	return &domain.TargetRecord{
		ID:         rec.ID,
		Resource:   rec.Resource,
		Attributes: cloneAttrs(rec.Attributes),
	}
}

func cloneAttrs(attrs map[string]any) map[string]any {
	cp := make(map[string]any, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	return cp
}

// -----------------------------------------------------------------------------
// Verification Run Repository
// -----------------------------------------------------------------------------

type VerificationRepo struct {
	store *MemoryStorage
}

func NewVerificationRepo(store *MemoryStorage) *VerificationRepo {
	return &VerificationRepo{store: store}
}

func (r *VerificationRepo) Save(ctx context.Context, run *domain.VerificationRun) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *run
	r.store.runs = append(r.store.runs, &cp)
	return nil
}

func (r *VerificationRepo) ListSince(ctx context.Context, since time.Time) ([]*domain.VerificationRun, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.VerificationRun
	for _, run := range r.store.runs {
		if run.GeneratedAt.After(since) {
			cp := *run
			out = append(out, &cp)
		}
	}
	return out, nil
}
