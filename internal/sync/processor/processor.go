package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/vietddude/syncer/internal/core/domain"
	"github.com/vietddude/syncer/internal/infra/storage"
)

// DuplicateStrategy decides what to do when an incoming record matches
// an existing target record by unique key.
type DuplicateStrategy string

const (
	DuplicateUpdate DuplicateStrategy = "update"
	DuplicateSkip   DuplicateStrategy = "skip"
)

// ErrMissingConfig is returned when mandatory target config keys are absent.
var ErrMissingConfig = errors.New("missing target config fields")

// Config describes how source records map into a target resource.
type Config struct {
	// UniqueField is the target attribute used as the dedupe key. Required.
	UniqueField string `yaml:"unique_field"`

	// FieldMapping maps source field names to target attribute names.
	// Unmapped source fields are dropped.
	FieldMapping map[string]string `yaml:"field_mapping"`

	// DuplicateStrategy selects update or skip for matched records.
	// Defaults to update.
	DuplicateStrategy DuplicateStrategy `yaml:"duplicate_strategy"`
}

// Processor writes mapped source records into a target resource.
type Processor struct {
	store    storage.TargetStore
	resource string
	config   Config
}

// New resolves the target resource and validates the config.
func New(store storage.TargetStore, resource string, config Config) (*Processor, error) {
	if !store.KnownResource(resource) {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownResource, resource)
	}
	if config.UniqueField == "" {
		return nil, fmt.Errorf("%w: unique_field", ErrMissingConfig)
	}
	if config.DuplicateStrategy == "" {
		config.DuplicateStrategy = DuplicateUpdate
	}

	return &Processor{
		store:    store,
		resource: resource,
		config:   config,
	}, nil
}

// Resource returns the target resource identifier this processor writes to.
func (p *Processor) Resource() string { return p.resource }

// ProcessRecord maps one raw record and resolves create vs update vs
// skip by unique-key lookup.
func (p *Processor) ProcessRecord(ctx context.Context, raw *domain.SourceRecord, actor string) domain.Outcome {
	attrs := p.mapFields(raw)

	key, ok := attrs[p.config.UniqueField]
	if !ok || key == nil || fmt.Sprint(key) == "" {
		return domain.Outcome{Err: &domain.ValidationError{
			Field:  p.config.UniqueField,
			Reason: "record has no value for the unique field",
		}}
	}

	existing, err := p.store.Lookup(ctx, p.resource, p.config.UniqueField, key)
	if err != nil {
		return domain.Outcome{Err: fmt.Errorf("lookup failed: %w", err)}
	}

	if existing != nil {
		if p.config.DuplicateStrategy == DuplicateSkip {
			return domain.Outcome{Kind: domain.OutcomeExisting, Record: existing}
		}
		updated, err := p.store.Update(ctx, existing, attrs, actor)
		if err != nil {
			return domain.Outcome{Err: fmt.Errorf("update failed: %w", err)}
		}
		return domain.Outcome{Kind: domain.OutcomeUpdated, Record: updated}
	}

	created, err := p.store.Create(ctx, p.resource, p.config.UniqueField, attrs, actor)
	if err != nil {
		return domain.Outcome{Err: fmt.Errorf("create failed: %w", err)}
	}
	return domain.Outcome{Kind: domain.OutcomeCreated, Record: created}
}

// ProcessBatch applies ProcessRecord to each record. One record's
// failure does not abort the rest.
func (p *Processor) ProcessBatch(ctx context.Context, records []*domain.SourceRecord, actor string) []domain.Outcome {
	outcomes := make([]domain.Outcome, 0, len(records))
	for _, raw := range records {
		outcomes = append(outcomes, p.ProcessRecord(ctx, raw, actor))
	}
	return outcomes
}

// mapFields applies the field mapping. Unmapped source fields are
// dropped; an empty mapping passes fields through unchanged.
func (p *Processor) mapFields(raw *domain.SourceRecord) map[string]any {
	if len(p.config.FieldMapping) == 0 {
		attrs := make(map[string]any, len(raw.Fields))
		for k, v := range raw.Fields {
			attrs[k] = v
		}
		return attrs
	}

	attrs := make(map[string]any, len(p.config.FieldMapping))
	for src, dst := range p.config.FieldMapping {
		if v, ok := raw.Fields[src]; ok {
			attrs[dst] = v
		}
	}
	return attrs
}

// BatchStats aggregates per-record outcomes for one batch.
func BatchStats(outcomes []domain.Outcome) domain.ProgressStats {
	var stats domain.ProgressStats
	for _, o := range outcomes {
		stats.Processed++
		switch {
		case o.Err != nil:
			stats.Errors++
		case o.Kind == domain.OutcomeCreated:
			stats.Created++
		case o.Kind == domain.OutcomeUpdated:
			stats.Updated++
		case o.Kind == domain.OutcomeExisting:
			stats.Existing++
		}
	}
	return stats
}
