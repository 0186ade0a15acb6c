package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/vietddude/syncer/internal/core/domain"
	"github.com/vietddude/syncer/internal/infra/storage"
	"github.com/vietddude/syncer/internal/infra/storage/memory"
)

const testResource = "enforcement.cases"

func newTestProcessor(t *testing.T, config Config) (*Processor, *memory.TargetStore) {
	t.Helper()
	store := memory.NewTargetStore(memory.NewMemoryStorage(), []string{testResource})
	p, err := New(store, testResource, config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, store
}

func TestNewRejectsUnknownResource(t *testing.T) {
	store := memory.NewTargetStore(memory.NewMemoryStorage(), []string{testResource})

	_, err := New(store, "nonexistent.things", Config{UniqueField: "id"})
	if !errors.Is(err, storage.ErrUnknownResource) {
		t.Fatalf("expected ErrUnknownResource, got %v", err)
	}
}

func TestNewRejectsMissingUniqueField(t *testing.T) {
	store := memory.NewTargetStore(memory.NewMemoryStorage(), []string{testResource})

	_, err := New(store, testResource, Config{})
	if !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("expected ErrMissingConfig, got %v", err)
	}
}

func TestFieldMappingRoundTrip(t *testing.T) {
	p, _ := newTestProcessor(t, Config{
		UniqueField: "regulator_id",
		FieldMapping: map[string]string{
			"case_id": "regulator_id",
			"name":    "offender_name",
		},
	})

	outcome := p.ProcessRecord(context.Background(), &domain.SourceRecord{
		ExternalID: "X",
		Fields:     map[string]any{"case_id": "X", "name": "Y", "ignored": "Z"},
	}, "system")

	if outcome.Err != nil {
		t.Fatalf("ProcessRecord failed: %v", outcome.Err)
	}
	if outcome.Kind != domain.OutcomeCreated {
		t.Fatalf("expected created, got %s", outcome.Kind)
	}

	attrs := outcome.Record.Attributes
	if attrs["regulator_id"] != "X" || attrs["offender_name"] != "Y" {
		t.Errorf("mapped attributes wrong: %+v", attrs)
	}
	if _, ok := attrs["ignored"]; ok {
		t.Error("unmapped source field should be dropped")
	}
	if len(attrs) != 2 {
		t.Errorf("expected exactly 2 attributes, got %d", len(attrs))
	}
}

func TestDuplicateStrategyUpdate(t *testing.T) {
	p, _ := newTestProcessor(t, Config{UniqueField: "external_id"})
	ctx := context.Background()

	first := p.ProcessRecord(ctx, &domain.SourceRecord{
		ExternalID: "a1",
		Fields:     map[string]any{"external_id": "a1", "status": "open"},
	}, "system")
	if first.Kind != domain.OutcomeCreated {
		t.Fatalf("expected created, got %s (err %v)", first.Kind, first.Err)
	}

	second := p.ProcessRecord(ctx, &domain.SourceRecord{
		ExternalID: "a1",
		Fields:     map[string]any{"external_id": "a1", "status": "closed"},
	}, "system")
	if second.Kind != domain.OutcomeUpdated {
		t.Fatalf("expected updated, got %s (err %v)", second.Kind, second.Err)
	}
	if second.Record.Attributes["status"] != "closed" {
		t.Errorf("update did not apply new fields: %+v", second.Record.Attributes)
	}
}

func TestDuplicateStrategySkip(t *testing.T) {
	p, _ := newTestProcessor(t, Config{
		UniqueField:       "external_id",
		DuplicateStrategy: DuplicateSkip,
	})
	ctx := context.Background()

	rec := &domain.SourceRecord{
		ExternalID: "a1",
		Fields:     map[string]any{"external_id": "a1", "status": "open"},
	}
	_ = p.ProcessRecord(ctx, rec, "system")

	second := p.ProcessRecord(ctx, &domain.SourceRecord{
		ExternalID: "a1",
		Fields:     map[string]any{"external_id": "a1", "status": "closed"},
	}, "system")
	if second.Kind != domain.OutcomeExisting {
		t.Fatalf("expected existing, got %s (err %v)", second.Kind, second.Err)
	}
	if second.Record.Attributes["status"] != "open" {
		t.Errorf("skip should leave record unchanged: %+v", second.Record.Attributes)
	}
}

func TestMissingUniqueValueIsValidationError(t *testing.T) {
	p, _ := newTestProcessor(t, Config{UniqueField: "external_id"})

	outcome := p.ProcessRecord(context.Background(), &domain.SourceRecord{
		ExternalID: "a1",
		Fields:     map[string]any{"status": "open"},
	}, "system")

	var vErr *domain.ValidationError
	if !errors.As(outcome.Err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", outcome.Err)
	}
}

func TestProcessBatchIsolation(t *testing.T) {
	p, _ := newTestProcessor(t, Config{UniqueField: "external_id"})

	records := []*domain.SourceRecord{
		{ExternalID: "1", Fields: map[string]any{"external_id": "1"}},
		{ExternalID: "2", Fields: map[string]any{"external_id": "2"}},
		{ExternalID: "3", Fields: map[string]any{}}, // missing unique value
		{ExternalID: "4", Fields: map[string]any{"external_id": "4"}},
	}

	outcomes := p.ProcessBatch(context.Background(), records, "system")
	if len(outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(outcomes))
	}

	stats := BatchStats(outcomes)
	if stats.Processed != 4 || stats.Created != 3 || stats.Errors != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
