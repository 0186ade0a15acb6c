package source

import (
	"context"
	"io"

	"github.com/vietddude/syncer/internal/core/domain"
)

// StaticAdapter serves a fixed record set. Used for local development
// and tests.
type StaticAdapter struct {
	name    string
	records []*domain.SourceRecord

	initErr error
	pingErr error
}

// NewStaticAdapter creates an adapter that yields the given records.
func NewStaticAdapter(name string, records []*domain.SourceRecord) *StaticAdapter {
	if name == "" {
		name = "static"
	}
	return &StaticAdapter{name: name, records: records}
}

func (a *StaticAdapter) Name() string { return a.name }

func (a *StaticAdapter) Init(ctx context.Context, config map[string]any) error {
	return a.initErr
}

func (a *StaticAdapter) ValidateConnection(ctx context.Context) error {
	return a.pingErr
}

func (a *StaticAdapter) TotalCount(ctx context.Context) (int, bool, error) {
	return len(a.records), true, nil
}

func (a *StaticAdapter) Stream(ctx context.Context) (RecordIterator, error) {
	return &sliceIterator{records: a.records}, nil
}

// FailInit makes Init return the given error.
func (a *StaticAdapter) FailInit(err error) { a.initErr = err }

// FailConnection makes ValidateConnection return the given error.
func (a *StaticAdapter) FailConnection(err error) { a.pingErr = err }

type sliceIterator struct {
	records []*domain.SourceRecord
	idx     int
}

func (it *sliceIterator) Next(ctx context.Context) (*domain.SourceRecord, error) {
	if it.idx >= len(it.records) {
		return nil, io.EOF
	}
	rec := it.records[it.idx]
	it.idx++
	return rec, nil
}

func (it *sliceIterator) Close() error { return nil }
