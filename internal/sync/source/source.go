package source

import (
	"context"
	"errors"

	"github.com/vietddude/syncer/internal/core/domain"
)

// ErrAdapterNotFound is returned when a named adapter is not registered.
var ErrAdapterNotFound = errors.New("source adapter not found")

// Adapter pulls records from an external system of record.
type Adapter interface {
	// Name identifies the adapter in session records and logs.
	Name() string

	// Init prepares the adapter with its configuration. Called once
	// before any other method.
	Init(ctx context.Context, config map[string]any) error

	// ValidateConnection checks the source is reachable before a sync
	// starts.
	ValidateConnection(ctx context.Context) error

	// TotalCount returns the number of records the source will yield,
	// with ok=false when the source cannot say up front.
	TotalCount(ctx context.Context) (total int, ok bool, err error)

	// Stream opens an iterator over the source's records.
	Stream(ctx context.Context) (RecordIterator, error)
}

// RecordIterator yields source records one at a time. Next returns
// io.EOF when the source is exhausted.
type RecordIterator interface {
	Next(ctx context.Context) (*domain.SourceRecord, error)
	Close() error
}
