package engine

import (
	"context"
	"fmt"

	"github.com/vietddude/syncer/internal/sync/processor"
	"github.com/vietddude/syncer/internal/sync/source"
)

// BatchResult is one batch's outcome yielded by a Stream.
type BatchResult struct {
	BatchNumber int
	Processed   int
	Created     int
	Updated     int
	Existing    int
	Errors      int
}

// Stream is a pull-based view of a sync: each Next call processes one
// batch and returns its result, letting the caller drive iteration.
// Streams do not create sessions; they are for callers managing their
// own lifecycle.
type Stream struct {
	engine  *Engine
	cfg     Config
	adapter source.Adapter
	proc    *processor.Processor
	it      source.RecordIterator

	batchNum  int
	processed int
	done      bool
}

// Stream validates the config, initializes the adapter and returns a
// lazy batch iterator.
func (e *Engine) Stream(ctx context.Context, cfg Config) (*Stream, error) {
	adapter, proc, err := e.initialize(ctx, cfg)
	if err != nil {
		return nil, err
	}

	it, err := adapter.Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open source stream: %w", err)
	}

	return &Stream{
		engine:  e,
		cfg:     cfg,
		adapter: adapter,
		proc:    proc,
		it:      it,
	}, nil
}

// Next processes one batch. Returns (nil, nil) when the source is
// exhausted or the limit is reached.
func (s *Stream) Next(ctx context.Context) (*BatchResult, error) {
	if s.done {
		return nil, nil
	}

	size := s.cfg.Processing.BatchSize
	if s.cfg.Processing.Limit > 0 && s.processed+size > s.cfg.Processing.Limit {
		size = s.cfg.Processing.Limit - s.processed
	}
	if size <= 0 {
		s.done = true
		return nil, nil
	}

	batch, err := readBatch(ctx, s.it, size)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		s.done = true
		return nil, nil
	}
	if len(batch) < size {
		s.done = true
	}

	outcomes := s.proc.ProcessBatch(ctx, batch, s.cfg.Actor)
	stats := processor.BatchStats(outcomes)

	s.batchNum++
	s.processed += stats.Processed
	if s.cfg.Processing.Limit > 0 && s.processed >= s.cfg.Processing.Limit {
		s.done = true
	}

	return &BatchResult{
		BatchNumber: s.batchNum,
		Processed:   stats.Processed,
		Created:     stats.Created,
		Updated:     stats.Updated,
		Existing:    stats.Existing,
		Errors:      stats.Errors,
	}, nil
}

// Close releases the underlying source iterator.
func (s *Stream) Close() error {
	s.done = true
	return s.it.Close()
}
