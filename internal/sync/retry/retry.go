// Package retry orchestrates repeated execution of work units using
// configurable backoff strategies, optionally gated by circuit
// breakers and rate limiters.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/syncer/internal/sync/breaker"
	"github.com/vietddude/syncer/internal/sync/metrics"
	"github.com/vietddude/syncer/internal/sync/ratelimit"
)

// ExhaustedError is returned when all retry attempts have failed.
// Callers must treat this as "give up" rather than looping again.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Work is a retryable unit of work.
type Work func() (any, error)

// Options configures a single Execute call.
type Options struct {
	// Policy overrides the named policy when non-nil.
	Policy *Policy

	// PolicyName selects a named default policy. Empty falls back to
	// api_operations.
	PolicyName string

	// RetryWhen restricts retries to matching errors. A non-matching
	// error is returned immediately on first attempt.
	RetryWhen func(error) bool

	// Limiter names a rate limiter to gate each attempt through.
	Limiter string
}

// Executor drives retries. Breaker and limiter registries are owned by
// the executor's creator so their lifetime is explicit.
type Executor struct {
	breakers *breaker.Registry
	limiters *ratelimit.Registry
	stats    *statsBook

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor backed by the given registries.
// Either registry may be nil, disabling the corresponding gate.
func NewExecutor(breakers *breaker.Registry, limiters *ratelimit.Registry) *Executor {
	return &Executor{
		breakers: breakers,
		limiters: limiters,
		stats:    newStatsBook(),
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Execute runs fn with retries per the resolved policy. It returns the
// work's result on success, ErrCircuitOpen distinctly when the breaker
// declined to call, an *ExhaustedError after max attempts, or the
// first non-retryable error as is.
func (e *Executor) Execute(ctx context.Context, operationID string, fn Work, opts Options) (any, error) {
	policy := e.resolvePolicy(opts)
	delays := policy.Delays()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := e.attempt(operationID, fn, policy, opts)
		e.stats.record(operationID, policy.Strategy, err == nil)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, breaker.ErrCircuitOpen) {
			// Distinct from a real failure: we declined to call.
			return nil, err
		}
		if opts.RetryWhen != nil && !opts.RetryWhen(err) {
			return nil, err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		metrics.RetryAttempts.WithLabelValues(operationID).Inc()
		if err := e.sleep(ctx, delays[attempt-1]); err != nil {
			return nil, err
		}
	}

	return nil, &ExhaustedError{Attempts: policy.MaxAttempts, Last: lastErr}
}

func (e *Executor) attempt(operationID string, fn Work, policy Policy, opts Options) (any, error) {
	var result any
	call := func() error {
		var err error
		result, err = fn()
		return err
	}

	if opts.Limiter != "" && e.limiters != nil {
		inner := call
		call = func() error { return e.limiters.Call(opts.Limiter, inner) }
	}
	if policy.CircuitBreaker && e.breakers != nil {
		inner := call
		call = func() error { return e.breakers.Call(operationID, inner) }
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Executor) resolvePolicy(opts Options) Policy {
	if opts.Policy != nil {
		return *opts.Policy
	}
	name := opts.PolicyName
	if name == "" {
		name = PolicyAPIOperations
	}
	if p, ok := NamedPolicy(name); ok {
		return p
	}
	p, _ := NamedPolicy(PolicyAPIOperations)
	return p
}

// AsyncResult lets callers await a background retry execution.
type AsyncResult struct {
	done   chan struct{}
	result any
	err    error
}

// Wait blocks until the background execution finishes or ctx is done.
func (a *AsyncResult) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.done:
		return a.result, a.err
	}
}

// ExecuteAsync runs Execute in a background goroutine, invoking the
// optional callbacks on completion.
func (e *Executor) ExecuteAsync(
	ctx context.Context,
	operationID string,
	fn Work,
	opts Options,
	onSuccess func(any),
	onFailure func(error),
) *AsyncResult {
	ar := &AsyncResult{done: make(chan struct{})}
	go func() {
		defer close(ar.done)
		ar.result, ar.err = e.Execute(ctx, operationID, fn, opts)
		if ar.err != nil {
			if onFailure != nil {
				onFailure(ar.err)
			}
			return
		}
		if onSuccess != nil {
			onSuccess(ar.result)
		}
	}()
	return ar
}

// BatchResult aggregates per-item outcomes of a batch execution.
type BatchResult struct {
	Total       int
	Successful  int
	Failed      int
	SuccessRate float64
	Errors      []error
}

// ExecuteBatch retries each work unit individually; one item's
// exhaustion does not abort the rest. When the policy uses a circuit
// breaker, the aggregate success rate is fed back as a health signal.
func (e *Executor) ExecuteBatch(ctx context.Context, operationID string, items []Work, opts Options) BatchResult {
	res := BatchResult{Total: len(items)}

	for _, item := range items {
		if _, err := e.Execute(ctx, operationID, item, opts); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Successful++
	}

	if res.Total > 0 {
		res.SuccessRate = float64(res.Successful) / float64(res.Total)
	}

	policy := e.resolvePolicy(opts)
	if policy.CircuitBreaker && e.breakers != nil && res.Total > 0 {
		e.breakers.RecordHealth(operationID, res.SuccessRate)
	}
	return res
}
