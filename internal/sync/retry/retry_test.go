package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vietddude/syncer/internal/sync/breaker"
	"github.com/vietddude/syncer/internal/sync/metrics"
	"github.com/vietddude/syncer/internal/sync/ratelimit"
)

var errTransient = errors.New("transient failure")

func newTestExecutor() *Executor {
	e := NewExecutor(breaker.NewRegistry(), ratelimit.NewRegistry())
	e.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return e
}

func TestExecute_Exhaustion(t *testing.T) {
	e := newTestExecutor()

	invocations := 0
	work := func() (any, error) {
		invocations++
		return nil, errTransient
	}

	policy := Policy{Strategy: StrategyLinear, MaxAttempts: 4, BaseDelay: time.Millisecond}
	_, err := e.Execute(context.Background(), "always-fails", work, Options{Policy: &policy})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 4 {
		t.Errorf("expected 4 attempts reported, got %d", exhausted.Attempts)
	}
	if invocations != 4 {
		t.Errorf("work invoked %d times, expected exactly 4", invocations)
	}
	if !errors.Is(err, errTransient) {
		t.Error("exhausted error should wrap the last failure")
	}
}

func TestExecute_SuccessOnThirdAttempt(t *testing.T) {
	e := newTestExecutor()

	invocations := 0
	work := func() (any, error) {
		invocations++
		if invocations < 3 {
			return nil, errTransient
		}
		return "done", nil
	}

	policy := Policy{Strategy: StrategyExponential, MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Second}
	result, err := e.Execute(context.Background(), "flaky", work, Options{Policy: &policy})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result != "done" {
		t.Errorf("expected result 'done', got %v", result)
	}
	if invocations != 3 {
		t.Errorf("work invoked %d times, expected exactly 3", invocations)
	}
}

func TestExecute_CountsRetryAttempts(t *testing.T) {
	e := newTestExecutor()

	counter := metrics.RetryAttempts.WithLabelValues("flaky-counted")
	before := testutil.ToFloat64(counter)

	invocations := 0
	work := func() (any, error) {
		invocations++
		if invocations < 3 {
			return nil, errTransient
		}
		return "done", nil
	}

	policy := Policy{Strategy: StrategyLinear, MaxAttempts: 5, BaseDelay: time.Millisecond}
	if _, err := e.Execute(context.Background(), "flaky-counted", work, Options{Policy: &policy}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	// Two attempts failed and were retried.
	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("expected 2 retries counted, got %v", got)
	}
}

func TestExecute_ConditionalPredicateStopsRetry(t *testing.T) {
	e := newTestExecutor()

	fatal := errors.New("fatal")
	invocations := 0
	work := func() (any, error) {
		invocations++
		return nil, fatal
	}

	policy := Policy{Strategy: StrategyLinear, MaxAttempts: 5, BaseDelay: time.Millisecond}
	_, err := e.Execute(context.Background(), "fatal-op", work, Options{
		Policy:    &policy,
		RetryWhen: func(err error) bool { return errors.Is(err, errTransient) },
	})

	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error returned as is, got %v", err)
	}
	if invocations != 1 {
		t.Errorf("non-matching error must not be retried; invoked %d times", invocations)
	}
}

func TestExecute_CircuitBreakerGate(t *testing.T) {
	e := newTestExecutor()
	e.breakers.Init("guarded", breaker.Config{FailureThreshold: 2, Cooldown: time.Hour})

	invocations := 0
	work := func() (any, error) {
		invocations++
		return nil, errTransient
	}

	policy := Policy{Strategy: StrategyLinear, MaxAttempts: 10, BaseDelay: time.Millisecond, CircuitBreaker: true}
	_, err := e.Execute(context.Background(), "guarded", work, Options{Policy: &policy})

	// Two failures open the circuit; the third attempt is declined
	// and surfaces ErrCircuitOpen instead of exhausting all 10.
	if !errors.Is(err, breaker.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if invocations != 2 {
		t.Errorf("work invoked %d times, expected 2 before circuit opened", invocations)
	}
}

func TestExecute_NamedPolicyFallback(t *testing.T) {
	e := newTestExecutor()

	invocations := 0
	work := func() (any, error) {
		invocations++
		return nil, errTransient
	}

	_, err := e.Execute(context.Background(), "db-op", work, Options{PolicyName: PolicyDatabaseOperations})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if invocations != 5 {
		t.Errorf("database_operations allows 5 attempts, got %d invocations", invocations)
	}
}

func TestExecute_RateLimiterGate(t *testing.T) {
	e := newTestExecutor()
	e.limiters.Init("api", ratelimit.Config{MaxRequests: 2, Window: time.Hour})

	invocations := 0
	work := func() (any, error) {
		invocations++
		return nil, errTransient
	}

	policy := Policy{Strategy: StrategyLinear, MaxAttempts: 5, BaseDelay: time.Millisecond}
	_, err := e.Execute(context.Background(), "limited", work, Options{Policy: &policy, Limiter: "api"})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	// Only the first two attempts reach the work; the rest are declined
	// by the limiter but still consume attempts.
	if invocations != 2 {
		t.Errorf("work invoked %d times, expected 2", invocations)
	}
}

func TestExecuteAsync(t *testing.T) {
	e := newTestExecutor()

	succeeded := make(chan any, 1)
	ar := e.ExecuteAsync(context.Background(), "async-op",
		func() (any, error) { return 42, nil },
		Options{},
		func(v any) { succeeded <- v },
		nil,
	)

	result, err := ar.Wait(context.Background())
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %v", result)
	}

	select {
	case v := <-succeeded:
		if v != 42 {
			t.Errorf("callback got %v", v)
		}
	case <-time.After(time.Second):
		t.Error("success callback not invoked")
	}
}

func TestExecuteBatch(t *testing.T) {
	e := newTestExecutor()

	items := []Work{
		func() (any, error) { return 1, nil },
		func() (any, error) { return nil, errTransient },
		func() (any, error) { return 3, nil },
		func() (any, error) { return 4, nil },
	}

	policy := Policy{Strategy: StrategyLinear, MaxAttempts: 2, BaseDelay: time.Millisecond}
	res := e.ExecuteBatch(context.Background(), "batch-op", items, Options{Policy: &policy})

	if res.Total != 4 || res.Successful != 3 || res.Failed != 1 {
		t.Errorf("unexpected batch result: %+v", res)
	}
	if res.SuccessRate != 0.75 {
		t.Errorf("expected success rate 0.75, got %v", res.SuccessRate)
	}
}

func TestAnalyticsAndReset(t *testing.T) {
	e := newTestExecutor()

	policy := Policy{Strategy: StrategyLinear, MaxAttempts: 1, BaseDelay: time.Millisecond}
	e.Execute(context.Background(), "op-a", func() (any, error) { return nil, nil }, Options{Policy: &policy})
	e.Execute(context.Background(), "op-b", func() (any, error) { return nil, errTransient }, Options{Policy: &policy})

	a := e.Analytics(time.Hour)
	if a.TotalOperations != 2 {
		t.Errorf("expected 2 operations, got %d", a.TotalOperations)
	}
	if a.SuccessRate != 0.5 {
		t.Errorf("expected success rate 0.5, got %v", a.SuccessRate)
	}
	if _, ok := a.ByStrategy[StrategyLinear]; !ok {
		t.Error("expected per-strategy breakdown for linear_backoff")
	}

	e.ResetState("op-a")
	if a := e.Analytics(time.Hour); a.TotalOperations != 1 {
		t.Errorf("expected 1 operation after reset, got %d", a.TotalOperations)
	}

	e.ResetState("")
	if a := e.Analytics(time.Hour); a.TotalOperations != 0 {
		t.Errorf("expected 0 operations after full reset, got %d", a.TotalOperations)
	}
}

func TestPolicy_TotalDelayCeiling(t *testing.T) {
	p := Policy{Strategy: StrategyExponential, MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	// 100 + 200 + 400 = 700ms
	if got := p.TotalDelayCeiling(); got != 700*time.Millisecond {
		t.Errorf("expected 700ms ceiling, got %v", got)
	}
}
