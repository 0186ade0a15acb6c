package retry

import (
	"time"

	"github.com/vietddude/syncer/internal/sync/backoff"
)

// Strategy selects which backoff sequence a policy uses.
type Strategy string

const (
	StrategyExponential Strategy = "exponential_backoff"
	StrategyLinear      Strategy = "linear_backoff"
	StrategyFibonacci   Strategy = "fibonacci"
)

// Policy describes how an operation is retried.
type Policy struct {
	Strategy       Strategy
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Jitter         bool
	CircuitBreaker bool
}

// Named default policies. These values are load-bearing for
// compatibility and must not drift.
const (
	PolicyAPIOperations      = "api_operations"
	PolicyDatabaseOperations = "database_operations"
	PolicyCriticalOperations = "critical_operations"
)

var defaultPolicies = map[string]Policy{
	PolicyAPIOperations: {
		Strategy:    StrategyExponential,
		MaxAttempts: 3,
		BaseDelay:   1000 * time.Millisecond,
		MaxDelay:    30000 * time.Millisecond,
		Jitter:      true,
	},
	PolicyDatabaseOperations: {
		Strategy:    StrategyExponential,
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10000 * time.Millisecond,
	},
	PolicyCriticalOperations: {
		Strategy:       StrategyFibonacci,
		MaxAttempts:    10,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       60000 * time.Millisecond,
		CircuitBreaker: true,
	},
}

// NamedPolicy looks up one of the default policies.
func NamedPolicy(name string) (Policy, bool) {
	p, ok := defaultPolicies[name]
	return p, ok
}

// Delays materializes the policy's backoff sequence.
func (p Policy) Delays() []time.Duration {
	switch p.Strategy {
	case StrategyLinear:
		return backoff.Linear(p.BaseDelay, p.MaxAttempts)
	case StrategyFibonacci:
		return backoff.Fibonacci(p.BaseDelay, p.MaxDelay, p.MaxAttempts)
	default:
		return backoff.Exponential(p.BaseDelay, p.MaxDelay, p.MaxAttempts, p.Jitter)
	}
}

// TotalDelayCeiling is the sum of all backoff delays for the policy,
// which callers can use to compute an overall deadline in advance.
// Jitter is ignored; the ceiling assumes the +50% worst case.
func (p Policy) TotalDelayCeiling() time.Duration {
	noJitter := p
	noJitter.Jitter = false

	var total time.Duration
	for _, d := range noJitter.Delays() {
		total += d
	}
	if p.Jitter {
		total = time.Duration(float64(total) * 1.5)
	}
	return total
}
