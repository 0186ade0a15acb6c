// Package breaker implements named circuit breakers that stop calling a
// failing dependency for a cooldown period.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/vietddude/syncer/internal/sync/metrics"
)

// ErrCircuitOpen is returned when a call is rejected without being
// invoked because the circuit is open. Callers can distinguish this
// from a real failure of the protected call.
var ErrCircuitOpen = errors.New("circuit open")

// State of a single circuit.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds per-circuit settings.
type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// DefaultConfig matches the engine's critical-operation defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Metrics is a snapshot of a circuit's counters.
type Metrics struct {
	State               State
	ConsecutiveFailures int
	TotalCalls          int64
	SuccessCalls        int64
	FailureCalls        int64
	BlockedCalls        int64
	OpenedAt            *time.Time
}

type circuit struct {
	cfg                 Config
	state               State
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool

	totalCalls   int64
	successCalls int64
	failureCalls int64
	blockedCalls int64
}

// Registry holds circuit state keyed by name. State is in-memory,
// ephemeral, lost on restart.
type Registry struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	now      func() time.Time
}

// NewRegistry creates an empty circuit registry.
func NewRegistry() *Registry {
	return &Registry{
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
}

// Init creates or reconfigures a named circuit.
func (r *Registry) Init(name string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.circuits[name]; ok {
		c.cfg = cfg
		return
	}
	r.circuits[name] = &circuit{cfg: cfg, state: StateClosed}
	publishState(name, StateClosed)
}

// Call runs fn through the named circuit. When the circuit is open the
// call is rejected with ErrCircuitOpen without invoking fn. After the
// cooldown elapses exactly one trial call is admitted; its outcome
// decides whether the circuit closes or re-opens.
func (r *Registry) Call(name string, fn func() error) error {
	c := r.admit(name)
	if c == nil {
		return ErrCircuitOpen
	}

	recorded := false
	defer func() {
		// A panicking call still counts as a failure, so a half-open
		// trial cannot leave the circuit stuck waiting for a verdict.
		if !recorded {
			r.record(name, errors.New("protected call panicked"))
		}
	}()

	err := fn()
	recorded = true
	r.record(name, err)
	return err
}

// admit checks whether a call may proceed and returns the circuit,
// or nil when the call is blocked.
func (r *Registry) admit(name string) *circuit {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.getLocked(name)
	c.totalCalls++

	switch c.state {
	case StateClosed:
		return c
	case StateOpen:
		if r.now().Sub(c.openedAt) >= c.cfg.Cooldown {
			c.state = StateHalfOpen
			c.trialInFlight = true
			publishState(name, StateHalfOpen)
			return c
		}
		c.blockedCalls++
		return nil
	case StateHalfOpen:
		if c.trialInFlight {
			// Only one trial call is permitted at a time.
			c.blockedCalls++
			return nil
		}
		c.trialInFlight = true
		return c
	}
	return c
}

// record applies the outcome of an admitted call.
func (r *Registry) record(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.getLocked(name)
	if c.state == StateHalfOpen {
		c.trialInFlight = false
		if err == nil {
			c.state = StateClosed
			c.consecutiveFailures = 0
			c.successCalls++
			publishState(name, StateClosed)
			return
		}
		// Trial failed: re-open, cooldown restarts.
		c.state = StateOpen
		c.openedAt = r.now()
		c.failureCalls++
		publishState(name, StateOpen)
		return
	}

	if err == nil {
		c.consecutiveFailures = 0
		c.successCalls++
		return
	}

	c.consecutiveFailures++
	c.failureCalls++
	if c.consecutiveFailures >= c.cfg.FailureThreshold {
		c.state = StateOpen
		c.openedAt = r.now()
		publishState(name, StateOpen)
	}
}

// Reset returns a circuit to closed with zeroed failure count.
func (r *Registry) Reset(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.getLocked(name)
	c.state = StateClosed
	c.consecutiveFailures = 0
	c.trialInFlight = false
	publishState(name, StateClosed)
}

// Metrics returns a snapshot of the named circuit.
func (r *Registry) Metrics(name string) Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.getLocked(name)
	m := Metrics{
		State:               c.state,
		ConsecutiveFailures: c.consecutiveFailures,
		TotalCalls:          c.totalCalls,
		SuccessCalls:        c.successCalls,
		FailureCalls:        c.failureCalls,
		BlockedCalls:        c.blockedCalls,
	}
	if c.state != StateClosed {
		opened := c.openedAt
		m.OpenedAt = &opened
	}
	return m
}

// RecordHealth lets batch callers feed an aggregate success rate into a
// circuit: a rate below 0.5 counts as one failure, otherwise the
// failure streak resets.
func (r *Registry) RecordHealth(name string, successRate float64) {
	if successRate < 0.5 {
		r.record(name, errors.New("batch success rate below threshold"))
		return
	}
	r.record(name, nil)
}

func (r *Registry) getLocked(name string) *circuit {
	c, ok := r.circuits[name]
	if !ok {
		c = &circuit{cfg: DefaultConfig(), state: StateClosed}
		r.circuits[name] = c
		publishState(name, StateClosed)
	}
	return c
}

// publishState mirrors a circuit's state into the breaker gauge.
func publishState(name string, s State) {
	var v float64
	switch s {
	case StateOpen:
		v = 1
	case StateHalfOpen:
		v = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(v)
}
