package retry

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// StrategyStats breaks attempt counters down per backoff strategy.
type StrategyStats struct {
	Attempts  int64 `json:"attempts"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
}

// Analytics summarizes retry activity over a time window.
type Analytics struct {
	TotalOperations int64                      `json:"total_operations"`
	SuccessRate     float64                    `json:"success_rate"`
	ByStrategy      map[Strategy]StrategyStats `json:"by_strategy"`
	Recommendations []string                   `json:"recommendations"`
}

type opStats struct {
	strategy   Strategy
	attempts   int64
	successes  int64
	failures   int64
	lastActive time.Time
}

type statsBook struct {
	mu  sync.Mutex
	ops map[string]*opStats
	now func() time.Time
}

func newStatsBook() *statsBook {
	return &statsBook{
		ops: make(map[string]*opStats),
		now: time.Now,
	}
}

func (b *statsBook) record(operationID string, strategy Strategy, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.ops[operationID]
	if !ok {
		s = &opStats{strategy: strategy}
		b.ops[operationID] = s
	}
	s.attempts++
	if success {
		s.successes++
	} else {
		s.failures++
	}
	s.lastActive = b.now()
}

// Analytics reports retry activity for operations active within the
// given window.
func (e *Executor) Analytics(window time.Duration) Analytics {
	b := e.stats
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-window)
	out := Analytics{ByStrategy: make(map[Strategy]StrategyStats)}

	var attempts, successes int64
	var worstOp string
	var worstRate = 1.0

	for id, s := range b.ops {
		if s.lastActive.Before(cutoff) {
			continue
		}
		out.TotalOperations++
		attempts += s.attempts
		successes += s.successes

		ss := out.ByStrategy[s.strategy]
		ss.Attempts += s.attempts
		ss.Successes += s.successes
		ss.Failures += s.failures
		out.ByStrategy[s.strategy] = ss

		if s.attempts > 0 {
			rate := float64(s.successes) / float64(s.attempts)
			if rate < worstRate {
				worstRate = rate
				worstOp = id
			}
		}
	}

	if attempts > 0 {
		out.SuccessRate = float64(successes) / float64(attempts)
	}

	if out.SuccessRate < 0.5 && attempts > 0 {
		out.Recommendations = append(out.Recommendations,
			"overall success rate below 50%: check source availability before retrying further")
	}
	if worstOp != "" && worstRate < 0.25 {
		out.Recommendations = append(out.Recommendations,
			fmt.Sprintf("operation %s rarely succeeds (%.0f%%): consider a circuit breaker or longer backoff", worstOp, worstRate*100))
	}
	sort.Strings(out.Recommendations)
	return out
}

// ResetState clears retry counters for one operation, or for all
// operations when operationID is empty.
func (e *Executor) ResetState(operationID string) {
	b := e.stats
	b.mu.Lock()
	defer b.mu.Unlock()

	if operationID == "" {
		b.ops = make(map[string]*opStats)
		return
	}
	delete(b.ops, operationID)
}
