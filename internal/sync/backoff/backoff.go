// Package backoff computes delay sequences for retry strategies.
// All functions are pure; jitter draws from math/rand per call.
package backoff

import (
	"math/rand"
	"time"
)

// Exponential returns maxAttempts delays where delay i = base * 2^i,
// capped at max. With jitter enabled each delay is perturbed by up to
// ±50%, so two calls with identical parameters produce different
// sequences.
func Exponential(base, max time.Duration, maxAttempts int, jitter bool) []time.Duration {
	delays := make([]time.Duration, 0, maxAttempts)
	for i := 0; i < maxAttempts; i++ {
		d := base << uint(i)
		if d > max || d <= 0 { // d <= 0 guards shift overflow
			d = max
		}
		if jitter {
			d = applyJitter(d)
		}
		delays = append(delays, d)
	}
	return delays
}

// Linear returns a constant sequence of delay repeated maxAttempts times.
func Linear(delay time.Duration, maxAttempts int) []time.Duration {
	delays := make([]time.Duration, 0, maxAttempts)
	for i := 0; i < maxAttempts; i++ {
		delays = append(delays, delay)
	}
	return delays
}

// Fibonacci returns delays following the Fibonacci sequence
// (1, 1, 2, 3, 5, 8, ...) multiplied by base, each capped at max.
func Fibonacci(base, max time.Duration, maxAttempts int) []time.Duration {
	delays := make([]time.Duration, 0, maxAttempts)
	a, b := int64(1), int64(1)
	for i := 0; i < maxAttempts; i++ {
		d := time.Duration(a) * base
		if d > max || d < 0 {
			d = max
		}
		delays = append(delays, d)
		a, b = b, a+b
	}
	return delays
}

// applyJitter perturbs d uniformly within [0.5d, 1.5d].
func applyJitter(d time.Duration) time.Duration {
	factor := 0.5 + rand.Float64()
	return time.Duration(float64(d) * factor)
}
