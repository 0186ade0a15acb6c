// Package ratelimit implements named fixed-window call limiters.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a call is declined without being
// invoked because the current window is exhausted.
var ErrRateLimited = errors.New("rate limited")

// Config holds per-limiter settings.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

type window struct {
	cfg     Config
	started time.Time
	count   int
}

// Registry holds limiter state keyed by name. Windows reset
// automatically once their duration elapses.
type Registry struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewRegistry creates an empty limiter registry.
func NewRegistry() *Registry {
	return &Registry{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Init creates or reconfigures a named limiter.
func (r *Registry) Init(name string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.windows[name]; ok {
		w.cfg = cfg
		return
	}
	r.windows[name] = &window{cfg: cfg, started: r.now()}
}

// Call executes fn if the current window still has capacity, otherwise
// returns ErrRateLimited without executing.
func (r *Registry) Call(name string, fn func() error) error {
	if !r.allow(name) {
		return ErrRateLimited
	}
	return fn()
}

// Allow consumes one slot from the named limiter's window.
func (r *Registry) Allow(name string) bool {
	return r.allow(name)
}

func (r *Registry) allow(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[name]
	if !ok {
		// Unconfigured limiters do not limit.
		return true
	}

	now := r.now()
	if now.Sub(w.started) >= w.cfg.Window {
		w.started = now
		w.count = 0
	}

	if w.count >= w.cfg.MaxRequests {
		return false
	}
	w.count++
	return true
}

// Cleanup releases resources held for a named limiter.
func (r *Registry) Cleanup(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.windows, name)
}
