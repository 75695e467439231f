// Package ratelimit provides per-dependency token-bucket rate limiting for
// outbound calls. Each external dependency (AI provider, search backend) gets
// its own bucket so that saturating one never starves the others.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Registry holds one limiter per named dependency. Waiters on the same key
// are served in FIFO order by the underlying limiter.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*rate.Limiter)}
}

// Configure sets the per-minute budget for a dependency. Burst is held at 1
// so calls spread evenly across the window instead of bunching at its start.
func (r *Registry) Configure(key string, perMinute int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[key] = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
}

// Wait blocks until the dependency's bucket grants a token or ctx is done.
// Keys that were never configured are unlimited.
func (r *Registry) Wait(ctx context.Context, key string) error {
	r.mu.RLock()
	lim, ok := r.limiters[key]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", key, err)
	}
	return nil
}

// Allow reports whether a token is available right now without blocking.
func (r *Registry) Allow(key string) bool {
	r.mu.RLock()
	lim, ok := r.limiters[key]
	r.mu.RUnlock()
	if !ok {
		return true
	}
	return lim.Allow()
}
