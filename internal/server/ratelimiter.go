package server

import (
	"sync"
	"time"
)

// pruneInterval is the number of Allow calls between stale-client prunes.
const pruneInterval = 64

// RateLimiter applies a per-client sliding window over the chat endpoint.
// A zero per-minute limit disables limiting.
type RateLimiter struct {
	perMinute int
	clients   map[string][]time.Time
	calls     int
	mu        sync.Mutex
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		clients:   make(map[string][]time.Time),
	}
}

// Allow reports whether the client may issue a request now, recording it if
// so.
func (r *RateLimiter) Allow(clientID string) bool {
	if r.perMinute <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Minute)

	r.calls++
	if r.calls%pruneInterval == 0 {
		r.pruneLocked(cutoff)
	}

	valid := r.clients[clientID][:0]
	for _, t := range r.clients[clientID] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= r.perMinute {
		r.clients[clientID] = valid
		return false
	}

	r.clients[clientID] = append(valid, now)
	return true
}

// Prune drops clients with no recent requests. Allow runs it every
// pruneInterval calls; it is exported for explicit maintenance.
func (r *RateLimiter) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked(time.Now().Add(-time.Minute))
}

func (r *RateLimiter) pruneLocked(cutoff time.Time) {
	for id, times := range r.clients {
		recent := false
		for _, t := range times {
			if t.After(cutoff) {
				recent = true
				break
			}
		}
		if !recent {
			delete(r.clients, id)
		}
	}
}
