package router

import (
	"sync"
	"time"
)

const (
	defaultLimit = 100
	window       = time.Minute

	// idle entries older than this are dropped by Cleanup
	staleAfter = 5 * window
)

// RateLimiter counts requests per key in one-minute windows.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	clients map[string]*clientLimit
	now     func() time.Time
}

type clientLimit struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter allows limit requests per key per minute. A non-positive
// limit takes the default of 100.
func NewRateLimiter(limit int) *RateLimiter {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &RateLimiter{
		limit:   limit,
		clients: make(map[string]*clientLimit),
		now:     time.Now,
	}
}

// Allow records one request for key and reports whether it is within the
// limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cl, ok := rl.clients[key]
	if !ok || now.Sub(cl.windowStart) >= window {
		rl.clients[key] = &clientLimit{count: 1, windowStart: now}
		return true
	}

	if cl.count >= rl.limit {
		return false
	}
	cl.count++
	return true
}

// Cleanup drops keys that have been idle for five windows. Call it
// periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, cl := range rl.clients {
		if now.Sub(cl.windowStart) > staleAfter {
			delete(rl.clients, key)
		}
	}
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
