// Package ratelimit bounds how often a remote template source is fetched.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Defaults mirror the template engine configuration.
const (
	DefaultMaxRequests = 10
	DefaultWindow      = time.Minute
)

// Limiter is the contract the template engine depends on. Allow records the
// request when it is permitted.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	ResetIn(ctx context.Context, key string) (time.Duration, error)
}

// RateLimiter is an in-process sliding window: at most maxRequests per key
// within any window-long interval.
type RateLimiter struct {
	mu          sync.Mutex
	requests    map[string][]time.Time
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

var _ Limiter = (*RateLimiter)(nil)

// New creates a limiter. Non-positive arguments select the defaults.
func New(maxRequests int, window time.Duration) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RateLimiter{
		requests:    make(map[string][]time.Time),
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

func (l *RateLimiter) live(key string, now time.Time) []time.Time {
	recorded := l.requests[key]
	valid := recorded[:0:0]
	for _, ts := range recorded {
		if now.Sub(ts) < l.window {
			valid = append(valid, ts)
		}
	}
	return valid
}

// TryRequest records a request for key and reports whether it was allowed.
func (l *RateLimiter) TryRequest(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	valid := l.live(key, now)
	if len(valid) >= l.maxRequests {
		l.requests[key] = valid
		return false
	}
	l.requests[key] = append(valid, now)
	return true
}

// RemainingRequests returns how many more requests key may make right now.
func (l *RateLimiter) RemainingRequests(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.maxRequests - len(l.live(key, l.now()))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ResetTime returns how long until the oldest recorded request for key leaves
// the window, or zero when nothing is recorded.
func (l *RateLimiter) ResetTime(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	recorded := l.requests[key]
	if len(recorded) == 0 {
		return 0
	}
	oldest := recorded[0]
	for _, ts := range recorded[1:] {
		if ts.Before(oldest) {
			oldest = ts
		}
	}
	reset := oldest.Add(l.window).Sub(l.now())
	if reset < 0 {
		return 0
	}
	return reset
}

// Clear forgets every key.
func (l *RateLimiter) Clear() {
	l.mu.Lock()
	l.requests = make(map[string][]time.Time)
	l.mu.Unlock()
}

// Cleanup prunes timestamps outside the window and drops empty keys.
func (l *RateLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key := range l.requests {
		valid := l.live(key, now)
		if len(valid) == 0 {
			delete(l.requests, key)
			continue
		}
		l.requests[key] = valid
	}
}

// Allow implements Limiter.
func (l *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.TryRequest(key), nil
}

// ResetIn implements Limiter.
func (l *RateLimiter) ResetIn(_ context.Context, key string) (time.Duration, error) {
	return l.ResetTime(key), nil
}
