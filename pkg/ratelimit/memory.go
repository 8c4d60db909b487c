package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps one timestamp per admitted request, per key. Memory
// per key is bounded by the limit.
type MemoryLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	now       func() time.Time
	nextSweep time.Time
	maxWindow time.Duration
}

func NewMemoryLimiter(opts ...Option) *MemoryLimiter {
	o := applyOptions(opts)
	return &MemoryLimiter{
		hits: make(map[string][]time.Time),
		now:  o.now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if window > l.maxWindow {
		l.maxWindow = window
	}
	l.sweep(now)

	cutoff := now.Add(-window)
	ts := prune(l.hits[key], cutoff)

	if len(ts) < limit {
		ts = append(ts, now)
		l.hits[key] = ts
		return Decision{Allowed: true, Remaining: limit - len(ts)}, nil
	}

	l.hits[key] = ts
	retry := ts[0].Add(window).Sub(now)
	if retry <= 0 {
		retry = time.Millisecond
	}
	return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
}

// Len reports the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// sweep drops keys idle for longer than the largest window seen.
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Before(l.nextSweep) {
		return
	}
	cutoff := now.Add(-l.maxWindow)
	for k, ts := range l.hits {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(l.hits, k)
		}
	}
	l.nextSweep = now.Add(time.Minute)
}

// prune removes timestamps at or before cutoff. ts is sorted.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}
