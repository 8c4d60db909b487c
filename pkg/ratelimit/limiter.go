// Package ratelimit implements sliding-log request limiters. A caller can
// never exceed limit requests in any trailing interval of length window.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// Option configures the clock of a limiter.
type Option func(*clockOpt)

type clockOpt struct {
	now func() time.Time
}

func WithClock(now func() time.Time) Option {
	return func(o *clockOpt) {
		o.now = now
	}
}

func applyOptions(opts []Option) clockOpt {
	o := clockOpt{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
