package postgres

import (
	"context"
	"time"
)

// DefaultQueryTimeout bounds every statement when no timeout is configured.
const DefaultQueryTimeout = 3 * time.Second

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultQueryTimeout
	}
	return context.WithTimeout(ctx, d)
}
