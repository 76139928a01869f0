package jobs

import (
	"context"
	"time"
)

type softLimitKey struct{}

// WithSoftLimit returns a context whose soft limit marker closes after d.
// The hard limit is an ordinary deadline on the context itself. The returned
// stop func releases the timer.
func WithSoftLimit(ctx context.Context, d time.Duration) (context.Context, func()) {
	done := make(chan struct{})
	if d <= 0 {
		return context.WithValue(ctx, softLimitKey{}, (<-chan struct{})(done)), func() {}
	}
	timer := time.AfterFunc(d, func() { close(done) })
	return context.WithValue(ctx, softLimitKey{}, (<-chan struct{})(done)), func() { timer.Stop() }
}

// SoftLimitDone returns a channel closed once the soft limit has passed, or
// nil when ctx carries no soft limit
func SoftLimitDone(ctx context.Context) <-chan struct{} {
	done, _ := ctx.Value(softLimitKey{}).(<-chan struct{})
	return done
}

// SoftLimitExceeded reports whether the job should stop at its next checkpoint
func SoftLimitExceeded(ctx context.Context) bool {
	done := SoftLimitDone(ctx)
	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}
