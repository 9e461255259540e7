package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn under a derived context that is cancelled after the
// given budget. Stage functions must return promptly once the context is
// signalled; the caller treats the expiry as a degradation, not a failure.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w (budget: %v)", name, context.DeadlineExceeded, timeout)
	}
}
