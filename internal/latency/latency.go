// Package latency simulates network delay for the stubbed backends.
package latency

import (
	"context"
	"time"
)

// Simulate blocks for d or until ctx is done. A non-positive d returns at once.
func Simulate(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
