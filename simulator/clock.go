package simulator

import (
	"context"
	"time"
)

// Clock supplies wall-clock time. Tests substitute a manual clock to make
// TTL expiry deterministic.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }

// sleepCtx blocks for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
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

// simulatedToWall converts a simulated duration in ms to wall-clock time under
// the acceleration factor.
func simulatedToWall(simMs int64, xFaster int64) time.Duration {
	if xFaster < 1 {
		xFaster = 1
	}
	return time.Duration(float64(simMs) / float64(xFaster) * float64(time.Millisecond))
}
