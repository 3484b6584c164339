package rate

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces bulk Discord API calls with a token bucket plus random jitter
// so long sweeps do not hit the API in lockstep.
type Limiter struct {
	bucket    *rate.Limiter
	maxJitter time.Duration
}

// New creates a limiter allowing one call per interval with bursts up to burst.
// Each wait adds up to jitter of extra delay.
func New(interval time.Duration, burst int, jitter time.Duration) *Limiter {
	return &Limiter{
		bucket:    rate.NewLimiter(rate.Every(interval), burst),
		maxJitter: jitter,
	}
}

// Unlimited creates a limiter that never waits.
func Unlimited() *Limiter {
	return &Limiter{bucket: rate.NewLimiter(rate.Inf, 0)}
}

// WaitForNextSlot blocks until the next call is allowed or ctx is done.
func (l *Limiter) WaitForNextSlot(ctx context.Context) error {
	if err := l.bucket.Wait(ctx); err != nil {
		return err
	}

	if l.maxJitter <= 0 {
		return nil
	}

	timer := time.NewTimer(rand.N(l.maxJitter))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
