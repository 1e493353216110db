package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token-bucket gate shared by all transfer workers. Capacity
// equals the configured rate, so a full bucket allows at most one second of
// burst before waits kick in. A nil Limiter never blocks.
type Limiter struct {
	bucket *rate.Limiter
}

// New returns a limiter for bytesPerSec, or nil when the rate is zero or
// negative (unlimited).
func New(bytesPerSec int64) *Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))}
}

// Wait blocks until n tokens have been debited. Requests larger than the
// bucket capacity are split into capacity-sized debits, so callers may pass
// arbitrary buffer sizes. Returns the context error on cancellation.
func (l *Limiter) Wait(ctx context.Context, n int64) error {
	if l == nil || n <= 0 {
		return nil
	}
	burst := int64(l.bucket.Burst())
	for n > 0 {
		take := min(n, burst)
		if err := l.bucket.WaitN(ctx, int(take)); err != nil {
			return err
		}
		n -= take
	}
	return nil
}

// Rate reports the configured bytes/sec, 0 for unlimited.
func (l *Limiter) Rate() int64 {
	if l == nil {
		return 0
	}
	return int64(l.bucket.Limit())
}
