package sync

import (
	"math/rand"
	"time"
)

// Backoff computes the delay before the next attempt of a failed operation.
// Exponential with full jitter: retrying at raw trigger cadence caused retry
// storms against a degraded server, and jitter keeps simultaneous agents from
// stampeding it.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool
}

// DefaultBackoff returns the policy used by the engine.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   500 * time.Millisecond,
		Max:    30 * time.Second,
		Jitter: true,
	}
}

// Delay returns the wait before the given attempt (1-based): base doubled per
// prior attempt, capped at Max, with full jitter when enabled.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := b.Base << uint(attempt-1)
	if delay > b.Max || delay <= 0 {
		delay = b.Max
	}

	if b.Jitter {
		delay = time.Duration(rand.Int63n(int64(delay)) + 1)
	}
	return delay
}
