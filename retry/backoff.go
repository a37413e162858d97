package retry

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes the delay before the next attempt. Attempt numbering
// starts at 0 for the first retry, i.e. after the first failure.
//
// base = min(InitialDelay * Multiplier^attempt, MaxDelay); with jitter, a
// uniformly random value in [0, base*JitterFraction) is added on top to
// desynchronize concurrent retries when many callers fail at once.
func Backoff(attempt int, p Policy) time.Duration {
	base := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if base > float64(p.MaxDelay) {
		base = float64(p.MaxDelay)
	}

	delay := time.Duration(base)
	if p.UseJitter && p.JitterFraction > 0 {
		delay += time.Duration(rand.Float64() * base * p.JitterFraction)
	}
	return delay
}
