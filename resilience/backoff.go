package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// backoffDelay computes the sleep before retry number attempt (0-based):
// min(MaxDelay, BaseDelay * BackoffFactor^attempt) plus uniform jitter in
// [0, delay/10].
func backoffDelay(cfg *Config, attempt int) time.Duration {
	multiplier := math.Pow(cfg.BackoffFactor, float64(attempt))
	delay := time.Duration(float64(cfg.BaseDelay) * multiplier)

	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}

	if jitterMax := int64(delay / 10); jitterMax > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(jitterMax))
	}

	return delay
}

// sleep waits for d or until the context is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
