package pricing

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy is the explicit backoff policy threaded into the client
// through configuration. MaxAttempts counts total lookups, so
// MaxAttempts=3 performs exactly three before giving up.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the standard lookup retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		Factor:      2.0,
		MaxDelay:    30 * time.Second,
	}
}

// normalized fills zero fields with defaults so a partially built
// policy stays usable
func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.Factor < 1 {
		p.Factor = def.Factor
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	return p
}

// Delay returns the backoff before the next attempt, given how many
// attempts have already failed (1-based). Exponential with ±20% jitter,
// capped at MaxDelay.
func (p RetryPolicy) Delay(failed int) time.Duration {
	if failed < 1 {
		failed = 1
	}
	base := float64(p.BaseDelay) * math.Pow(p.Factor, float64(failed-1))

	// Add jitter (±20%)
	jitter := (rand.Float64() * 0.4) - 0.2
	delay := time.Duration(base * (1 + jitter))

	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}
