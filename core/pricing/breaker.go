package pricing

import (
	"sync"
	"time"

	"plancost/internal/errors"
)

// BreakerPolicy governs when the pricing circuit opens and recovers
type BreakerPolicy struct {
	// FailureThreshold is the consecutive-failure streak (across
	// distinct keys) that opens the circuit
	FailureThreshold int

	// Cooldown is how long the circuit stays open before one probe
	// is admitted
	Cooldown time.Duration
}

// DefaultBreakerPolicy returns the standard breaker policy
func DefaultBreakerPolicy() BreakerPolicy {
	return BreakerPolicy{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Breaker states
const (
	breakerClosed = iota
	breakerOpen
	breakerHalfOpen
)

// Breaker fails lookups fast after a streak of consecutive failures.
// One lookup (including its internal retries) counts as one unit: the
// client calls Allow before dialing out and reports the final outcome
// through Success or Failure.
type Breaker struct {
	mu       sync.Mutex
	policy   BreakerPolicy
	state    int
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// NewBreaker creates a closed breaker under the given policy
func NewBreaker(policy BreakerPolicy) *Breaker {
	if policy.FailureThreshold <= 0 {
		policy.FailureThreshold = DefaultBreakerPolicy().FailureThreshold
	}
	if policy.Cooldown <= 0 {
		policy.Cooldown = DefaultBreakerPolicy().Cooldown
	}
	return &Breaker{
		policy: policy,
		now:    time.Now,
	}
}

// Allow reports whether a lookup may proceed. While open it returns
// CIRCUIT_OPEN until the cooldown elapses, then admits exactly one
// probe (half-open); concurrent callers keep failing fast until the
// probe settles.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return nil
	case breakerOpen:
		if b.now().Sub(b.openedAt) < b.policy.Cooldown {
			return errors.CircuitOpen("pricing circuit open")
		}
		b.state = breakerHalfOpen
		b.probing = true
		return nil
	default: // half-open
		if b.probing {
			return errors.CircuitOpen("pricing circuit half-open, probe in flight")
		}
		b.probing = true
		return nil
	}
}

// Success records a completed lookup and closes the circuit
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = breakerClosed
	b.failures = 0
	b.probing = false
}

// Failure records a failed lookup. A failed probe re-opens the
// circuit; in the closed state the streak opens it once it reaches
// the threshold.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = b.now()
		b.probing = false
		return
	}

	b.failures++
	if b.state == breakerClosed && b.failures >= b.policy.FailureThreshold {
		b.state = breakerOpen
		b.openedAt = b.now()
	}
}

// State reports the breaker state for logs and metrics
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
