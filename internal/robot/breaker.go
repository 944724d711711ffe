package robot

import (
	"sync"
	"time"

	"github.com/banshee-data/cartonguide/internal/timeutil"
)

// Breaker opens after Threshold consecutive failures and rejects calls with
// ErrCircuitOpen until Cooldown has passed. The first call after the cooldown
// is let through; its outcome closes or re-opens the breaker.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	clock     timeutil.Clock

	failures int
	openedAt time.Time
}

// NewBreaker returns a Breaker. A threshold of 0 or less disables it.
func NewBreaker(threshold int, cooldown time.Duration, clock timeutil.Clock) *Breaker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, clock: clock}
}

// Allow returns ErrCircuitOpen while the breaker is open.
func (b *Breaker) Allow() error {
	if b == nil || b.threshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures >= b.threshold && b.clock.Since(b.openedAt) < b.cooldown {
		return ErrCircuitOpen
	}
	return nil
}

// Record updates the breaker with the outcome of a call.
func (b *Breaker) Record(err error) {
	if b == nil || b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.openedAt = b.clock.Now()
	}
}

// Open reports whether the breaker currently rejects calls.
func (b *Breaker) Open() bool {
	return b.Allow() != nil
}
