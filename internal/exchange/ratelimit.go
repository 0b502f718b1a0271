package exchange

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter gates REST discovery calls so startup bursts stay inside an
// exchange's request-weight budget.
type RateLimiter struct {
	mu              sync.Mutex
	weightPerMinute int
	weightCounter   int
	lastMinuteReset time.Time
}

// NewRateLimiter creates a limiter with the given per-minute weight budget.
// A non-positive budget disables limiting.
func NewRateLimiter(weightPerMinute int) *RateLimiter {
	return &RateLimiter{
		weightPerMinute: weightPerMinute,
		lastMinuteReset: time.Now(),
	}
}

// CheckLimit records a request of the given weight, or reports an error when
// the budget for the current minute is exhausted.
func (r *RateLimiter) CheckLimit(weight int) error {
	if r.weightPerMinute <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastMinuteReset) >= time.Minute {
		r.weightCounter = 0
		r.lastMinuteReset = now
	}

	if r.weightCounter+weight > r.weightPerMinute {
		return fmt.Errorf("rate limit exceeded: %d+%d > %d per minute",
			r.weightCounter, weight, r.weightPerMinute)
	}
	r.weightCounter += weight
	return nil
}
