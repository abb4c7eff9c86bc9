package adaptive

import (
	"time"

	"golang.org/x/time/rate"
)

// IncrementLimiter paces producer increments: at most one per interval. Like
// the Monitor it belongs to a single controller.
type IncrementLimiter struct {
	interval time.Duration
	limiter  *rate.Limiter
}

// NewIncrementLimiter creates a limiter allowing one increment per interval.
// A non-positive interval never blocks.
func NewIncrementLimiter(interval time.Duration) *IncrementLimiter {
	return &IncrementLimiter{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Allow reports whether an increment may happen at now, and if so spends it.
func (l *IncrementLimiter) Allow(now time.Time) bool {
	return l.limiter.AllowN(now, 1)
}

// Restart makes the next increment available one full interval after now.
func (l *IncrementLimiter) Restart(now time.Time) {
	l.limiter = rate.NewLimiter(rate.Every(l.interval), 1)
	l.limiter.AllowN(now, 1)
}
