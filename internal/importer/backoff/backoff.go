package backoff

import (
	"math"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Calculator computes how long a mediator that found no work should wait before polling its source again.
// Successive calls to CalculateSleepTime grow the wait geometrically up to a maximum; ResetBackoff returns it to the
// minimum. The Calculator never sleeps itself.
type Calculator struct {
	minBackoff time.Duration
	maxBackoff time.Duration
	multiplier float64
	// Last value returned by CalculateSleepTime, zero after a reset.
	current time.Duration
	// Instant before which the owner should not import again.
	nextAttempt time.Time
	clock       clock.PassiveClock
	mu          sync.Mutex
}

func NewCalculator(minBackoff time.Duration, maxBackoff time.Duration, multiplier float64, clock clock.PassiveClock) *Calculator {
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}
	if multiplier < 1 {
		multiplier = 1
	}
	return &Calculator{
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		multiplier: multiplier,
		clock:      clock,
	}
}

// CalculateSleepTime returns the next backoff duration.
func (c *Calculator) CalculateSleepTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calculateSleepTime()
}

func (c *Calculator) calculateSleepTime() time.Duration {
	if c.current == 0 {
		c.current = c.minBackoff
		return c.current
	}
	next := float64(c.current) * c.multiplier
	if next >= float64(c.maxBackoff) || next > math.MaxInt64 {
		c.current = c.maxBackoff
	} else {
		c.current = time.Duration(next)
	}
	return c.current
}

// ScheduleNextAttempt calculates the next backoff and records that no import should happen before it has elapsed.
func (c *Calculator) ScheduleNextAttempt() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	sleep := c.calculateSleepTime()
	c.nextAttempt = c.clock.Now().Add(sleep)
	return sleep
}

// ResetBackoff returns the backoff to its minimum and clears any scheduled wait.
func (c *Calculator) ResetBackoff() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = 0
	c.nextAttempt = time.Time{}
}

// IsReadyToImport returns false while a wait scheduled by ScheduleNextAttempt has not elapsed.
func (c *Calculator) IsReadyToImport() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.clock.Now().Before(c.nextAttempt)
}

// TimeUntilNextAttempt returns how long is left of the current wait, zero if none.
func (c *Calculator) TimeUntilNextAttempt() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := c.nextAttempt.Sub(c.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}
