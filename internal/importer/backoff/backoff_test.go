package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestCalculateSleepTime_GrowsAndCaps(t *testing.T) {
	c := NewCalculator(time.Second, 10*time.Second, 2, clocktesting.NewFakeClock(time.Now()))
	var got []time.Duration
	for i := 0; i < 6; i++ {
		got = append(got, c.CalculateSleepTime())
	}
	assert.Equal(t, []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}, got)
}

func TestCalculateSleepTime_NonDecreasing(t *testing.T) {
	c := NewCalculator(100*time.Millisecond, 30*time.Second, 1.5, clocktesting.NewFakeClock(time.Now()))
	previous := time.Duration(0)
	for i := 0; i < 50; i++ {
		d := c.CalculateSleepTime()
		assert.GreaterOrEqual(t, d, previous)
		assert.LessOrEqual(t, d, 30*time.Second)
		previous = d
	}
	assert.Equal(t, 30*time.Second, previous)
}

func TestResetBackoff(t *testing.T) {
	c := NewCalculator(time.Second, time.Minute, 2, clocktesting.NewFakeClock(time.Now()))
	c.CalculateSleepTime()
	c.CalculateSleepTime()
	c.CalculateSleepTime()
	c.ResetBackoff()
	assert.Equal(t, time.Second, c.CalculateSleepTime())
}

func TestScheduleNextAttempt(t *testing.T) {
	testClock := clocktesting.NewFakeClock(time.Now())
	c := NewCalculator(time.Second, time.Minute, 2, testClock)
	assert.True(t, c.IsReadyToImport())

	assert.Equal(t, time.Second, c.ScheduleNextAttempt())
	assert.False(t, c.IsReadyToImport())
	assert.Equal(t, time.Second, c.TimeUntilNextAttempt())

	testClock.Step(time.Second)
	assert.True(t, c.IsReadyToImport())
	assert.Equal(t, time.Duration(0), c.TimeUntilNextAttempt())

	assert.Equal(t, 2*time.Second, c.ScheduleNextAttempt())
	c.ResetBackoff()
	assert.True(t, c.IsReadyToImport())
}

func TestNewCalculator_SanitisesBounds(t *testing.T) {
	c := NewCalculator(5*time.Second, time.Second, 0.5, clocktesting.NewFakeClock(time.Now()))
	assert.Equal(t, 5*time.Second, c.CalculateSleepTime())
	assert.Equal(t, 5*time.Second, c.CalculateSleepTime())
}
