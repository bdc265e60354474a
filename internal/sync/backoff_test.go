package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestDelayDoublesWithoutJitter verifies the exponential schedule.
func TestDelayDoublesWithoutJitter(t *testing.T) {
	b := Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second}

	assert.Equal(t, 500*time.Millisecond, b.Delay(1))
	assert.Equal(t, 1*time.Second, b.Delay(2))
	assert.Equal(t, 2*time.Second, b.Delay(3))
	assert.Equal(t, 4*time.Second, b.Delay(4))
}

// TestDelayCapped verifies that the delay never exceeds Max, including when
// the shift overflows.
func TestDelayCapped(t *testing.T) {
	b := Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second}

	assert.Equal(t, 30*time.Second, b.Delay(10))
	assert.Equal(t, 30*time.Second, b.Delay(64))
	assert.Equal(t, 30*time.Second, b.Delay(1000))
}

// TestDelayClampsAttempt verifies that attempts below one behave as the first.
func TestDelayClampsAttempt(t *testing.T) {
	b := Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second}

	assert.Equal(t, b.Delay(1), b.Delay(0))
	assert.Equal(t, b.Delay(1), b.Delay(-3))
}

// TestDelayJitterBounds verifies that jittered delays stay within (0, delay].
func TestDelayJitterBounds(t *testing.T) {
	b := DefaultBackoff()

	for attempt := 1; attempt <= 8; attempt++ {
		upper := Backoff{Base: b.Base, Max: b.Max}.Delay(attempt)
		for i := 0; i < 100; i++ {
			d := b.Delay(attempt)
			assert.Greater(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, upper)
		}
	}
}
