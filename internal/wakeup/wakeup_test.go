package wakeup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNoopNeverFails verifies the no-capability implementation.
func TestNoopNeverFails(t *testing.T) {
	assert.NoError(t, Noop{}.RequestWakeup("drain"))
}

// TestTimerInvokesCallback verifies that a request fires the callback with
// its tag after the delay.
func TestTimerInvokesCallback(t *testing.T) {
	fired := make(chan string, 1)
	timer := NewTimer(10*time.Millisecond, func(tag string) { fired <- tag })

	require.NoError(t, timer.RequestWakeup("drain"))

	select {
	case tag := <-fired:
		assert.Equal(t, "drain", tag)
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}

// TestTimerDeduplicatesPendingTags verifies that re-requesting a pending tag
// schedules nothing extra, while the tag can be scheduled again after firing.
func TestTimerDeduplicatesPendingTags(t *testing.T) {
	fired := make(chan string, 4)
	timer := NewTimer(20*time.Millisecond, func(tag string) { fired <- tag })

	require.NoError(t, timer.RequestWakeup("drain"))
	require.NoError(t, timer.RequestWakeup("drain"))
	require.NoError(t, timer.RequestWakeup("drain"))

	<-fired
	select {
	case tag := <-fired:
		t.Fatalf("duplicate callback for tag %q", tag)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, timer.RequestWakeup("drain"))
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("tag could not be rescheduled after firing")
	}
}

// TestTimerTagsAreIndependent verifies that distinct tags schedule distinct
// callbacks.
func TestTimerTagsAreIndependent(t *testing.T) {
	fired := make(chan string, 2)
	timer := NewTimer(10*time.Millisecond, func(tag string) { fired <- tag })

	require.NoError(t, timer.RequestWakeup("drain"))
	require.NoError(t, timer.RequestWakeup("refresh"))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case tag := <-fired:
			got[tag] = true
		case <-time.After(time.Second):
			t.Fatal("missing callback")
		}
	}
	assert.True(t, got["drain"])
	assert.True(t, got["refresh"])
}
