// Package wakeup bridges the sync engine to whatever background task
// facility the platform offers.
//
// The capability is selected at construction time: platforms without a
// background scheduler get the no-op implementation and the engine relies on
// its foreground drain triggers instead. Registration failure is logged,
// never fatal.
package wakeup

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pathfinderhq/syncagent/internal/logging"
)

// Scheduler registers intent to be woken for background work.
type Scheduler interface {
	// RequestWakeup asks the platform to invoke the registered callback
	// after connectivity or scheduling allows, identified by an opaque tag.
	// Best-effort: a failure is reported but must not stop the caller.
	RequestWakeup(tag string) error
}

// Noop is the implementation for platforms with no background task facility.
type Noop struct{}

// RequestWakeup implements Scheduler as a no-op.
func (Noop) RequestWakeup(tag string) error {
	logging.Debug("wakeup not supported on this platform", zap.String("tag", tag))
	return nil
}

// Timer schedules the callback on a plain timer, deduplicated by tag: a tag
// already pending is not scheduled twice.
type Timer struct {
	Delay    time.Duration
	Callback func(tag string)

	mu      sync.Mutex
	pending map[string]bool
}

// NewTimer creates a timer-backed scheduler that invokes callback after delay.
func NewTimer(delay time.Duration, callback func(tag string)) *Timer {
	return &Timer{
		Delay:    delay,
		Callback: callback,
		pending:  make(map[string]bool),
	}
}

// RequestWakeup implements Scheduler.
func (t *Timer) RequestWakeup(tag string) error {
	t.mu.Lock()
	if t.pending[tag] {
		t.mu.Unlock()
		return nil
	}
	t.pending[tag] = true
	t.mu.Unlock()

	time.AfterFunc(t.Delay, func() {
		t.mu.Lock()
		delete(t.pending, tag)
		t.mu.Unlock()

		if t.Callback != nil {
			t.Callback(tag)
		}
	})
	return nil
}
