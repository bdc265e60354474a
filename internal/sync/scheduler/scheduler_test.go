package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pathfinderhq/syncagent/internal/netmon"
	syncengine "github.com/pathfinderhq/syncagent/internal/sync"
)

type fakeDrainer struct {
	calls chan struct{}
}

func (d *fakeDrainer) SyncNow(ctx context.Context) (*syncengine.DrainResult, error) {
	select {
	case d.calls <- struct{}{}:
	default:
	}
	return &syncengine.DrainResult{}, nil
}

type offlineProber struct{}

func (offlineProber) Probe(ctx context.Context) bool { return false }

// TestReconnectTriggersDrain verifies that an offline→online edge fires a
// drain pass.
func TestReconnectTriggersDrain(t *testing.T) {
	drainer := &fakeDrainer{calls: make(chan struct{}, 4)}
	monitor := netmon.NewMonitor(offlineProber{}, time.Hour)
	sched := New(drainer, monitor, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	defer sched.Stop()

	monitor.SetOnline(false)
	monitor.SetOnline(true)

	select {
	case <-drainer.calls:
	case <-time.After(time.Second):
		t.Fatal("reconnect did not trigger a drain")
	}
}

// TestGoingOfflineDoesNotTrigger verifies that losing connectivity fires no
// pass.
func TestGoingOfflineDoesNotTrigger(t *testing.T) {
	drainer := &fakeDrainer{calls: make(chan struct{}, 4)}
	monitor := netmon.NewMonitor(offlineProber{}, time.Hour)
	sched := New(drainer, monitor, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	defer sched.Stop()

	monitor.SetOnline(false)

	select {
	case <-drainer.calls:
		t.Fatal("going offline triggered a drain")
	case <-time.After(100 * time.Millisecond):
	}
}

// TestTimerTriggersDrain verifies the periodic cadence.
func TestTimerTriggersDrain(t *testing.T) {
	drainer := &fakeDrainer{calls: make(chan struct{}, 16)}
	monitor := netmon.NewMonitor(offlineProber{}, time.Hour)
	sched := New(drainer, monitor, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	defer sched.Stop()

	select {
	case <-drainer.calls:
	case <-time.After(time.Second):
		t.Fatal("ticker did not trigger a drain")
	}
}

// TestStopIsIdempotentAndHalts verifies that Stop waits for the loop and that
// double Start/Stop calls are safe.
func TestStopIsIdempotentAndHalts(t *testing.T) {
	drainer := &fakeDrainer{calls: make(chan struct{}, 16)}
	monitor := netmon.NewMonitor(offlineProber{}, time.Hour)
	sched := New(drainer, monitor, time.Hour)

	ctx := context.Background()
	sched.Start(ctx)
	sched.Start(ctx)
	sched.Stop()
	sched.Stop()

	monitor.SetOnline(false)
	monitor.SetOnline(true)

	select {
	case <-drainer.calls:
		t.Fatal("stopped scheduler still triggered a drain")
	case <-time.After(100 * time.Millisecond):
	}
}

// TestTriggerAfterStopIsNoop verifies that a trigger arriving after Stop has
// begun waiting fires no pass, covering a monitor callback snapshotted before
// its unsubscribe ran.
func TestTriggerAfterStopIsNoop(t *testing.T) {
	drainer := &fakeDrainer{calls: make(chan struct{}, 16)}
	monitor := netmon.NewMonitor(offlineProber{}, time.Hour)
	sched := New(drainer, monitor, time.Hour)

	ctx := context.Background()
	sched.Start(ctx)
	sched.Stop()

	sched.trigger(ctx, "late")

	select {
	case <-drainer.calls:
		t.Fatal("late trigger fired a drain after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}
