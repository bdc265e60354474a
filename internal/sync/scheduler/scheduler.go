// Package scheduler triggers drain passes on a timer and on connectivity
// edges. The engine coalesces overlapping triggers, so the scheduler can fire
// freely without tracking in-flight passes.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pathfinderhq/syncagent/internal/logging"
	"github.com/pathfinderhq/syncagent/internal/netmon"
	syncengine "github.com/pathfinderhq/syncagent/internal/sync"
)

// DefaultInterval is the periodic drain cadence.
const DefaultInterval = 1 * time.Minute

// Drainer is the engine surface the scheduler needs.
type Drainer interface {
	SyncNow(ctx context.Context) (*syncengine.DrainResult, error)
}

// Scheduler owns the periodic drain ticker and the offline→online trigger.
type Scheduler struct {
	engine   Drainer
	monitor  *netmon.Monitor
	interval time.Duration

	mu          sync.Mutex
	running     bool
	unsubscribe func()
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// New creates a scheduler over the given engine and connectivity monitor.
func New(engine Drainer, monitor *netmon.Monitor, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		engine:   engine,
		monitor:  monitor,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic draining and subscribes to connectivity edges.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true

	// Drain as soon as connectivity returns; going offline needs no action.
	s.unsubscribe = s.monitor.OnChange(func(online bool) {
		if online {
			s.trigger(ctx, "reconnect")
		}
	})
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.trigger(ctx, "timer")
			}
		}
	}()

	logging.Info("drain scheduler started", zap.Duration("interval", s.interval))
}

// Stop halts the scheduler and waits for its goroutine to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("drain scheduler stopped")
}

// trigger fires a drain pass without blocking the caller. Monitor callbacks
// run on the monitor goroutine, so the pass itself runs detached. The running
// check and the Add share the mutex with Stop: a callback snapshot taken
// before unsubscribe must not Add once Stop is waiting.
func (s *Scheduler) trigger(ctx context.Context, reason string) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()

		result, err := s.engine.SyncNow(ctx)
		if err != nil {
			logging.Error("drain pass failed", err, zap.String("trigger", reason))
			return
		}
		if result != nil && !result.Skipped && result.Attempted > 0 {
			logging.Info("drain pass completed",
				zap.String("trigger", reason),
				zap.Int("attempted", result.Attempted),
				zap.Int("succeeded", result.Succeeded),
				zap.Int("terminal", result.TerminalFailures))
		}
	}()
}
