// Package sync drives every queued mutation from enqueued to a terminal
// outcome: acknowledged by the server, or dropped after exhausting its retry
// budget with the failure reported to the user. Silent data loss is the one
// behavior this package must never exhibit.
package sync

import (
	"context"
	stdsync "sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/pathfinderhq/syncagent/internal/errors"
	"github.com/pathfinderhq/syncagent/internal/events"
	"github.com/pathfinderhq/syncagent/internal/logging"
	"github.com/pathfinderhq/syncagent/internal/metrics"
	"github.com/pathfinderhq/syncagent/internal/models"
	"github.com/pathfinderhq/syncagent/internal/queue"
	"github.com/pathfinderhq/syncagent/internal/wakeup"
)

// WakeupTag identifies the engine's drain entrypoint to the platform
// background scheduler.
const WakeupTag = "syncagent-drain"

// Engine executes sync operations sequentially, in queue order. Several
// operation kinds are not commutative from the server's point of view (a
// check-in followed by a profile update must not race), so there is no
// parallel execution and no more than one drain pass at a time.
type Engine struct {
	store    *queue.Store
	executor Executor
	bus      *events.Bus
	lock     *queue.DrainLock
	wake     wakeup.Scheduler
	backoff  Backoff
	online   func() bool

	// sleep is replaced in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error

	group singleflight.Group

	mu         stdsync.RWMutex
	lastDrain  time.Time
	lastResult *DrainResult
	draining   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithBackoff overrides the retry backoff policy.
func WithBackoff(b Backoff) Option {
	return func(e *Engine) { e.backoff = b }
}

// WithWakeup sets the platform background scheduler used when a drain cannot
// run (offline). Defaults to the no-op scheduler.
func WithWakeup(w wakeup.Scheduler) Option {
	return func(e *Engine) { e.wake = w }
}

// WithOnlineCheck sets the connectivity check consulted before a pass.
// Without one the engine assumes it is online and lets attempts fail fast.
func WithOnlineCheck(fn func() bool) Option {
	return func(e *Engine) { e.online = fn }
}

// NewEngine creates an engine over its injected collaborators. The engine is
// an explicit object instantiated once per process; it holds no global state.
func NewEngine(store *queue.Store, executor Executor, bus *events.Bus, lock *queue.DrainLock, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		executor: executor,
		bus:      bus,
		lock:     lock,
		wake:     wakeup.Noop{},
		backoff:  DefaultBackoff(),
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	StartTime        time.Time     `json:"start_time"`
	Duration         time.Duration `json:"duration"`
	Attempted        int           `json:"attempted"`
	Succeeded        int           `json:"succeeded"`
	Retried          int           `json:"retried"`
	TerminalFailures int           `json:"terminal_failures"`
	// Skipped is true when the pass did not run: offline, or another
	// process held the drain lock.
	Skipped bool `json:"skipped"`
}

// Enqueue persists a mutation and triggers an asynchronous drain, so callers
// get the same code path whether online or offline. It returns as soon as the
// operation is durable; storage failures propagate synchronously.
func (e *Engine) Enqueue(op *models.SyncOperation) (models.UUID, error) {
	id, err := e.store.Enqueue(op)
	if err != nil {
		return "", err
	}
	metrics.OperationsEnqueued.WithLabelValues(string(op.Kind)).Inc()
	logging.Debug("operation enqueued",
		zap.String("id", id.String()),
		zap.String("kind", string(op.Kind)),
		zap.String("priority", string(op.Priority)))

	go func() {
		if _, err := e.SyncNow(context.Background()); err != nil {
			logging.Error("drain after enqueue failed", err)
		}
	}()
	return id, nil
}

// SyncNow runs a full drain pass, or joins the in-flight one: concurrent
// triggers coalesce and all resolve when the single pass completes.
func (e *Engine) SyncNow(ctx context.Context) (*DrainResult, error) {
	v, err, _ := e.group.Do("drain", func() (interface{}, error) {
		return e.drain(ctx)
	})
	result, _ := v.(*DrainResult)
	return result, err
}

// drain walks the queue snapshot sequentially. Ordering is guaranteed for
// operations present when the pass begins; operations enqueued mid-pass wait
// for the next trigger.
func (e *Engine) drain(ctx context.Context) (*DrainResult, error) {
	result := &DrainResult{StartTime: time.Now()}
	e.setDraining(true)
	defer func() {
		result.Duration = time.Since(result.StartTime)
		metrics.DrainDuration.Observe(result.Duration.Seconds())
		if n, err := e.store.Count(); err == nil {
			metrics.QueueDepth.Set(float64(n))
		}
		e.finishDrain(result)
	}()

	if e.online != nil && !e.online() {
		result.Skipped = true
		if err := e.wake.RequestWakeup(WakeupTag); err != nil {
			logging.Warn("wakeup registration failed", zap.Error(err))
		}
		return result, nil
	}

	acquired, err := e.lock.TryAcquire()
	if err != nil {
		return result, err
	}
	if !acquired {
		logging.Debug("drain lock held by another process, skipping pass")
		result.Skipped = true
		return result, nil
	}
	defer func() {
		if err := e.lock.Release(); err != nil {
			logging.Error("failed to release drain lock", err)
		}
	}()

	ops, err := e.store.List()
	if err != nil {
		return result, err
	}
	logging.Info("drain pass started", zap.Int("pending", len(ops)))

	for _, snapshot := range ops {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		// Re-read: the operation may have been removed or attempted by a
		// previous lease holder since the snapshot was taken.
		op, err := e.store.Get(snapshot.ID)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrOperationNotFound) {
				continue
			}
			logging.Error("failed to re-read operation, skipping", err,
				zap.String("id", snapshot.ID.String()))
			continue
		}

		if !e.processOperation(ctx, op, result) {
			break
		}
	}

	logging.Info("drain pass finished",
		zap.Int("attempted", result.Attempted),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("terminal", result.TerminalFailures))
	return result, nil
}

// processOperation drives one operation to success or a terminal failure,
// retrying with backoff inside the pass. It returns false when the pass must
// stop (context cancelled or drain lease lost); a failure of the operation
// itself never aborts the pass.
func (e *Engine) processOperation(ctx context.Context, op *models.SyncOperation, result *DrainResult) bool {
	result.Attempted++

	for {
		err := e.executor.Execute(ctx, op)
		if err == nil {
			if rmErr := e.store.Remove(op.ID); rmErr != nil {
				// The mutation reached the server; a failed removal means it
				// may be replayed, which the idempotency key absorbs.
				logging.Error("failed to remove succeeded operation", rmErr,
					zap.String("id", op.ID.String()))
			}
			e.bus.Succeeded(op)
			metrics.OperationsSucceeded.WithLabelValues(string(op.Kind)).Inc()
			result.Succeeded++
			return true
		}

		op.RecordAttempt(err)

		// Definitive client errors will never succeed on retry; fail them
		// after a single attempt instead of burning the whole budget.
		terminal := op.Exhausted() || apperrors.Is(err, apperrors.ErrClient)
		if terminal {
			if rmErr := e.store.Remove(op.ID); rmErr != nil {
				logging.Error("failed to remove terminal operation", rmErr,
					zap.String("id", op.ID.String()))
			}
			e.bus.FailedTerminal(op, err)
			metrics.OperationsTerminal.WithLabelValues(string(op.Kind)).Inc()
			result.TerminalFailures++
			logging.Warn("operation failed terminally",
				zap.String("id", op.ID.String()),
				zap.String("kind", string(op.Kind)),
				zap.Int("attempts", op.AttemptCount),
				zap.Error(err))
			return true
		}

		// Persist bookkeeping before waiting so a crash mid-pass keeps the
		// attempt count.
		if uErr := e.store.Update(op); uErr != nil {
			logging.Error("failed to persist attempt bookkeeping", uErr,
				zap.String("id", op.ID.String()))
		}
		e.bus.FailedRetryable(op, err)
		metrics.OperationsRetried.WithLabelValues(string(op.Kind)).Inc()
		result.Retried++

		if renewErr := e.lock.Renew(); renewErr != nil {
			logging.Warn("drain lease lost mid-pass, stopping",
				zap.String("id", op.ID.String()), zap.Error(renewErr))
			return false
		}
		if slErr := e.sleep(ctx, e.backoff.Delay(op.AttemptCount)); slErr != nil {
			return false
		}
	}
}

// Status reports the engine and queue state for the local control surface.
type Status struct {
	Draining          bool                    `json:"draining"`
	LastDrainAt       *time.Time              `json:"last_drain_at,omitempty"`
	LastResult        *DrainResult            `json:"last_result,omitempty"`
	Pending           int                     `json:"pending"`
	PendingByPriority map[models.Priority]int `json:"pending_by_priority"`
	Online            bool                    `json:"online"`
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() (*Status, error) {
	pending, err := e.store.Count()
	if err != nil {
		return nil, err
	}
	byPriority, err := e.store.CountByPriority()
	if err != nil {
		return nil, err
	}

	status := &Status{
		Pending:           pending,
		PendingByPriority: byPriority,
		Online:            true,
	}
	if e.online != nil {
		status.Online = e.online()
	}

	e.mu.RLock()
	status.Draining = e.draining
	if !e.lastDrain.IsZero() {
		t := e.lastDrain
		status.LastDrainAt = &t
		status.LastResult = e.lastResult
	}
	e.mu.RUnlock()

	return status, nil
}

func (e *Engine) setDraining(v bool) {
	e.mu.Lock()
	e.draining = v
	e.mu.Unlock()
}

func (e *Engine) finishDrain(result *DrainResult) {
	e.mu.Lock()
	e.draining = false
	e.lastDrain = time.Now()
	e.lastResult = result
	e.mu.Unlock()
}
