// Package events provides the in-process notification fan-out for sync
// outcomes.
//
// Delivery is fire-and-forget and at-most-once per state transition: a slow
// subscriber loses events rather than blocking the sync engine, and a lost
// event never loses the underlying state transition because the queue store
// is the source of truth.
package events

import (
	"sync"
	"time"

	"github.com/pathfinderhq/syncagent/internal/models"
)

// Type identifies a sync outcome event.
type Type string

const (
	TypeOperationSucceeded       Type = "operation.succeeded"
	TypeOperationFailedRetryable Type = "operation.failed_retryable"
	TypeOperationFailedTerminal  Type = "operation.failed_terminal"
)

// Event carries a single operation state transition. Events are consumed
// in-process only and never persisted.
type Event struct {
	Type        Type        `json:"type"`
	OperationID models.UUID `json:"operation_id"`
	Kind        models.Kind `json:"operation_kind"`
	Error       string      `json:"error,omitempty"`
	Timestamp   int64       `json:"timestamp"`
}

// Bus fans events out to all current subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
	}
}

// Subscribe registers a new subscriber with the given channel buffer and
// returns its channel plus an unsubscribe function. After unsubscribing the
// channel is closed.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// Emit delivers an event to every subscriber without blocking. Subscribers
// with a full buffer miss the event.
func (b *Bus) Emit(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full; drop rather than stall the engine.
		}
	}
}

// Succeeded emits an operation.succeeded event.
func (b *Bus) Succeeded(op *models.SyncOperation) {
	b.Emit(Event{
		Type:        TypeOperationSucceeded,
		OperationID: op.ID,
		Kind:        op.Kind,
	})
}

// FailedRetryable emits an operation.failed_retryable event.
func (b *Bus) FailedRetryable(op *models.SyncOperation, err error) {
	b.Emit(Event{
		Type:        TypeOperationFailedRetryable,
		OperationID: op.ID,
		Kind:        op.Kind,
		Error:       err.Error(),
	})
}

// FailedTerminal emits an operation.failed_terminal event.
func (b *Bus) FailedTerminal(op *models.SyncOperation, err error) {
	b.Emit(Event{
		Type:        TypeOperationFailedTerminal,
		OperationID: op.ID,
		Kind:        op.Kind,
		Error:       err.Error(),
	})
}
