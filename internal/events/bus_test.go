package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathfinderhq/syncagent/internal/models"
)

func op() *models.SyncOperation {
	return &models.SyncOperation{
		ID:   "11111111-1111-4111-8111-111111111111",
		Kind: models.KindCheckIn,
	}
}

// TestSubscribeReceivesEvents verifies fan-out to multiple subscribers with a
// stamped timestamp.
func TestSubscribeReceivesEvents(t *testing.T) {
	bus := NewBus()
	first, stopFirst := bus.Subscribe(4)
	defer stopFirst()
	second, stopSecond := bus.Subscribe(4)
	defer stopSecond()

	bus.Succeeded(op())

	for _, ch := range []<-chan Event{first, second} {
		ev := <-ch
		assert.Equal(t, TypeOperationSucceeded, ev.Type)
		assert.Equal(t, op().ID, ev.OperationID)
		assert.Equal(t, models.KindCheckIn, ev.Kind)
		assert.NotZero(t, ev.Timestamp)
	}
}

// TestFailureEventsCarryError verifies the retryable and terminal helpers.
func TestFailureEventsCarryError(t *testing.T) {
	bus := NewBus()
	ch, stop := bus.Subscribe(4)
	defer stop()

	cause := errors.New("upstream returned 503")
	bus.FailedRetryable(op(), cause)
	bus.FailedTerminal(op(), cause)

	ev := <-ch
	assert.Equal(t, TypeOperationFailedRetryable, ev.Type)
	assert.Equal(t, cause.Error(), ev.Error)

	ev = <-ch
	assert.Equal(t, TypeOperationFailedTerminal, ev.Type)
	assert.Equal(t, cause.Error(), ev.Error)
}

// TestEmitNeverBlocks verifies that a subscriber with a full buffer misses
// events instead of stalling the emitter.
func TestEmitNeverBlocks(t *testing.T) {
	bus := NewBus()
	ch, stop := bus.Subscribe(1)
	defer stop()

	for i := 0; i < 10; i++ {
		bus.Succeeded(op())
	}

	// Only the buffered event is delivered; the emitter returned regardless.
	<-ch
	select {
	case ev := <-ch:
		t.Fatalf("unexpected buffered event: %+v", ev)
	default:
	}
}

// TestUnsubscribeClosesChannel verifies that unsubscribing closes the channel
// and later emits do not panic.
func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, stop := bus.Subscribe(4)

	stop()
	_, open := <-ch
	require.False(t, open)

	bus.Succeeded(op())

	// Unsubscribing twice is safe.
	stop()
}
