package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathfinderhq/syncagent/internal/events"
	"github.com/pathfinderhq/syncagent/internal/models"
)

// TestHubBroadcastsBusEvents verifies that a connected client receives sync
// outcome events as JSON envelopes.
func TestHubBroadcastsBusEvents(t *testing.T) {
	bus := events.NewBus()
	hub := NewHub(bus)
	stop := hub.Run()
	defer stop()

	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the hub a moment to register the client before emitting.
	time.Sleep(50 * time.Millisecond)

	bus.Succeeded(&models.SyncOperation{
		ID:   "11111111-1111-4111-8111-111111111111",
		Kind: models.KindCheckIn,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)

	var envelope wsEnvelope
	require.NoError(t, json.Unmarshal(message, &envelope))
	assert.Equal(t, string(events.TypeOperationSucceeded), envelope.Type)
	assert.Equal(t, models.UUID("11111111-1111-4111-8111-111111111111"), envelope.Data.OperationID)
	assert.Equal(t, models.KindCheckIn, envelope.Data.Kind)
	assert.NotZero(t, envelope.Timestamp)
}

// TestHubSurvivesClientDisconnect verifies that a dropped client does not
// break delivery to the remaining ones.
func TestHubSurvivesClientDisconnect(t *testing.T) {
	bus := events.NewBus()
	hub := NewHub(bus)
	stop := hub.Run()
	defer stop()

	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	doomed, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	survivor, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer survivor.Close()

	time.Sleep(50 * time.Millisecond)
	doomed.Close()
	time.Sleep(50 * time.Millisecond)

	bus.FailedTerminal(&models.SyncOperation{
		ID:   "22222222-2222-4222-8222-222222222222",
		Kind: models.KindEventRSVP,
	}, assert.AnError)

	survivor.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := survivor.ReadMessage()
	require.NoError(t, err)

	var envelope wsEnvelope
	require.NoError(t, json.Unmarshal(message, &envelope))
	assert.Equal(t, string(events.TypeOperationFailedTerminal), envelope.Type)
	assert.NotEmpty(t, envelope.Data.Error)
}
