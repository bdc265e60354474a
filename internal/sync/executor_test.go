package sync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pathfinderhq/syncagent/internal/errors"
	"github.com/pathfinderhq/syncagent/internal/models"
)

func testOp() *models.SyncOperation {
	return &models.SyncOperation{
		ID:       "8c7b2c4e-1f3a-4e5b-8a2d-9c0f1e2a3b4c",
		Kind:     models.KindCheckIn,
		Endpoint: "/api/v1/attendance/check-ins",
		Method:   http.MethodPost,
		Payload:  json.RawMessage(`{"member_id":"m1","event_id":"e1"}`),
		TenantID: "tenant-a",
		UserID:   "user-1",
	}
}

// TestExecuteSendsHeaders verifies the request shape: body, auth, tenant and
// idempotency headers.
func TestExecuteSendsHeaders(t *testing.T) {
	var received *http.Request
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	executor := NewAPIExecutor(server.URL, "secret-token", time.Second)
	op := testOp()
	require.NoError(t, executor.Execute(context.Background(), op))

	require.NotNil(t, received)
	assert.Equal(t, http.MethodPost, received.Method)
	assert.Equal(t, "/api/v1/attendance/check-ins", received.URL.Path)
	assert.Equal(t, "application/json", received.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer secret-token", received.Header.Get("Authorization"))
	assert.Equal(t, "tenant-a", received.Header.Get("X-Tenant-ID"))
	assert.Equal(t, "user-1", received.Header.Get("X-User-ID"))
	assert.Equal(t, op.ID.String(), received.Header.Get("X-Idempotency-Key"))
	assert.JSONEq(t, string(op.Payload), string(body))
}

// TestExecuteStatusClassification verifies how response codes map to error
// codes: 2xx success, 5xx and throttling retryable, other 4xx definitive.
func TestExecuteStatusClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		code   apperrors.ErrorCode
	}{
		{"no content", http.StatusNoContent, ""},
		{"server error", http.StatusInternalServerError, apperrors.ErrServer},
		{"bad gateway", http.StatusBadGateway, apperrors.ErrServer},
		{"throttled", http.StatusTooManyRequests, apperrors.ErrServer},
		{"request timeout", http.StatusRequestTimeout, apperrors.ErrServer},
		{"unprocessable", http.StatusUnprocessableEntity, apperrors.ErrClient},
		{"conflict", http.StatusConflict, apperrors.ErrClient},
		{"unauthorized", http.StatusUnauthorized, apperrors.ErrClient},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			executor := NewAPIExecutor(server.URL, "", time.Second)
			err := executor.Execute(context.Background(), testOp())
			if tc.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperrors.Is(err, tc.code), "got %v", err)
		})
	}
}

// TestExecuteErrorCarriesResponseExcerpt verifies that last_error material
// includes the status and a slice of the response body.
func TestExecuteErrorCarriesResponseExcerpt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"member already checked in"}`))
	}))
	defer server.Close()

	executor := NewAPIExecutor(server.URL, "", time.Second)
	err := executor.Execute(context.Background(), testOp())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "already checked in")
}

// TestExecuteTransportFailure verifies that an unreachable server reports
// NETWORK_ERROR.
func TestExecuteTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	executor := NewAPIExecutor(server.URL, "", time.Second)
	err := executor.Execute(context.Background(), testOp())
	assert.True(t, apperrors.Is(err, apperrors.ErrNetwork), "got %v", err)
}
