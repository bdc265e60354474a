package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/pathfinderhq/syncagent/internal/errors"
	"github.com/pathfinderhq/syncagent/internal/models"
)

// Executor performs the HTTP round-trip for a single sync operation.
// A nil return means the server acknowledged the mutation (2xx).
type Executor interface {
	Execute(ctx context.Context, op *models.SyncOperation) error
}

// APIExecutor executes operations against the Pathfinder HTTP API.
type APIExecutor struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewAPIExecutor creates an executor with the given per-attempt timeout.
func NewAPIExecutor(baseURL, token string, timeout time.Duration) *APIExecutor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIExecutor{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

// Execute builds exactly one HTTP request from the operation and sends it.
// The operation id doubles as an idempotency key so at-least-once delivery is
// safe to replay server-side.
func (e *APIExecutor) Execute(ctx context.Context, op *models.SyncOperation) error {
	var body io.Reader
	if len(op.Payload) > 0 && !bodilessMethod(op.Method) {
		body = bytes.NewReader(op.Payload)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, e.BaseURL+op.Endpoint, body)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrClient, "failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.Token)
	}
	req.Header.Set("X-Tenant-ID", op.TenantID)
	req.Header.Set("X-User-ID", op.UserID)
	req.Header.Set("X-Idempotency-Key", op.ID.String())

	resp, err := e.Client.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Keep a short excerpt of the response so last_error is actionable.
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	msg := fmt.Sprintf("%s %s returned %d", op.Method, op.Endpoint, resp.StatusCode)
	if len(excerpt) > 0 {
		msg += ": " + string(excerpt)
	}

	if retryableStatus(resp.StatusCode) {
		return apperrors.New(apperrors.ErrServer, msg)
	}
	return apperrors.New(apperrors.ErrClient, msg)
}

// retryableStatus reports whether a non-2xx status can heal on retry.
// Server errors and throttling are retryable; other client errors are
// definitive and will never succeed.
func retryableStatus(status int) bool {
	if status >= 500 {
		return true
	}
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

func bodilessMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		return true
	}
	return false
}
