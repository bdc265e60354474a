// Package queue provides the durable store of pending sync operations.
//
// The store is the source of truth for every locally-originated mutation:
// enqueue returns before any network attempt is made, and an operation leaves
// the store exactly once, on terminal success or on exhausting its retry
// budget. Ordering is recomputed from persisted fields on every read, so it is
// stable across process restarts.
package queue

import (
	"database/sql"
	"time"

	apperrors "github.com/pathfinderhq/syncagent/internal/errors"
	"github.com/pathfinderhq/syncagent/internal/models"
	"github.com/pathfinderhq/syncagent/internal/uuid"
)

// DefaultMaxAttempts is the retry budget assigned when an operation is
// enqueued without one.
const DefaultMaxAttempts = 5

// orderClause sorts by priority (high first), then FIFO within a band, with
// the id as a final deterministic tiebreaker.
const orderClause = `
ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END,
         created_at ASC, id ASC`

const selectColumns = `
SELECT id, kind, endpoint, method, payload, tenant_id, user_id, priority,
       max_attempts, attempt_count, created_at, last_attempted_at, last_error
FROM sync_queue`

// Store persists sync operations in the shared SQLite database.
type Store struct {
	db                 *sql.DB
	defaultMaxAttempts int
}

// NewStore creates a queue store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, defaultMaxAttempts: DefaultMaxAttempts}
}

// SetDefaultMaxAttempts overrides the retry budget assigned to operations
// enqueued without one.
func (s *Store) SetDefaultMaxAttempts(n int) {
	if n > 0 {
		s.defaultMaxAttempts = n
	}
}

// Enqueue validates and persists a new operation, assigning its id and
// creation timestamp. It performs no network I/O; a storage failure propagates
// synchronously because silently losing a mutation is worse than surfacing an
// error to the caller.
func (s *Store) Enqueue(op *models.SyncOperation) (models.UUID, error) {
	if !models.IsValidKind(op.Kind) {
		return "", apperrors.New(apperrors.ErrUnknownKind, "unknown operation kind: "+string(op.Kind))
	}
	if op.TenantID == "" || op.UserID == "" {
		return "", apperrors.New(apperrors.ErrValidation, "operation requires tenant_id and user_id")
	}
	if op.Priority == "" {
		op.Priority = models.PriorityNormal
	}
	if !op.Priority.IsValid() {
		return "", apperrors.New(apperrors.ErrValidation, "invalid priority: "+string(op.Priority))
	}
	if op.Endpoint == "" || op.Method == "" {
		route, err := models.RouteFor(op.Kind)
		if err != nil {
			return "", apperrors.Wrap(apperrors.ErrValidation, "operation has no endpoint", err)
		}
		op.Method = route.Method
		op.Endpoint = route.Endpoint
	}
	if op.MaxAttempts <= 0 {
		op.MaxAttempts = s.defaultMaxAttempts
	}

	op.ID = models.UUID(uuid.New())
	op.CreatedAt = time.Now().UnixNano()
	op.AttemptCount = 0

	query := `
	INSERT INTO sync_queue (id, kind, endpoint, method, payload, tenant_id, user_id,
		priority, max_attempts, attempt_count, created_at, last_attempted_at, last_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, op.ID, op.Kind, op.Endpoint, op.Method, []byte(op.Payload),
		op.TenantID, op.UserID, op.Priority, op.MaxAttempts, op.AttemptCount,
		op.CreatedAt, op.LastAttemptedAt, op.LastError)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "failed to enqueue operation", err)
	}
	return op.ID, nil
}

// List returns all pending operations ordered by (priority desc, created_at asc).
func (s *Store) List() ([]*models.SyncOperation, error) {
	return s.query(selectColumns+orderClause)
}

// ListTenant returns the pending operations of a single tenant, in drain order.
func (s *Store) ListTenant(tenantID string) ([]*models.SyncOperation, error) {
	return s.query(selectColumns+" WHERE tenant_id = ?"+orderClause, tenantID)
}

// Get retrieves a single operation by id.
func (s *Store) Get(id models.UUID) (*models.SyncOperation, error) {
	ops, err := s.query(selectColumns+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, apperrors.New(apperrors.ErrOperationNotFound, "operation not found: "+id.String())
	}
	return ops[0], nil
}

// Update persists mutated retry bookkeeping. Identity and request fields are
// immutable once enqueued, so only attempt_count, last_attempted_at and
// last_error are written.
func (s *Store) Update(op *models.SyncOperation) error {
	query := `
	UPDATE sync_queue
	SET attempt_count = ?, last_attempted_at = ?, last_error = ?
	WHERE id = ?
	`
	result, err := s.db.Exec(query, op.AttemptCount, op.LastAttemptedAt, op.LastError, op.ID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to update operation", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.New(apperrors.ErrOperationNotFound, "operation not found: "+op.ID.String())
	}
	return nil
}

// Remove deletes an operation. Removal is idempotent: deleting an id that is
// already gone is not an error, so a removal racing a concurrently-executing
// attempt is safe.
func (s *Store) Remove(id models.UUID) error {
	_, err := s.db.Exec("DELETE FROM sync_queue WHERE id = ?", id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to remove operation", err)
	}
	return nil
}

// Count returns the number of pending operations.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sync_queue").Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to count operations", err)
	}
	return n, nil
}

// CountByPriority returns pending operation counts keyed by priority.
func (s *Store) CountByPriority() (map[models.Priority]int, error) {
	rows, err := s.db.Query("SELECT priority, COUNT(*) FROM sync_queue GROUP BY priority")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to count operations", err)
	}
	defer rows.Close()

	counts := make(map[models.Priority]int)
	for rows.Next() {
		var p models.Priority
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan count", err)
		}
		counts[p] = n
	}
	return counts, rows.Err()
}

func (s *Store) query(query string, args ...interface{}) ([]*models.SyncOperation, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to query sync queue", err)
	}
	defer rows.Close()

	var ops []*models.SyncOperation
	for rows.Next() {
		var op models.SyncOperation
		var payload []byte
		var lastAttemptedAt sql.NullInt64
		var lastError sql.NullString
		err := rows.Scan(
			&op.ID, &op.Kind, &op.Endpoint, &op.Method, &payload, &op.TenantID,
			&op.UserID, &op.Priority, &op.MaxAttempts, &op.AttemptCount,
			&op.CreatedAt, &lastAttemptedAt, &lastError,
		)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan operation", err)
		}
		if payload != nil {
			op.Payload = payload
		}
		if lastAttemptedAt.Valid {
			op.LastAttemptedAt = &lastAttemptedAt.Int64
		}
		if lastError.Valid {
			op.LastError = &lastError.String
		}
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate sync queue", err)
	}
	return ops, nil
}
