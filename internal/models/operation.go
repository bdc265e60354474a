// Package models provides data model definitions for the Pathfinder sync agent.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// Priority orders operations within the sync queue. Higher priorities drain first;
// operations of equal priority drain oldest-first.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Rank returns the sort rank of the priority. Lower rank drains first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	default:
		return 2
	}
}

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// SyncOperation represents a single pending mutation destined for the server.
//
// id, kind, tenant_id and user_id are immutable once persisted; only
// attempt_count, last_attempted_at and last_error mutate in place. An operation
// is removed from the store exactly once: on terminal success or on exhausting
// max_attempts.
type SyncOperation struct {
	ID              UUID            `db:"id" json:"id"`
	Kind            Kind            `db:"kind" json:"kind"`
	Endpoint        string          `db:"endpoint" json:"endpoint"`
	Method          string          `db:"method" json:"method"`
	Payload         json.RawMessage `db:"payload" json:"payload,omitempty"`
	TenantID        string          `db:"tenant_id" json:"tenant_id"`
	UserID          string          `db:"user_id" json:"user_id"`
	Priority        Priority        `db:"priority" json:"priority"`
	MaxAttempts     int             `db:"max_attempts" json:"max_attempts"`
	AttemptCount    int             `db:"attempt_count" json:"attempt_count"`
	// CreatedAt and LastAttemptedAt are Unix nanoseconds: created_at is the
	// FIFO tiebreaker within a priority band, so second granularity is too
	// coarse.
	CreatedAt       int64   `db:"created_at" json:"created_at"`
	LastAttemptedAt *int64  `db:"last_attempted_at" json:"last_attempted_at,omitempty"`
	LastError       *string `db:"last_error" json:"last_error,omitempty"`
}

// TableName returns the table name for SyncOperation.
func (SyncOperation) TableName() string {
	return "sync_queue"
}

// CreatedAtTime returns CreatedAt as time.Time.
func (o *SyncOperation) CreatedAtTime() time.Time {
	return time.Unix(0, o.CreatedAt)
}

// RecordAttempt updates the retry bookkeeping after a failed attempt.
func (o *SyncOperation) RecordAttempt(err error) {
	now := time.Now().UnixNano()
	o.AttemptCount++
	o.LastAttemptedAt = &now
	if err != nil {
		msg := err.Error()
		o.LastError = &msg
	}
}

// Exhausted reports whether the operation has used up its retry budget.
func (o *SyncOperation) Exhausted() bool {
	return o.AttemptCount >= o.MaxAttempts
}

// DecodedPayload decodes the stored payload into its kind-specific shape.
func (o *SyncOperation) DecodedPayload() (Payload, error) {
	return DecodePayload(o.Kind, o.Payload)
}
