package queue

import (
	"database/sql"
	"time"

	apperrors "github.com/pathfinderhq/syncagent/internal/errors"
	"github.com/pathfinderhq/syncagent/internal/uuid"
)

// DefaultLeaseTTL bounds how long a crashed drainer can starve other
// processes sharing the store.
const DefaultLeaseTTL = 2 * time.Minute

// DrainLock grants one active drain pass at a time across every process
// sharing the durable store. It is a single-row lease: acquisition succeeds
// when the row is unheld, expired, or already held by this process, so a
// holder that crashes mid-pass only blocks others until the lease runs out.
type DrainLock struct {
	db     *sql.DB
	holder string
	ttl    time.Duration
}

// NewDrainLock creates a lock handle with a process-unique holder identity.
func NewDrainLock(db *sql.DB, ttl time.Duration) *DrainLock {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &DrainLock{
		db:     db,
		holder: uuid.New(),
		ttl:    ttl,
	}
}

// TryAcquire attempts to take the lease. It returns false without error when
// another live holder has it.
func (l *DrainLock) TryAcquire() (bool, error) {
	now := time.Now().UnixNano()
	expires := now + l.ttl.Nanoseconds()

	result, err := l.db.Exec(`
	UPDATE drain_lock
	SET holder = ?, acquired_at = ?, expires_at = ?
	WHERE id = 1 AND (holder = '' OR holder = ? OR expires_at < ?)
	`, l.holder, now, expires, l.holder, now)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrStorage, "failed to acquire drain lock", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrStorage, "failed to acquire drain lock", err)
	}
	return rows == 1, nil
}

// Renew extends the lease while a long drain pass is executing. It fails if
// the lease was lost, in which case the caller must stop draining.
func (l *DrainLock) Renew() error {
	now := time.Now().UnixNano()
	expires := now + l.ttl.Nanoseconds()

	result, err := l.db.Exec(`
	UPDATE drain_lock SET expires_at = ? WHERE id = 1 AND holder = ? AND expires_at >= ?
	`, expires, l.holder, now)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to renew drain lock", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to renew drain lock", err)
	}
	if rows == 0 {
		return apperrors.New(apperrors.ErrLockHeld, "drain lock lost to another holder")
	}
	return nil
}

// Release gives up the lease. Releasing a lease this process no longer holds
// is a no-op.
func (l *DrainLock) Release() error {
	_, err := l.db.Exec(`
	UPDATE drain_lock SET holder = '', acquired_at = 0, expires_at = 0
	WHERE id = 1 AND holder = ?
	`, l.holder)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to release drain lock", err)
	}
	return nil
}

// Holder returns the process-unique holder identity, used in logs.
func (l *DrainLock) Holder() string {
	return l.holder
}
