// Package cache provides the tenant-scoped store of locally mirrored entities.
//
// Storage is shared across tenants, so every read is filtered by the caller's
// tenant and deletes verify ownership first. This is a data-hygiene guard, not
// a substitute for server-side authorization: the store is fully
// client-controlled.
package cache

import (
	"database/sql"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	apperrors "github.com/pathfinderhq/syncagent/internal/errors"
	"github.com/pathfinderhq/syncagent/internal/models"
)

const (
	memoryTTL   = 5 * time.Minute
	memorySweep = 10 * time.Minute
)

// Store persists cached records in SQLite with an in-memory read-through
// layer in front of it. The memory layer is invalidated on every write.
type Store struct {
	db  *sql.DB
	mem *gocache.Cache
}

// NewStore creates a cache store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		mem: gocache.New(memoryTTL, memorySweep),
	}
}

func memKey(collection models.Collection, tenantID string) string {
	return string(collection) + "|" + tenantID
}

// Put creates or overwrites records in a collection under the given tenant.
// Collection, tenant and freshness are stamped by the store; callers only
// supply entity ids and data.
func (s *Store) Put(collection models.Collection, tenantID string, records []models.CachedRecord) error {
	if !models.IsValidCollection(collection) {
		return apperrors.New(apperrors.ErrInvalid, "unknown collection: "+string(collection))
	}
	if tenantID == "" {
		return apperrors.New(apperrors.ErrValidation, "tenant_id is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to begin cache write", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	query := `
	INSERT INTO cache_records (collection, id, tenant_id, data, last_updated)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET
		tenant_id = excluded.tenant_id,
		data = excluded.data,
		last_updated = excluded.last_updated
	`
	// An overwrite can move a row to a new tenant; the previous owner's warmed
	// memory entries must not keep serving it.
	staleTenants := make(map[string]struct{})
	for _, rec := range records {
		if rec.ID == "" {
			return apperrors.New(apperrors.ErrValidation, "cached record requires an id")
		}
		var prevTenant string
		err := tx.QueryRow(`
		SELECT tenant_id FROM cache_records WHERE collection = ? AND id = ?
		`, collection, rec.ID).Scan(&prevTenant)
		if err != nil && err != sql.ErrNoRows {
			return apperrors.Wrap(apperrors.ErrStorage,
				fmt.Sprintf("failed to read prior owner of %s record %s", collection, rec.ID), err)
		}
		if err == nil && prevTenant != tenantID {
			staleTenants[prevTenant] = struct{}{}
		}
		if _, err := tx.Exec(query, collection, rec.ID, tenantID, []byte(rec.Data), now); err != nil {
			return apperrors.Wrap(apperrors.ErrStorage,
				fmt.Sprintf("failed to cache %s record %s", collection, rec.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to commit cache write", err)
	}

	s.mem.Delete(memKey(collection, tenantID))
	for prev := range staleTenants {
		s.mem.Delete(memKey(collection, prev))
	}
	return nil
}

// Get returns every cached record of a collection belonging to the tenant.
// Records physically present under other tenants are never returned.
func (s *Store) Get(collection models.Collection, tenantID string) ([]models.CachedRecord, error) {
	if !models.IsValidCollection(collection) {
		return nil, apperrors.New(apperrors.ErrInvalid, "unknown collection: "+string(collection))
	}

	key := memKey(collection, tenantID)
	if cached, ok := s.mem.Get(key); ok {
		return cached.([]models.CachedRecord), nil
	}

	rows, err := s.db.Query(`
	SELECT collection, id, tenant_id, data, last_updated
	FROM cache_records
	WHERE collection = ? AND tenant_id = ?
	ORDER BY id
	`, collection, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read cache", err)
	}
	defer rows.Close()

	var records []models.CachedRecord
	for rows.Next() {
		var rec models.CachedRecord
		var data []byte
		if err := rows.Scan(&rec.Collection, &rec.ID, &rec.TenantID, &data, &rec.LastUpdated); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan cached record", err)
		}
		rec.Data = data
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate cache", err)
	}

	s.mem.Set(key, records, gocache.DefaultExpiration)
	return records, nil
}

// Delete removes a single record after verifying the stored tenant matches the
// caller's. A mismatch fails with TENANT_MISMATCH and leaves the record in
// place.
func (s *Store) Delete(collection models.Collection, id, tenantID string) error {
	if !models.IsValidCollection(collection) {
		return apperrors.New(apperrors.ErrInvalid, "unknown collection: "+string(collection))
	}

	var storedTenant string
	err := s.db.QueryRow(`
	SELECT tenant_id FROM cache_records WHERE collection = ? AND id = ?
	`, collection, id).Scan(&storedTenant)
	if err == sql.ErrNoRows {
		return apperrors.New(apperrors.ErrNotFound,
			fmt.Sprintf("no cached %s record with id %s", collection, id))
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to read cached record", err)
	}
	if storedTenant != tenantID {
		return apperrors.New(apperrors.ErrTenantMismatch,
			fmt.Sprintf("record %s/%s belongs to another tenant", collection, id))
	}

	if _, err := s.db.Exec(`
	DELETE FROM cache_records WHERE collection = ? AND id = ? AND tenant_id = ?
	`, collection, id, tenantID); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to delete cached record", err)
	}

	s.mem.Delete(memKey(collection, tenantID))
	return nil
}

// ClearTenant bulk-deletes every cached record belonging to the tenant, across
// all collections. Used on logout and tenant switch. Records of other tenants
// are untouched.
func (s *Store) ClearTenant(tenantID string) error {
	if _, err := s.db.Exec("DELETE FROM cache_records WHERE tenant_id = ?", tenantID); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to clear tenant cache", err)
	}
	for _, collection := range models.Collections {
		s.mem.Delete(memKey(collection, tenantID))
	}
	return nil
}

// ClearAll deletes every cached record of every tenant. Idempotent: clearing
// an already-empty store succeeds.
func (s *Store) ClearAll() error {
	if _, err := s.db.Exec("DELETE FROM cache_records"); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to clear cache", err)
	}
	s.mem.Flush()
	return nil
}

// Count returns the number of cached records for a tenant, used by the status
// endpoint.
func (s *Store) Count(tenantID string) (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM cache_records WHERE tenant_id = ?", tenantID).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to count cached records", err)
	}
	return n, nil
}
