package cache

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathfinderhq/syncagent/internal/db"
	apperrors "github.com/pathfinderhq/syncagent/internal/errors"
	"github.com/pathfinderhq/syncagent/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	migrator := db.NewMigrator(database.DB)
	require.NoError(t, migrator.Initialize())
	require.NoError(t, migrator.Up())
	return NewStore(database.DB)
}

func record(id, name string) models.CachedRecord {
	return models.CachedRecord{
		ID:   id,
		Data: json.RawMessage(`{"name":"` + name + `"}`),
	}
}

// TestPutAndGet verifies the round-trip: stored records come back with the
// tenant and freshness stamped by the store.
func TestPutAndGet(t *testing.T) {
	store := newTestStore(t)

	err := store.Put(models.CollectionMembers, "tenant-a", []models.CachedRecord{
		record("m1", "Alex"),
		record("m2", "Sam"),
	})
	require.NoError(t, err)

	records, err := store.Get(models.CollectionMembers, "tenant-a")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "m1", records[0].ID)
	assert.Equal(t, "tenant-a", records[0].TenantID)
	assert.NotZero(t, records[0].LastUpdated)
	assert.JSONEq(t, `{"name":"Alex"}`, string(records[0].Data))
}

// TestPutOverwrites verifies that re-putting an existing id replaces its data.
func TestPutOverwrites(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put(models.CollectionMembers, "tenant-a",
		[]models.CachedRecord{record("m1", "Alex")}))
	require.NoError(t, store.Put(models.CollectionMembers, "tenant-a",
		[]models.CachedRecord{record("m1", "Alexandra")}))

	records, err := store.Get(models.CollectionMembers, "tenant-a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.JSONEq(t, `{"name":"Alexandra"}`, string(records[0].Data))
}

// TestPutValidation covers rejected writes: unknown collection, missing
// tenant, record without an id.
func TestPutValidation(t *testing.T) {
	store := newTestStore(t)

	err := store.Put("badges", "tenant-a", []models.CachedRecord{record("b1", "x")})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))

	err = store.Put(models.CollectionMembers, "", []models.CachedRecord{record("m1", "x")})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	err = store.Put(models.CollectionMembers, "tenant-a", []models.CachedRecord{record("", "x")})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

// TestGetFiltersByTenant verifies that a tenant never sees records stored
// under another tenant, even in the same collection.
func TestGetFiltersByTenant(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put(models.CollectionEvents, "tenant-a",
		[]models.CachedRecord{record("e1", "Campout")}))
	require.NoError(t, store.Put(models.CollectionEvents, "tenant-b",
		[]models.CachedRecord{record("e2", "Hike")}))

	records, err := store.Get(models.CollectionEvents, "tenant-a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "e1", records[0].ID)

	records, err = store.Get(models.CollectionEvents, "tenant-c")
	require.NoError(t, err)
	assert.Empty(t, records)
}

// TestDeleteGuardsTenant verifies that deleting another tenant's record fails
// with TENANT_MISMATCH and leaves the record in place.
func TestDeleteGuardsTenant(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put(models.CollectionMembers, "tenant-a",
		[]models.CachedRecord{record("m1", "Alex")}))

	err := store.Delete(models.CollectionMembers, "m1", "tenant-b")
	assert.True(t, apperrors.Is(err, apperrors.ErrTenantMismatch))

	records, err := store.Get(models.CollectionMembers, "tenant-a")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	require.NoError(t, store.Delete(models.CollectionMembers, "m1", "tenant-a"))

	records, err = store.Get(models.CollectionMembers, "tenant-a")
	require.NoError(t, err)
	assert.Empty(t, records)
}

// TestDeleteMissingRecord verifies that deleting an unknown id reports
// NOT_FOUND.
func TestDeleteMissingRecord(t *testing.T) {
	store := newTestStore(t)

	err := store.Delete(models.CollectionMembers, "missing", "tenant-a")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

// TestClearTenantIsolation verifies that clearing one tenant leaves other
// tenants' records intact across all collections.
func TestClearTenantIsolation(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put(models.CollectionMembers, "tenant-a",
		[]models.CachedRecord{record("m1", "Alex")}))
	require.NoError(t, store.Put(models.CollectionEvents, "tenant-a",
		[]models.CachedRecord{record("e1", "Campout")}))
	require.NoError(t, store.Put(models.CollectionMembers, "tenant-b",
		[]models.CachedRecord{record("m2", "Sam")}))

	require.NoError(t, store.ClearTenant("tenant-a"))

	count, err := store.Count("tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = store.Count("tenant-b")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestClearAllIsIdempotent verifies that clearing everything twice succeeds
// and empties every tenant.
func TestClearAllIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put(models.CollectionMembers, "tenant-a",
		[]models.CachedRecord{record("m1", "Alex")}))

	require.NoError(t, store.ClearAll())
	require.NoError(t, store.ClearAll())

	count, err := store.Count("tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// TestPutReassigningTenantInvalidatesOldOwner verifies that overwriting a
// record under a new tenant evicts the previous owner's warmed memory entry:
// the old tenant must not keep reading a record it no longer owns.
func TestPutReassigningTenantInvalidatesOldOwner(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put(models.CollectionMembers, "tenant-a",
		[]models.CachedRecord{record("m1", "Alex")}))

	// Warm tenant A's memory entry.
	records, err := store.Get(models.CollectionMembers, "tenant-a")
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, store.Put(models.CollectionMembers, "tenant-b",
		[]models.CachedRecord{record("m1", "Alex")}))

	records, err = store.Get(models.CollectionMembers, "tenant-a")
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = store.Get(models.CollectionMembers, "tenant-b")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "tenant-b", records[0].TenantID)
}

// TestMemoryLayerInvalidatedOnWrite verifies that a read served from the
// in-memory layer reflects a subsequent write.
func TestMemoryLayerInvalidatedOnWrite(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put(models.CollectionMembers, "tenant-a",
		[]models.CachedRecord{record("m1", "Alex")}))

	// Prime the memory layer.
	_, err := store.Get(models.CollectionMembers, "tenant-a")
	require.NoError(t, err)

	require.NoError(t, store.Put(models.CollectionMembers, "tenant-a",
		[]models.CachedRecord{record("m2", "Sam")}))

	records, err := store.Get(models.CollectionMembers, "tenant-a")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
