package models

import (
	"encoding/json"
	"time"
)

// Collection identifies a cached entity type. Each collection is a logical
// table keyed by entity id with a tenant index.
type Collection string

const (
	CollectionMembers    Collection = "members"
	CollectionEvents     Collection = "events"
	CollectionGroups     Collection = "groups"
	CollectionAttendance Collection = "attendance"
	CollectionPathways   Collection = "pathways"
)

// Collections lists every known cached entity type.
var Collections = []Collection{
	CollectionMembers,
	CollectionEvents,
	CollectionGroups,
	CollectionAttendance,
	CollectionPathways,
}

// IsValidCollection reports whether c is a known collection.
func IsValidCollection(c Collection) bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

// CachedRecord is a locally mirrored entity. It always carries the tenant it
// was fetched under; every read is filtered by the caller's tenant so a record
// belonging to another tenant is never returned even though storage is shared.
type CachedRecord struct {
	Collection  Collection      `db:"collection" json:"collection"`
	ID          string          `db:"id" json:"id"`
	TenantID    string          `db:"tenant_id" json:"tenant_id"`
	Data        json.RawMessage `db:"data" json:"data"`
	LastUpdated int64           `db:"last_updated" json:"last_updated"`
}

// TableName returns the table name for CachedRecord.
func (CachedRecord) TableName() string {
	return "cache_records"
}

// LastUpdatedTime returns LastUpdated as time.Time.
func (r *CachedRecord) LastUpdatedTime() time.Time {
	return time.Unix(r.LastUpdated, 0)
}
