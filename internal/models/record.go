// Package models provides data model definitions for the shopsync core.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// UUID is a wrapper around string for identifier type safety.
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

// Record is an opaque entity stored under a collection name and primary key.
// Data holds the application entity as JSON; indexed fields are extracted
// from it at write time.
type Record struct {
	Key       string          `db:"key" json:"key"`
	Data      json.RawMessage `db:"data" json:"data"`
	UpdatedAt int64           `db:"updated_at" json:"updated_at"`
}

// NewRecord marshals v into a Record keyed by key.
func NewRecord(key string, v interface{}) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Record{}, err
	}
	return Record{Key: key, Data: data, UpdatedAt: time.Now().Unix()}, nil
}

// Decode unmarshals the record payload into out.
func (r Record) Decode(out interface{}) error {
	return json.Unmarshal(r.Data, out)
}

// CacheEntry is a TTL-bounded cached payload.
// An entry older than its TTL is treated as absent and evicted on read.
type CacheEntry struct {
	Key        string          `db:"key" json:"key"`
	Data       json.RawMessage `db:"data" json:"data"`
	CapturedAt int64           `db:"captured_at" json:"captured_at"`
	TTLSeconds int64           `db:"ttl_seconds" json:"ttl_seconds"`
}

// TableName returns the table name for CacheEntry.
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// Expired reports whether the entry is stale at the given instant.
func (c *CacheEntry) Expired(now time.Time) bool {
	return now.Unix()-c.CapturedAt > c.TTLSeconds
}
