package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// SetCache stores data under key with a TTL. A zero or negative TTL makes
// the entry immediately stale.
func (s *Store) SetCache(key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.SetCacheRaw(key, data, ttl)
}

// SetCacheRaw stores an already-encoded payload under key with a TTL.
func (s *Store) SetCacheRaw(key string, data json.RawMessage, ttl time.Duration) error {
	query := `INSERT OR REPLACE INTO cache_entries (key, data, captured_at, ttl_seconds)
			  VALUES (?, ?, ?, ?)`
	if _, err := s.db.Exec(query, key, string(data), s.now().Unix(), int64(ttl.Seconds())); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache write failed")
		return err
	}
	return nil
}

// GetCache loads a cached payload into out. Expired entries are evicted on
// read and reported absent; a read never returns stale data.
func (s *Store) GetCache(key string, out interface{}) bool {
	raw, ok := s.GetCacheRaw(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache decode failed")
		return false
	}
	return true
}

// GetCacheRaw returns the cached payload bytes for key, or absent.
func (s *Store) GetCacheRaw(key string) (json.RawMessage, bool) {
	var data string
	var capturedAt, ttlSeconds int64
	query := "SELECT data, captured_at, ttl_seconds FROM cache_entries WHERE key = ?"
	err := s.db.QueryRow(query, key).Scan(&data, &capturedAt, &ttlSeconds)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache read failed")
		return nil, false
	}

	if s.now().Unix()-capturedAt > ttlSeconds {
		if _, err := s.db.Exec("DELETE FROM cache_entries WHERE key = ?", key); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("cache eviction failed")
		}
		return nil, false
	}
	return json.RawMessage(data), true
}

// PurgeExpiredCache removes every stale cache entry in one pass. The lazy
// per-read eviction keeps reads correct; this keeps the file small.
func (s *Store) PurgeExpiredCache() int {
	res, err := s.db.Exec("DELETE FROM cache_entries WHERE ? - captured_at > ttl_seconds", s.now().Unix())
	if err != nil {
		s.log.WithError(err).Warn("cache purge failed")
		return 0
	}
	n, _ := res.RowsAffected()
	return int(n)
}
