package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liyuan/shopsync/internal/models"
)

// Store is the durable local store. All reads fail closed: if the
// underlying storage is unavailable the caller sees absent/empty, never a
// panic or an error it must route around. Internal failures are logged.
type Store struct {
	db     *sql.DB
	schema Schema
	log    *logrus.Logger

	// now is injectable for TTL tests.
	now func() time.Time
}

// Open opens (or creates) the store under dataDir and migrates it to the
// declared schema version.
func Open(dataDir string, schema Schema, log *logrus.Logger) (*Store, error) {
	db, err := openDB(dataDir)
	if err != nil {
		return nil, err
	}
	if err := migrate(db, schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, schema: schema, log: log, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for components that share the store's
// database file, such as the pending action ledger.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Get returns the record stored under key in collection, or absent.
func (s *Store) Get(collection, key string) (models.Record, bool) {
	if _, ok := s.schema.Collection(collection); !ok {
		return models.Record{}, false
	}

	var rec models.Record
	var data string
	query := fmt.Sprintf("SELECT key, data, updated_at FROM %s WHERE key = ?", tableName(collection))
	err := s.db.QueryRow(query, key).Scan(&rec.Key, &data, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Record{}, false
	}
	if err != nil {
		s.log.WithError(err).WithField("collection", collection).Warn("store read failed")
		return models.Record{}, false
	}
	rec.Data = json.RawMessage(data)
	return rec, true
}

// GetAll returns every record in collection, ordered by key.
func (s *Store) GetAll(collection string) []models.Record {
	if _, ok := s.schema.Collection(collection); !ok {
		return nil
	}
	query := fmt.Sprintf("SELECT key, data, updated_at FROM %s ORDER BY key", tableName(collection))
	return s.queryRecords(collection, query)
}

// Put upserts a record. Writes are idempotent: a second put of the same
// key replaces the previous record. Declared index fields are extracted
// from the record payload at write time.
func (s *Store) Put(collection string, rec models.Record) error {
	col, ok := s.schema.Collection(collection)
	if !ok {
		return fmt.Errorf("unknown collection %q", collection)
	}

	cols := []string{"key", "data", "updated_at"}
	args := []interface{}{rec.Key, string(rec.Data), s.now().Unix()}
	for _, idx := range col.Indexes {
		cols = append(cols, indexColumn(idx))
		args = append(args, indexValue(rec.Data, idx))
	}

	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		tableName(collection), strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	if _, err := s.db.Exec(query, args...); err != nil {
		s.log.WithError(err).WithField("collection", collection).Warn("store write failed")
		return err
	}
	return nil
}

// Delete removes the record under key. Deleting an absent key is a no-op.
func (s *Store) Delete(collection, key string) error {
	if _, ok := s.schema.Collection(collection); !ok {
		return fmt.Errorf("unknown collection %q", collection)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE key = ?", tableName(collection))
	if _, err := s.db.Exec(query, key); err != nil {
		s.log.WithError(err).WithField("collection", collection).Warn("store delete failed")
		return err
	}
	return nil
}

// Clear removes every record in collection.
func (s *Store) Clear(collection string) error {
	if _, ok := s.schema.Collection(collection); !ok {
		return fmt.Errorf("unknown collection %q", collection)
	}
	query := fmt.Sprintf("DELETE FROM %s", tableName(collection))
	if _, err := s.db.Exec(query); err != nil {
		s.log.WithError(err).WithField("collection", collection).Warn("store clear failed")
		return err
	}
	return nil
}

// SearchByIndex returns records whose indexed field contains query,
// case-insensitively. An undeclared index yields no results.
func (s *Store) SearchByIndex(collection, index, query string) []models.Record {
	col, ok := s.schema.Collection(collection)
	if !ok {
		return nil
	}
	declared := false
	for _, idx := range col.Indexes {
		if idx == index {
			declared = true
			break
		}
	}
	if !declared {
		return nil
	}

	stmt := fmt.Sprintf(
		"SELECT key, data, updated_at FROM %s WHERE instr(lower(%s), lower(?)) > 0 ORDER BY key",
		tableName(collection), indexColumn(index))
	return s.queryRecords(collection, stmt, query)
}

// Count returns the number of records in collection.
func (s *Store) Count(collection string) int {
	if _, ok := s.schema.Collection(collection); !ok {
		return 0
	}
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName(collection))
	if err := s.db.QueryRow(query).Scan(&n); err != nil {
		s.log.WithError(err).WithField("collection", collection).Warn("store count failed")
		return 0
	}
	return n
}

// WriteKind is the type of a single write in a logical transaction.
type WriteKind string

const (
	WritePut    WriteKind = "put"
	WriteDelete WriteKind = "delete"
	WriteClear  WriteKind = "clear"
)

// WriteOp is one write of a multi-collection logical transaction.
type WriteOp struct {
	Kind       WriteKind
	Collection string
	Record     models.Record
	Key        string
}

// Apply executes a batch of writes spanning collections in one database
// transaction. A failure partway rolls back every write in the batch.
func (s *Store) Apply(ops []WriteOp) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		col, ok := s.schema.Collection(op.Collection)
		if !ok {
			return fmt.Errorf("unknown collection %q", op.Collection)
		}
		switch op.Kind {
		case WritePut:
			cols := []string{"key", "data", "updated_at"}
			args := []interface{}{op.Record.Key, string(op.Record.Data), s.now().Unix()}
			for _, idx := range col.Indexes {
				cols = append(cols, indexColumn(idx))
				args = append(args, indexValue(op.Record.Data, idx))
			}
			query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
				tableName(op.Collection), strings.Join(cols, ", "),
				strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
			if _, err := tx.Exec(query, args...); err != nil {
				return fmt.Errorf("put %s/%s: %w", op.Collection, op.Record.Key, err)
			}
		case WriteDelete:
			query := fmt.Sprintf("DELETE FROM %s WHERE key = ?", tableName(op.Collection))
			if _, err := tx.Exec(query, op.Key); err != nil {
				return fmt.Errorf("delete %s/%s: %w", op.Collection, op.Key, err)
			}
		case WriteClear:
			query := fmt.Sprintf("DELETE FROM %s", tableName(op.Collection))
			if _, err := tx.Exec(query); err != nil {
				return fmt.Errorf("clear %s: %w", op.Collection, err)
			}
		default:
			return fmt.Errorf("unknown write kind %q", op.Kind)
		}
	}

	return tx.Commit()
}

func (s *Store) queryRecords(collection, query string, args ...interface{}) []models.Record {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		s.log.WithError(err).WithField("collection", collection).Warn("store query failed")
		return nil
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var rec models.Record
		var data string
		if err := rows.Scan(&rec.Key, &data, &rec.UpdatedAt); err != nil {
			s.log.WithError(err).WithField("collection", collection).Warn("store scan failed")
			return records
		}
		rec.Data = json.RawMessage(data)
		records = append(records, rec)
	}
	return records
}

// indexValue extracts a declared index field from the record payload.
// Missing or non-scalar fields index as the empty string.
func indexValue(data json.RawMessage, field string) string {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return ""
	}
	v, ok := m[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
