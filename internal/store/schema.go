package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Collection declares one logical collection and the record fields it
// indexes for SearchByIndex.
type Collection struct {
	Name    string
	Indexes []string
}

// Schema declares the full set of collections at a given version.
// Opening a store at a higher version than previously persisted creates
// any newly declared collections and indexes without touching existing
// data; it never drops or rewrites anything.
type Schema struct {
	Version     int
	Collections []Collection
}

// DefaultSchema is the schema every shopsync client opens with.
func DefaultSchema() Schema {
	return Schema{
		Version: 2,
		Collections: []Collection{
			{Name: "products", Indexes: []string{"category", "name"}},
			{Name: "cart", Indexes: []string{"user_id"}},
			{Name: "wishlist", Indexes: []string{"user_id"}},
			{Name: "orders", Indexes: []string{"user_id", "status"}},
			{Name: "users", Indexes: []string{"email"}},
			{Name: "addresses", Indexes: []string{"user_id", "is_default"}},
			{Name: "session"},
			{Name: "meta"},
		},
	}
}

// Collection returns the declaration for name, if present.
func (s Schema) Collection(name string) (Collection, bool) {
	for _, c := range s.Collections {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}

const schemaInfoTable = `
CREATE TABLE IF NOT EXISTS schema_info (
	version INTEGER PRIMARY KEY CHECK(version > 0),
	applied_at INTEGER NOT NULL
);`

const cacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	captured_at INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL
);`

const ledgerTable = `
CREATE TABLE IF NOT EXISTS pending_actions (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	last_error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`

// migrate brings the database up to schema.Version. Collection tables and
// index columns are created with IF NOT EXISTS so applying a newer schema
// over an older file only adds what is missing.
func migrate(db *sql.DB, schema Schema) error {
	if _, err := db.Exec(schemaInfoTable); err != nil {
		return fmt.Errorf("failed to create schema_info: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_info").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current >= schema.Version {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(cacheTable); err != nil {
		return fmt.Errorf("failed to create cache table: %w", err)
	}
	if _, err := tx.Exec(ledgerTable); err != nil {
		return fmt.Errorf("failed to create ledger table: %w", err)
	}

	for _, c := range schema.Collections {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL`, tableName(c.Name))
		for _, idx := range c.Indexes {
			ddl += fmt.Sprintf(",\n\t\t\t%s TEXT NOT NULL DEFAULT ''", indexColumn(idx))
		}
		ddl += "\n\t\t);"
		if _, err := tx.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", c.Name, err)
		}

		// Older files may predate a newly declared index: add the column
		// lazily, ignoring the duplicate-column error for existing ones.
		// The columns must exist before their indexes are created, and a
		// freshly added column is backfilled from the stored documents so
		// existing rows stay searchable.
		for _, idx := range c.Indexes {
			alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT NOT NULL DEFAULT '';",
				tableName(c.Name), indexColumn(idx))
			if _, err := tx.Exec(alter); err != nil {
				continue
			}
			if err := backfillIndex(tx, c.Name, idx); err != nil {
				return fmt.Errorf("failed to backfill %s.%s: %w", c.Name, idx, err)
			}
		}

		for _, idx := range c.Indexes {
			stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS ix_%s_%s ON %s(%s);",
				c.Name, idx, tableName(c.Name), indexColumn(idx))
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("failed to index %s.%s: %w", c.Name, idx, err)
			}
		}
	}

	if _, err := tx.Exec("INSERT INTO schema_info (version, applied_at) VALUES (?, ?)",
		schema.Version, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// backfillIndex populates a freshly added index column from the stored
// documents, using the same extraction as Put.
func backfillIndex(tx *sql.Tx, collection, field string) error {
	rows, err := tx.Query(fmt.Sprintf("SELECT key, data FROM %s", tableName(collection)))
	if err != nil {
		return err
	}

	type rowValue struct {
		key   string
		value string
	}
	var values []rowValue
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			rows.Close()
			return err
		}
		values = append(values, rowValue{key, indexValue(json.RawMessage(data), field)})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	stmt := fmt.Sprintf("UPDATE %s SET %s = ? WHERE key = ?", tableName(collection), indexColumn(field))
	for _, v := range values {
		if v.value == "" {
			continue
		}
		if _, err := tx.Exec(stmt, v.value, v.key); err != nil {
			return err
		}
	}
	return nil
}

func tableName(collection string) string {
	return "c_" + collection
}

func indexColumn(field string) string {
	return "ix_" + field
}
