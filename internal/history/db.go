// Package history persists the order number sequence and a log of print
// attempts in SQLite.
package history

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

const schemaOrderSequence = `
CREATE TABLE IF NOT EXISTS order_sequence (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    last_order_number INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`

const schemaPrintLog = `
CREATE TABLE IF NOT EXISTS print_log (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    order_number INTEGER NOT NULL,
    count INTEGER NOT NULL,
    status TEXT NOT NULL,
    error_kind TEXT,
    message TEXT,
    printed_at INTEGER NOT NULL
);
`

const schemaPrintLogIndex = `
CREATE INDEX IF NOT EXISTS idx_print_log_printed_at ON print_log (printed_at);
`

// InitDB opens or creates the SQLite file at path and ensures tables exist
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaOrderSequence,
		schemaPrintLog,
		schemaPrintLogIndex,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
