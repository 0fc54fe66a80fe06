// Package storage opens the shared SQLite database handle. Schema migration
// lives with the stores that own the tables; this package only knows how to
// open the file with the right pragmas.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open opens (creating if necessary) the SQLite database at path with WAL
// journaling and foreign keys enabled. The caller owns the handle.
func Open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// modernc.org/sqlite allows one writer at a time; a single pooled
	// connection keeps concurrent transactions from tripping SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return db, nil
}
