// Package storage persists the reference ledger and the id allocator state in
// a SQLite database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	db *sql.DB
}

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		-- Posted publications
		CREATE TABLE IF NOT EXISTS publication_refs (
			internal_id INTEGER NOT NULL UNIQUE,
			post_id INTEGER NOT NULL,
			external_id TEXT PRIMARY KEY,
			comments_last_refreshed INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_publication_refs_post ON publication_refs(post_id);

		-- Citation comments under posted publications
		CREATE TABLE IF NOT EXISTS comment_refs (
			internal_id INTEGER NOT NULL,
			post_id INTEGER NOT NULL,
			comment_id INTEGER NOT NULL,
			citing_external_id TEXT NOT NULL,
			PRIMARY KEY (post_id, citing_external_id)
		);

		-- Identifier allocator
		CREATE TABLE IF NOT EXISTS id_counter (
			name TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS id_used (
			id INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS id_unused (
			id INTEGER PRIMARY KEY
		);
	`

	_, err := db.Exec(schema)
	return err
}

// Stats summarizes row counts for display.
type Stats struct {
	References int `json:"references"`
	Comments   int `json:"comments"`
	UsedIDs    int `json:"used_ids"`
	UnusedIDs  int `json:"unused_ids"`
}

// Stats returns row counts for every table.
func (d *DB) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	counts := []struct {
		table string
		dest  *int
	}{
		{"publication_refs", &s.References},
		{"comment_refs", &s.Comments},
		{"id_used", &s.UsedIDs},
		{"id_unused", &s.UnusedIDs},
	}
	for _, c := range counts {
		// Table names come from the fixed list above.
		if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", c.table, err)
		}
	}
	return &s, nil
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// unixNanos converts a timestamp for storage; the zero time is stored as 0.
func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// fromUnixNanos is the inverse of unixNanos.
func fromUnixNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
