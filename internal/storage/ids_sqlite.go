package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matsen/citesync/internal/idalloc"
)

// counterName is the id_counter row used for publication ids.
const counterName = "publication"

// IDs returns the allocator store backed by this database.
func (d *DB) IDs() idalloc.Store { return sqliteIDs{d.db} }

type sqliteIDs struct{ db *sql.DB }

func (s sqliteIDs) LoadCounter(ctx context.Context) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM id_counter WHERE name = ?`, counterName).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading id counter: %w", err)
	}
	return value, nil
}

// CommitAllocation advances the counter and records the id as used in one
// transaction.
func (s sqliteIDs) CommitAllocation(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO id_counter (name, value) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET value = excluded.value
		`, counterName, id); err != nil {
			return fmt.Errorf("updating id counter: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO id_used (id) VALUES (?)`, id); err != nil {
			return fmt.Errorf("marking id %d used: %w", id, err)
		}
		return nil
	})
}

// CommitRelease moves the id from id_used to id_unused in one transaction.
func (s sqliteIDs) CommitRelease(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM id_used WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("unmarking id %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return idalloc.ErrNotAllocated
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO id_unused (id) VALUES (?)`, id); err != nil {
			return fmt.Errorf("recording unused id %d: %w", id, err)
		}
		return nil
	})
}

func (s sqliteIDs) Used(ctx context.Context) ([]int64, error) {
	return s.list(ctx, `SELECT id FROM id_used ORDER BY id`)
}

func (s sqliteIDs) Unused(ctx context.Context) ([]int64, error) {
	return s.list(ctx, `SELECT id FROM id_unused ORDER BY id`)
}

func (s sqliteIDs) list(ctx context.Context, query string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s sqliteIDs) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
