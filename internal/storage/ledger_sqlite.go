package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matsen/citesync/internal/ledger"
)

// References returns the publication ledger backed by this database.
func (d *DB) References() ledger.References { return sqliteRefs{d.db} }

// Comments returns the comment ledger backed by this database.
func (d *DB) Comments() ledger.Comments { return sqliteComments{d.db} }

type sqliteRefs struct{ db *sql.DB }

const selectRefFields = `internal_id, post_id, external_id, comments_last_refreshed`

func scanRef(s scanner) (*ledger.ReferenceEntry, error) {
	var e ledger.ReferenceEntry
	var refreshed int64
	if err := s.Scan(&e.InternalID, &e.PostID, &e.ExternalID, &refreshed); err != nil {
		return nil, err
	}
	e.CommentsLastRefreshed = fromUnixNanos(refreshed)
	return &e, nil
}

func (r sqliteRefs) GetAll(ctx context.Context) ([]ledger.ReferenceEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectRefFields+` FROM publication_refs ORDER BY internal_id`)
	if err != nil {
		return nil, fmt.Errorf("listing references: %w", err)
	}
	defer rows.Close()

	var out []ledger.ReferenceEntry
	for rows.Next() {
		e, err := scanRef(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reference: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r sqliteRefs) GetByExternalID(ctx context.Context, externalID string) (*ledger.ReferenceEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectRefFields+` FROM publication_refs WHERE external_id = ?`, externalID)
	e, err := scanRef(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting reference %s: %w", externalID, err)
	}
	return e, nil
}

func (r sqliteRefs) Upsert(ctx context.Context, e ledger.ReferenceEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO publication_refs (internal_id, post_id, external_id, comments_last_refreshed)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			internal_id = excluded.internal_id,
			post_id = excluded.post_id,
			comments_last_refreshed = MAX(comments_last_refreshed, excluded.comments_last_refreshed)
	`, e.InternalID, e.PostID, e.ExternalID, unixNanos(e.CommentsLastRefreshed))
	if err != nil {
		return fmt.Errorf("upserting reference %s: %w", e.ExternalID, err)
	}
	return nil
}

func (r sqliteRefs) Truncate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM publication_refs"); err != nil {
		return fmt.Errorf("truncating references: %w", err)
	}
	return nil
}

type sqliteComments struct{ db *sql.DB }

const selectCommentFields = `internal_id, post_id, comment_id, citing_external_id`

func (c sqliteComments) query(ctx context.Context, query string, args ...interface{}) ([]ledger.CommentEntry, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	defer rows.Close()

	var out []ledger.CommentEntry
	for rows.Next() {
		var e ledger.CommentEntry
		if err := rows.Scan(&e.InternalID, &e.PostID, &e.CommentID, &e.CitingExternalID); err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (c sqliteComments) GetAll(ctx context.Context) ([]ledger.CommentEntry, error) {
	return c.query(ctx, `SELECT `+selectCommentFields+` FROM comment_refs ORDER BY post_id, citing_external_id`)
}

func (c sqliteComments) GetByPostID(ctx context.Context, postID int64) ([]ledger.CommentEntry, error) {
	return c.query(ctx, `SELECT `+selectCommentFields+` FROM comment_refs WHERE post_id = ? ORDER BY citing_external_id`, postID)
}

func (c sqliteComments) Upsert(ctx context.Context, e ledger.CommentEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO comment_refs (internal_id, post_id, comment_id, citing_external_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(post_id, citing_external_id) DO UPDATE SET
			internal_id = excluded.internal_id,
			comment_id = excluded.comment_id
	`, e.InternalID, e.PostID, e.CommentID, e.CitingExternalID)
	if err != nil {
		return fmt.Errorf("upserting comment %d/%s: %w", e.PostID, e.CitingExternalID, err)
	}
	return nil
}

func (c sqliteComments) Truncate(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM comment_refs"); err != nil {
		return fmt.Errorf("truncating comments: %w", err)
	}
	return nil
}
