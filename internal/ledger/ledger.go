// Package ledger defines the durable mapping between internal ids, Scopus ids
// and WordPress post/comment ids.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no entry matches a lookup.
var ErrNotFound = errors.New("ledger entry not found")

// ErrInternalIDTaken is returned when an Upsert would give a second
// publication an internal id already held by another one.
var ErrInternalIDTaken = errors.New("internal id already recorded for another publication")

// ReferenceEntry records a publication that has been posted. An entry exists
// if and only if the post exists on the site.
type ReferenceEntry struct {
	InternalID            int64     `json:"internal_id"`
	PostID                int64     `json:"post_id"`
	ExternalID            string    `json:"external_id"`
	CommentsLastRefreshed time.Time `json:"comments_last_refreshed"`
}

// Validate checks the fields required before an entry can be stored.
func (e ReferenceEntry) Validate() error {
	if e.ExternalID == "" {
		return fmt.Errorf("reference entry: empty external id")
	}
	if e.InternalID <= 0 {
		return fmt.Errorf("reference entry %s: invalid internal id %d", e.ExternalID, e.InternalID)
	}
	return nil
}

// CommentEntry records a citation comment posted under a publication's post.
// At most one entry exists per (PostID, CitingExternalID). CommentID is zero
// when the site rejected the comment as a duplicate of one already shown.
type CommentEntry struct {
	InternalID       int64  `json:"internal_id"` // of the citing publication
	PostID           int64  `json:"post_id"`     // parent post
	CommentID        int64  `json:"comment_id"`
	CitingExternalID string `json:"citing_external_id"`
}

// Validate checks the fields required before an entry can be stored.
func (e CommentEntry) Validate() error {
	if e.CitingExternalID == "" {
		return fmt.Errorf("comment entry: empty citing external id")
	}
	if e.PostID <= 0 {
		return fmt.Errorf("comment entry %s: invalid post id %d", e.CitingExternalID, e.PostID)
	}
	return nil
}

// References persists ReferenceEntry rows. Upsert inserts or updates
// atomically, keyed by ExternalID, and never moves CommentsLastRefreshed
// backwards.
type References interface {
	GetAll(ctx context.Context) ([]ReferenceEntry, error)
	GetByExternalID(ctx context.Context, externalID string) (*ReferenceEntry, error)
	Upsert(ctx context.Context, e ReferenceEntry) error
	Truncate(ctx context.Context) error
}

// Comments persists CommentEntry rows. Upsert inserts or updates atomically,
// keyed by (PostID, CitingExternalID).
type Comments interface {
	GetAll(ctx context.Context) ([]CommentEntry, error)
	GetByPostID(ctx context.Context, postID int64) ([]CommentEntry, error)
	Upsert(ctx context.Context, e CommentEntry) error
	Truncate(ctx context.Context) error
}

// ExternalIDs returns the set of external ids present in the entries.
func ExternalIDs(entries []ReferenceEntry) map[string]bool {
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		set[e.ExternalID] = true
	}
	return set
}

// LaterOf returns the later of two timestamps.
func LaterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
