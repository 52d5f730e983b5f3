// Package cms defines what the reconciler needs from a content-management
// system and the error taxonomy publishers report through.
package cms

import (
	"context"
	"errors"
	"fmt"

	"github.com/matsen/citesync/internal/publication"
)

// Errors returned by publishers. Implementations wrap one of these so the
// reconciler can decide between skipping, retrying and aborting.
var (
	// ErrDuplicate means the object already exists on the remote side.
	ErrDuplicate = errors.New("duplicate content")

	// ErrUnauthorized means the credentials were rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound means the target object does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTransient means the request may succeed if retried later.
	ErrTransient = errors.New("transient failure")

	// ErrRejected covers every other client error (bad input, bad route).
	ErrRejected = errors.New("request rejected")
)

// Publisher creates posts and comments.
type Publisher interface {
	CreatePost(ctx context.Context, pub *publication.Publication, tags []string) (postID int64, err error)
	CreateComment(ctx context.Context, postID int64, citing *publication.Publication) (commentID int64, err error)
}

// Deleter removes posts. The CLI uses it to clean up posts the ledger does
// not record.
type Deleter interface {
	DeletePost(ctx context.Context, postID int64) error
}

// Error carries the HTTP status and remote error code alongside one of the
// sentinel kinds above.
type Error struct {
	Kind       error
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%v (status %d, code %s): %s", e.Kind, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%v (status %d): %s", e.Kind, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

// IsDuplicate reports whether err is a duplicate-content error.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }

// IsUnauthorized reports whether err is a credentials error.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsNotFound reports whether err is a missing-object error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }
