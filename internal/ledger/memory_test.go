package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryReferences_UpsertIsUnique(t *testing.T) {
	ctx := context.Background()
	refs := NewMemory().References()

	if err := refs.Upsert(ctx, ReferenceEntry{InternalID: 1, PostID: 10, ExternalID: "85000000001"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := refs.Upsert(ctx, ReferenceEntry{InternalID: 1, PostID: 11, ExternalID: "85000000001"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	all, _ := refs.GetAll(ctx)
	if len(all) != 1 {
		t.Fatalf("GetAll() returned %d rows, want 1", len(all))
	}
	if all[0].PostID != 11 {
		t.Errorf("PostID = %d, want 11 (updated)", all[0].PostID)
	}
}

func TestMemoryReferences_InternalIDUnique(t *testing.T) {
	ctx := context.Background()
	refs := NewMemory().References()

	if err := refs.Upsert(ctx, ReferenceEntry{InternalID: 1, PostID: 10, ExternalID: "A"}); err != nil {
		t.Fatalf("Upsert(A) error = %v", err)
	}
	if err := refs.Upsert(ctx, ReferenceEntry{InternalID: 1, PostID: 11, ExternalID: "B"}); !errors.Is(err, ErrInternalIDTaken) {
		t.Fatalf("Upsert(B) error = %v, want ErrInternalIDTaken", err)
	}

	// Moving A to a new id frees the old one.
	if err := refs.Upsert(ctx, ReferenceEntry{InternalID: 2, PostID: 10, ExternalID: "A"}); err != nil {
		t.Fatalf("Upsert(A, 2) error = %v", err)
	}
	if err := refs.Upsert(ctx, ReferenceEntry{InternalID: 1, PostID: 11, ExternalID: "B"}); err != nil {
		t.Fatalf("Upsert(B, 1) error = %v", err)
	}

	all, _ := refs.GetAll(ctx)
	if len(all) != 2 || all[0].ExternalID != "B" || all[1].ExternalID != "A" {
		t.Errorf("GetAll() = %+v", all)
	}

	if err := refs.Truncate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := refs.Upsert(ctx, ReferenceEntry{InternalID: 2, PostID: 12, ExternalID: "C"}); err != nil {
		t.Errorf("Upsert() after Truncate error = %v", err)
	}
}

func TestMemoryReferences_RefreshTimestampMonotonic(t *testing.T) {
	ctx := context.Background()
	refs := NewMemory().References()
	later := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	_ = refs.Upsert(ctx, ReferenceEntry{InternalID: 1, PostID: 10, ExternalID: "1", CommentsLastRefreshed: later})
	_ = refs.Upsert(ctx, ReferenceEntry{InternalID: 1, PostID: 10, ExternalID: "1", CommentsLastRefreshed: earlier})

	got, err := refs.GetByExternalID(ctx, "1")
	if err != nil {
		t.Fatalf("GetByExternalID() error = %v", err)
	}
	if !got.CommentsLastRefreshed.Equal(later) {
		t.Errorf("CommentsLastRefreshed = %v, want %v", got.CommentsLastRefreshed, later)
	}
}

func TestMemoryReferences_NotFoundAndTruncate(t *testing.T) {
	ctx := context.Background()
	refs := NewMemory().References()

	if _, err := refs.GetByExternalID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByExternalID(missing) error = %v, want ErrNotFound", err)
	}

	_ = refs.Upsert(ctx, ReferenceEntry{InternalID: 1, PostID: 10, ExternalID: "1"})
	if err := refs.Truncate(ctx); err != nil {
		t.Fatalf("Truncate() error = %v", err)
	}
	all, _ := refs.GetAll(ctx)
	if len(all) != 0 {
		t.Errorf("GetAll() after Truncate = %d rows, want 0", len(all))
	}
}

func TestMemoryReferences_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	refs := NewMemory().References()

	if err := refs.Upsert(ctx, ReferenceEntry{InternalID: 1}); err == nil {
		t.Error("Upsert(empty external id) error = nil, want error")
	}
	if err := refs.Upsert(ctx, ReferenceEntry{ExternalID: "1"}); err == nil {
		t.Error("Upsert(zero internal id) error = nil, want error")
	}
}

func TestMemoryComments_UniquePerPostAndCitation(t *testing.T) {
	ctx := context.Background()
	comments := NewMemory().Comments()

	_ = comments.Upsert(ctx, CommentEntry{InternalID: 5, PostID: 10, CommentID: 100, CitingExternalID: "C1"})
	_ = comments.Upsert(ctx, CommentEntry{InternalID: 5, PostID: 10, CommentID: 101, CitingExternalID: "C1"})
	_ = comments.Upsert(ctx, CommentEntry{InternalID: 6, PostID: 20, CommentID: 102, CitingExternalID: "C1"})

	all, _ := comments.GetAll(ctx)
	if len(all) != 2 {
		t.Fatalf("GetAll() returned %d rows, want 2", len(all))
	}

	byPost, _ := comments.GetByPostID(ctx, 10)
	if len(byPost) != 1 || byPost[0].CommentID != 101 {
		t.Errorf("GetByPostID(10) = %+v, want one row with comment 101", byPost)
	}
}
