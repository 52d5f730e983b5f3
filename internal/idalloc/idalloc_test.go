package idalloc

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// failingStore fails CommitAllocation a fixed number of times.
type failingStore struct {
	*MemoryStore
	failures int
}

func (f *failingStore) CommitAllocation(ctx context.Context, id int64) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("disk full")
	}
	return f.MemoryStore.CommitAllocation(ctx, id)
}

func TestAllocate_Monotonic(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, NewMemoryStore())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for want := int64(1); want <= 5; want++ {
		got, err := a.Allocate(ctx)
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		if got != want {
			t.Errorf("Allocate() = %d, want %d", got, want)
		}
	}
	if a.Current() != 5 {
		t.Errorf("Current() = %d, want 5", a.Current())
	}
}

func TestAllocate_ResumesFromStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, _ := New(ctx, store)
	for i := 0; i < 3; i++ {
		if _, err := first.Allocate(ctx); err != nil {
			t.Fatal(err)
		}
	}

	// A second allocator over the same store continues the sequence.
	second, err := New(ctx, store)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got, err := second.Allocate(ctx)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got != 4 {
		t.Errorf("Allocate() after reload = %d, want 4", got)
	}
}

func TestAllocate_FailedCommitDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: NewMemoryStore(), failures: 1}
	a, _ := New(ctx, store)

	if _, err := a.Allocate(ctx); err == nil {
		t.Fatal("Allocate() error = nil, want commit failure")
	}
	if a.Current() != 0 {
		t.Errorf("Current() = %d after failed commit, want 0", a.Current())
	}

	got, err := a.Allocate(ctx)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got != 1 {
		t.Errorf("Allocate() = %d, want 1", got)
	}
}

func TestRelease_IsAuditTrail(t *testing.T) {
	ctx := context.Background()
	a, _ := New(ctx, NewMemoryStore())

	for i := 0; i < 3; i++ {
		if _, err := a.Allocate(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.Release(ctx, 2); err != nil {
		t.Fatalf("Release(2) error = %v", err)
	}

	used, _ := a.Used(ctx)
	unused, _ := a.Unused(ctx)
	if diff := cmp.Diff([]int64{1, 3}, used); diff != "" {
		t.Errorf("Used() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{2}, unused); diff != "" {
		t.Errorf("Unused() mismatch (-want +got):\n%s", diff)
	}

	// Released ids are not reissued.
	next, _ := a.Allocate(ctx)
	if next != 4 {
		t.Errorf("Allocate() after release = %d, want 4", next)
	}
}

func TestRelease_NotAllocated(t *testing.T) {
	ctx := context.Background()
	a, _ := New(ctx, NewMemoryStore())

	if err := a.Release(ctx, 7); !errors.Is(err, ErrNotAllocated) {
		t.Errorf("Release(7) error = %v, want ErrNotAllocated", err)
	}

	id, _ := a.Allocate(ctx)
	_ = a.Release(ctx, id)
	if err := a.Release(ctx, id); !errors.Is(err, ErrNotAllocated) {
		t.Errorf("second Release() error = %v, want ErrNotAllocated", err)
	}
}
