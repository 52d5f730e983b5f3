// Package idalloc issues internal publication identifiers.
//
// Identifiers come from a persisted monotonic counter. An allocation is
// durably committed before Allocate returns, so a crash after an external
// post can never cause the same id to be handed out again on restart.
// Released ids are kept as an audit trail and are never reissued.
package idalloc

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotAllocated is returned when releasing an id that is not in use.
var ErrNotAllocated = errors.New("id is not allocated")

// Store persists allocator state. CommitAllocation must atomically set the
// counter to id and mark id as used; CommitRelease must atomically move id
// from used to unused and return ErrNotAllocated if it was not used.
type Store interface {
	LoadCounter(ctx context.Context) (int64, error)
	CommitAllocation(ctx context.Context, id int64) error
	CommitRelease(ctx context.Context, id int64) error
	Used(ctx context.Context) ([]int64, error)
	Unused(ctx context.Context) ([]int64, error)
}

// Allocator hands out ids. It is safe for concurrent use, although a single
// process is expected to be the only writer to the underlying store.
type Allocator struct {
	mu      sync.Mutex
	store   Store
	counter int64
}

// New loads the counter from the store.
func New(ctx context.Context, store Store) (*Allocator, error) {
	counter, err := store.LoadCounter(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading id counter: %w", err)
	}
	return &Allocator{store: store, counter: counter}, nil
}

// Allocate returns the next id after it has been committed to the store.
func (a *Allocator) Allocate(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := a.counter + 1
	if err := a.store.CommitAllocation(ctx, next); err != nil {
		return 0, fmt.Errorf("committing id %d: %w", next, err)
	}
	a.counter = next
	return next, nil
}

// Release moves an id from the used set to the unused set.
func (a *Allocator) Release(ctx context.Context, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.store.CommitRelease(ctx, id); err != nil {
		return fmt.Errorf("releasing id %d: %w", id, err)
	}
	return nil
}

// Current returns the last allocated id (0 if none).
func (a *Allocator) Current() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counter
}

// Used returns the ids currently in use, ascending.
func (a *Allocator) Used(ctx context.Context) ([]int64, error) {
	return a.store.Used(ctx)
}

// Unused returns the released ids, ascending.
func (a *Allocator) Unused(ctx context.Context) ([]int64, error) {
	return a.store.Unused(ctx)
}
