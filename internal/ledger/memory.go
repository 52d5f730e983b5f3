package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type commentKey struct {
	postID   int64
	citingID string
}

// Memory holds both ledgers in process memory. Uniqueness is enforced by
// keyed maps, so a repeated Upsert replaces the existing row. An internal id
// can belong to only one publication.
type Memory struct {
	mu         sync.Mutex
	refs       map[string]ReferenceEntry
	byInternal map[int64]string
	comments   map[commentKey]CommentEntry
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		refs:       make(map[string]ReferenceEntry),
		byInternal: make(map[int64]string),
		comments:   make(map[commentKey]CommentEntry),
	}
}

// References returns the publication ledger view.
func (m *Memory) References() References { return memoryRefs{m} }

// Comments returns the comment ledger view.
func (m *Memory) Comments() Comments { return memoryComments{m} }

type memoryRefs struct{ m *Memory }

func (r memoryRefs) GetAll(ctx context.Context) ([]ReferenceEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]ReferenceEntry, 0, len(r.m.refs))
	for _, e := range r.m.refs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InternalID < out[j].InternalID })
	return out, nil
}

func (r memoryRefs) GetByExternalID(ctx context.Context, externalID string) (*ReferenceEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.refs[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (r memoryRefs) Upsert(ctx context.Context, e ReferenceEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if owner, ok := r.m.byInternal[e.InternalID]; ok && owner != e.ExternalID {
		return fmt.Errorf("%w: %d belongs to %s, not %s", ErrInternalIDTaken, e.InternalID, owner, e.ExternalID)
	}
	if prev, ok := r.m.refs[e.ExternalID]; ok {
		e.CommentsLastRefreshed = LaterOf(prev.CommentsLastRefreshed, e.CommentsLastRefreshed)
		delete(r.m.byInternal, prev.InternalID)
	}
	r.m.refs[e.ExternalID] = e
	r.m.byInternal[e.InternalID] = e.ExternalID
	return nil
}

func (r memoryRefs) Truncate(ctx context.Context) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.refs = make(map[string]ReferenceEntry)
	r.m.byInternal = make(map[int64]string)
	return nil
}

type memoryComments struct{ m *Memory }

func (c memoryComments) GetAll(ctx context.Context) ([]CommentEntry, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	out := make([]CommentEntry, 0, len(c.m.comments))
	for _, e := range c.m.comments {
		out = append(out, e)
	}
	sortComments(out)
	return out, nil
}

func (c memoryComments) GetByPostID(ctx context.Context, postID int64) ([]CommentEntry, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	var out []CommentEntry
	for k, e := range c.m.comments {
		if k.postID == postID {
			out = append(out, e)
		}
	}
	sortComments(out)
	return out, nil
}

func (c memoryComments) Upsert(ctx context.Context, e CommentEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.m.comments[commentKey{e.PostID, e.CitingExternalID}] = e
	return nil
}

func (c memoryComments) Truncate(ctx context.Context) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.m.comments = make(map[commentKey]CommentEntry)
	return nil
}

func sortComments(entries []CommentEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].PostID != entries[j].PostID {
			return entries[i].PostID < entries[j].PostID
		}
		return entries[i].CitingExternalID < entries[j].CitingExternalID
	})
}
