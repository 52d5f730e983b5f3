package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matsen/citesync/internal/cms"
	"github.com/matsen/citesync/internal/idalloc"
	"github.com/matsen/citesync/internal/ledger"
	"github.com/matsen/citesync/internal/observe"
	"github.com/matsen/citesync/internal/publication"
	"go.uber.org/zap/zaptest"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	authors    map[string][]string
	pubs       map[string]*publication.Publication
	citing     map[string][]string
	authorErrs map[string]error
	pubErrs    map[string]error
	pubCalls   map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		authors:    make(map[string][]string),
		pubs:       make(map[string]*publication.Publication),
		citing:     make(map[string][]string),
		authorErrs: make(map[string]error),
		pubErrs:    make(map[string]error),
		pubCalls:   make(map[string]int),
	}
}

func (s *fakeSource) FetchAuthorPublicationIDs(_ context.Context, authorID string) ([]string, error) {
	if err := s.authorErrs[authorID]; err != nil {
		return nil, err
	}
	return s.authors[authorID], nil
}

func (s *fakeSource) FetchPublication(_ context.Context, id string) (*publication.Publication, error) {
	s.pubCalls[id]++
	if err := s.pubErrs[id]; err != nil {
		return nil, err
	}
	p, ok := s.pubs[id]
	if !ok {
		return nil, fmt.Errorf("publication %s: not found", id)
	}
	return p.Clone(), nil
}

func (s *fakeSource) FetchCitingIDs(_ context.Context, id string) ([]string, error) {
	return s.citing[id], nil
}

// addPub registers a publication with one author carrying the affiliations.
func (s *fakeSource) addPub(id, authorID string, affiliations ...string) {
	s.pubs[id] = &publication.Publication{
		ExternalID: id,
		Title:      "Publication " + id,
		Authors: []publication.AuthorAffiliation{
			{AuthorID: authorID, AffiliationIDs: affiliations},
		},
	}
}

type createdPost struct {
	ExternalID string
	Tags       []string
}

type fakePublisher struct {
	mu          sync.Mutex
	nextID      int64
	posts       map[int64]createdPost
	comments    map[int64][]string // post id -> citing ids
	postErrs    map[string]error   // by external id
	commentErrs map[string]error   // by citing id
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		nextID:      1000,
		posts:       make(map[int64]createdPost),
		comments:    make(map[int64][]string),
		postErrs:    make(map[string]error),
		commentErrs: make(map[string]error),
	}
}

func (p *fakePublisher) CreatePost(_ context.Context, pub *publication.Publication, tags []string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.postErrs[pub.ExternalID]; err != nil {
		return 0, err
	}
	p.nextID++
	p.posts[p.nextID] = createdPost{ExternalID: pub.ExternalID, Tags: tags}
	return p.nextID, nil
}

func (p *fakePublisher) CreateComment(_ context.Context, postID int64, citing *publication.Publication) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.commentErrs[citing.ExternalID]; err != nil {
		return 0, err
	}
	p.nextID++
	p.comments[postID] = append(p.comments[postID], citing.ExternalID)
	return p.nextID, nil
}

func (p *fakePublisher) postCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.posts)
}

// flakyRefs fails the first failures Upserts, or every Upsert when
// failures is negative.
type flakyRefs struct {
	ledger.References
	failures int
	attempts int
}

func (f *flakyRefs) Upsert(ctx context.Context, e ledger.ReferenceEntry) error {
	f.attempts++
	if f.failures < 0 || f.attempts <= f.failures {
		return errors.New("database is locked")
	}
	return f.References.Upsert(ctx, e)
}

type harness struct {
	src      *fakeSource
	pub      *fakePublisher
	ledger   *ledger.Memory
	idStore  *idalloc.MemoryStore
	registry *observe.Registry
	deps     Deps
	opts     Options
}

// newHarness builds an engine around one observation: author A1 with allow
// list {100}, deny list {200} and tags [x, y].
func newHarness(t *testing.T) *harness {
	t.Helper()

	reg, err := observe.NewRegistry([]*observe.Observation{
		observe.NewObservation(publication.Author{First: "Ada", Last: "Lovelace"},
			[]string{"A1"}, []string{"100"}, []string{"200"}, []string{"x", "y"}),
	})
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		src:      newFakeSource(),
		pub:      newFakePublisher(),
		ledger:   ledger.NewMemory(),
		idStore:  idalloc.NewMemoryStore(),
		registry: reg,
		opts: Options{
			Staleness:           24 * time.Hour,
			RefreshBatch:        10,
			LedgerRetries:       2,
			LedgerRetryInterval: time.Millisecond,
		},
	}
	alloc, err := idalloc.New(context.Background(), h.idStore)
	if err != nil {
		t.Fatal(err)
	}
	h.deps = Deps{
		Source:     h.src,
		Publisher:  h.pub,
		Registry:   reg,
		References: h.ledger.References(),
		Comments:   h.ledger.Comments(),
		IDs:        alloc,
		Logger:     zaptest.NewLogger(t),
		Now:        func() time.Time { return testNow },
	}
	return h
}

func (h *harness) engine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(h.deps, h.opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func transientErr() error {
	return &cms.Error{Kind: cms.ErrTransient, StatusCode: 503, Message: "unavailable"}
}
