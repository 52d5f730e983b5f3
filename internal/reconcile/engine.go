// Package reconcile runs reconciliation cycles: it compares the publications
// already posted with what the citation source currently lists for every
// observed author, publishes the new ones that pass the affiliation filter,
// and keeps the citation comments of existing posts up to date.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/matsen/citesync/internal/classify"
	"github.com/matsen/citesync/internal/cms"
	"github.com/matsen/citesync/internal/ledger"
	"github.com/matsen/citesync/internal/publication"
	"go.uber.org/zap"
)

// ErrLedgerWrite is returned when a post or comment was created but could
// not be recorded. The cycle stops; the object must be recorded by hand or
// deleted (csync post delete) before the next cycle to avoid a duplicate.
var ErrLedgerWrite = errors.New("ledger write failed after successful publish")

// Source is the citation database.
type Source interface {
	FetchPublication(ctx context.Context, externalID string) (*publication.Publication, error)
	FetchAuthorPublicationIDs(ctx context.Context, authorID string) ([]string, error)
	FetchCitingIDs(ctx context.Context, externalID string) ([]string, error)
}

// Allocator issues internal ids. *idalloc.Allocator satisfies it.
type Allocator interface {
	Allocate(ctx context.Context) (int64, error)
	Release(ctx context.Context, id int64) error
}

// Registry is the observed-author registry. *observe.Registry satisfies it.
type Registry interface {
	classify.Lookup
	AllIDs() []string
}

// Deps are the collaborators an Engine drives.
type Deps struct {
	Source     Source
	Publisher  cms.Publisher
	Registry   Registry
	References ledger.References
	Comments   ledger.Comments
	IDs        Allocator
	Logger     *zap.Logger
	Now        func() time.Time
}

// Options tune a cycle.
type Options struct {
	// Staleness is how old a post's last citation refresh must be before
	// the post is refreshed again.
	Staleness time.Duration
	// RefreshBatch caps the posts refreshed per cycle. Zero or negative
	// disables the refresh phase.
	RefreshBatch int
	// LedgerRetries and LedgerRetryInterval control retries of a ledger
	// write that follows a successful publish.
	LedgerRetries       int
	LedgerRetryInterval time.Duration
	// DryRun stops after classification; nothing is allocated or posted.
	DryRun bool
}

// Engine runs cycles. Cycles never overlap.
type Engine struct {
	mu         sync.Mutex
	src        Source
	pub        cms.Publisher
	registry   Registry
	refs       ledger.References
	comments   ledger.Comments
	ids        Allocator
	classifier *classify.Classifier
	logger     *zap.Logger
	now        func() time.Time
	opts       Options
}

// New builds an Engine.
func New(deps Deps, opts Options) (*Engine, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("reconcile: nil Source")
	case deps.Publisher == nil && !opts.DryRun:
		return nil, errors.New("reconcile: nil Publisher")
	case deps.Registry == nil:
		return nil, errors.New("reconcile: nil Registry")
	case deps.References == nil || deps.Comments == nil:
		return nil, errors.New("reconcile: nil ledger")
	case deps.IDs == nil && !opts.DryRun:
		return nil, errors.New("reconcile: nil Allocator")
	}

	e := &Engine{
		src:        deps.Source,
		pub:        deps.Publisher,
		registry:   deps.Registry,
		refs:       deps.References,
		comments:   deps.Comments,
		ids:        deps.IDs,
		classifier: classify.New(deps.Registry),
		logger:     deps.Logger,
		now:        deps.Now,
		opts:       opts,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.opts.LedgerRetryInterval <= 0 {
		e.opts.LedgerRetryInterval = 500 * time.Millisecond
	}
	return e, nil
}

// Run executes one full cycle. Per-item failures are logged and listed in
// the report; the returned error is reserved for conditions that make the
// rest of the cycle pointless or unsafe: a storage failure, rejected
// publisher credentials, an unrecorded publish, or cancellation.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := &Report{
		CycleID:   uuid.NewString(),
		DryRun:    e.opts.DryRun,
		StartedAt: e.now(),
	}
	log := e.logger.With(zap.String("cycle", report.CycleID))
	finish := func(err error) (*Report, error) {
		report.FinishedAt = e.now()
		if err != nil {
			log.Error("cycle aborted", zap.Error(err))
			return report, err
		}
		log.Info("cycle finished", zap.String("phase", string(PhaseDone)),
			zap.Int("published", len(report.Published)),
			zap.Int("refreshed", len(report.Refreshed)),
			zap.Int("failures", len(report.Failures)))
		return report, nil
	}

	// Known ids are re-read every cycle.
	entries, err := e.refs.GetAll(ctx)
	if err != nil {
		return finish(fmt.Errorf("reading ledger: %w", err))
	}
	known := ledger.ExternalIDs(entries)
	report.Known = len(known)
	log.Info("collected known publications", zap.String("phase", string(PhaseCollectKnown)), zap.Int("known", len(known)))

	live, err := e.fetchLive(ctx, log, report)
	if err != nil {
		return finish(err)
	}
	report.Live = len(live)

	report.New = Diff(live, known)
	log.Info("computed new publications", zap.String("phase", string(PhaseDiff)), zap.Int("new", len(report.New)))

	allowed, err := e.classifyNew(ctx, log, report)
	if err != nil {
		return finish(err)
	}

	if e.opts.DryRun {
		log.Info("dry run, skipping publish and refresh")
		return finish(nil)
	}

	if err := e.publishNew(ctx, log, report, allowed); err != nil {
		return finish(err)
	}

	if err := e.refreshStale(ctx, log, report); err != nil {
		return finish(err)
	}

	return finish(nil)
}

// fetchLive unions the publication ids of every observed author id. An
// author whose listing fails is skipped for this cycle.
func (e *Engine) fetchLive(ctx context.Context, log *zap.Logger, report *Report) (map[string]bool, error) {
	live := make(map[string]bool)
	authors := e.registry.AllIDs()
	for _, authorID := range authors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, err := e.src.FetchAuthorPublicationIDs(ctx, authorID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("listing author publications failed",
				zap.String("phase", string(PhaseFetchLive)), zap.String("author_id", authorID), zap.Error(err))
			report.fail(PhaseFetchLive, authorID, err)
			continue
		}
		for _, id := range ids {
			live[id] = true
		}
	}
	log.Info("fetched live publications", zap.String("phase", string(PhaseFetchLive)),
		zap.Int("authors", len(authors)), zap.Int("live", len(live)))
	return live, nil
}

// classifyNew fetches the full records of the new ids and partitions them.
// Only the allowed records are returned.
func (e *Engine) classifyNew(ctx context.Context, log *zap.Logger, report *Report) ([]*publication.Publication, error) {
	candidates := make([]*publication.Publication, 0, len(report.New))
	for _, id := range report.New {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pub, err := e.src.FetchPublication(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("fetching publication failed",
				zap.String("phase", string(PhaseClassify)), zap.String("external_id", id), zap.Error(err))
			report.fail(PhaseClassify, id, err)
			continue
		}
		candidates = append(candidates, pub)
	}

	result := e.classifier.Classify(candidates)
	report.Allowed = externalIDs(result.Allow)
	report.Denied = externalIDs(result.Deny)
	report.Undecided = externalIDs(result.Undecided)

	for _, p := range result.Undecided {
		log.Debug("publication undecided", zap.String("external_id", p.ExternalID))
	}
	log.Info("classified new publications", zap.String("phase", string(PhaseClassify)),
		zap.Int("allow", len(result.Allow)), zap.Int("deny", len(result.Deny)),
		zap.Int("undecided", len(result.Undecided)))
	return result.Allow, nil
}

func externalIDs(pubs []*publication.Publication) []string {
	out := make([]string, len(pubs))
	for i, p := range pubs {
		out[i] = p.ExternalID
	}
	return out
}

// release returns an id after a failed publish. A failed release only
// leaves a gap in the id sequence, so it is logged and otherwise ignored.
func (e *Engine) release(ctx context.Context, log *zap.Logger, id int64) {
	if err := e.ids.Release(context.WithoutCancel(ctx), id); err != nil {
		log.Warn("releasing id failed", zap.Int64("internal_id", id), zap.Error(err))
	}
}

// writeLedger retries op with exponential backoff. It ignores cancellation
// of ctx: once a publish has succeeded the record must be attempted in full.
func (e *Engine) writeLedger(ctx context.Context, log *zap.Logger, op func(context.Context) error) error {
	wctx := context.WithoutCancel(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.LedgerRetryInterval
	b.MaxElapsedTime = 0

	retries := e.opts.LedgerRetries
	if retries < 0 {
		retries = 0
	}
	attempt := 0
	return backoff.RetryNotify(
		func() error {
			attempt++
			return op(wctx)
		},
		backoff.WithMaxRetries(b, uint64(retries)),
		func(err error, wait time.Duration) {
			log.Warn("ledger write failed, retrying",
				zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		},
	)
}
