package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/matsen/citesync/internal/cms"
	"github.com/matsen/citesync/internal/ledger"
	"go.uber.org/zap"
)

// staleEntries returns the entries whose last refresh is older than the
// staleness threshold, oldest first, capped at RefreshBatch.
func (e *Engine) staleEntries(entries []ledger.ReferenceEntry) []ledger.ReferenceEntry {
	cutoff := e.now().Add(-e.opts.Staleness)

	var stale []ledger.ReferenceEntry
	for _, entry := range entries {
		if entry.CommentsLastRefreshed.Before(cutoff) {
			stale = append(stale, entry)
		}
	}
	sort.SliceStable(stale, func(i, j int) bool {
		a, b := stale[i].CommentsLastRefreshed, stale[j].CommentsLastRefreshed
		if !a.Equal(b) {
			return a.Before(b)
		}
		return stale[i].InternalID < stale[j].InternalID
	})

	if len(stale) > e.opts.RefreshBatch {
		stale = stale[:e.opts.RefreshBatch]
	}
	return stale
}

// refreshStale refreshes up to RefreshBatch stale posts, including posts
// created earlier in this cycle.
func (e *Engine) refreshStale(ctx context.Context, log *zap.Logger, report *Report) error {
	if e.opts.RefreshBatch <= 0 {
		return nil
	}

	entries, err := e.refs.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}
	stale := e.staleEntries(entries)
	log.Info("refreshing citations", zap.String("phase", string(PhaseRefreshCitations)),
		zap.Int("posts", len(entries)), zap.Int("batch", len(stale)))

	for _, entry := range stale {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := e.refreshOne(ctx, log, entry)
		if err != nil {
			return err
		}
		if result.Error != "" {
			report.Failures = append(report.Failures, Failure{
				Phase: PhaseRefreshCitations,
				ID:    entry.ExternalID,
				Error: result.Error,
			})
		}
		report.Refreshed = append(report.Refreshed, *result)
	}
	return nil
}

// RefreshPost refreshes the citation comments of one post regardless of how
// recently it was refreshed. It returns ledger.ErrNotFound if the
// publication has not been posted.
func (e *Engine) RefreshPost(ctx context.Context, externalID string) (*RefreshResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.opts.DryRun {
		return nil, fmt.Errorf("refresh is not available in dry-run mode")
	}

	entry, err := e.refs.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", externalID, err)
	}
	return e.refreshOne(ctx, e.logger, *entry)
}

// refreshOne posts a comment for every citing publication not yet recorded
// for the post. A returned error aborts the cycle; per-item problems are
// reported in the result. The refresh timestamp advances only when no item
// was skipped.
func (e *Engine) refreshOne(ctx context.Context, log *zap.Logger, entry ledger.ReferenceEntry) (*RefreshResult, error) {
	log = log.With(
		zap.String("phase", string(PhaseRefreshCitations)),
		zap.String("external_id", entry.ExternalID),
		zap.Int64("post_id", entry.PostID))
	result := &RefreshResult{ExternalID: entry.ExternalID, PostID: entry.PostID}

	citing, err := e.src.FetchCitingIDs(ctx, entry.ExternalID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("fetching citing ids failed", zap.Error(err))
		result.Error = err.Error()
		return result, nil
	}
	citingSet := toSet(citing)
	result.Citing = len(citingSet)

	existing, err := e.comments.GetByPostID(ctx, entry.PostID)
	if err != nil {
		return nil, fmt.Errorf("reading comments of post %d: %w", entry.PostID, err)
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c.CitingExternalID] = true
	}

	for _, citingID := range sortedKeys(citingSet) {
		if have[citingID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		citingPub, err := e.src.FetchPublication(ctx, citingID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("fetching citing publication failed", zap.String("citing_id", citingID), zap.Error(err))
			result.Skipped++
			continue
		}

		id, err := e.ids.Allocate(ctx)
		if err != nil {
			return nil, fmt.Errorf("allocating id for comment %s: %w", citingID, err)
		}

		commentID, err := e.pub.CreateComment(ctx, entry.PostID, citingPub)
		if err != nil {
			if cms.IsDuplicate(err) && ctx.Err() == nil {
				log.Info("comment already present", zap.String("citing_id", citingID), zap.Error(err))
				e.recordDuplicate(ctx, log, entry.PostID, citingID, id)
				result.Duplicates++
				continue
			}
			e.release(ctx, log, id)
			switch {
			case cms.IsUnauthorized(err):
				return nil, fmt.Errorf("commenting on post %d: %w", entry.PostID, err)
			case ctx.Err() != nil:
				return nil, ctx.Err()
			default:
				log.Warn("creating comment failed", zap.String("citing_id", citingID), zap.Error(err))
				result.Skipped++
			}
			continue
		}

		ce := ledger.CommentEntry{
			InternalID:       id,
			PostID:           entry.PostID,
			CommentID:        commentID,
			CitingExternalID: citingID,
		}
		if err := e.writeLedger(ctx, log, func(ctx context.Context) error {
			return e.comments.Upsert(ctx, ce)
		}); err != nil {
			return nil, fmt.Errorf("%w: comment %d on post %d for %s: %w", ErrLedgerWrite, commentID, entry.PostID, citingID, err)
		}
		log.Debug("comment created", zap.String("citing_id", citingID), zap.Int64("comment_id", commentID))
		result.Added++
	}

	if result.Skipped > 0 {
		result.Error = fmt.Sprintf("%d citing publications skipped", result.Skipped)
		log.Info("post left stale", zap.Int("skipped", result.Skipped))
		return result, nil
	}

	entry.CommentsLastRefreshed = e.now()
	if err := e.writeLedger(ctx, log, func(ctx context.Context) error {
		return e.refs.Upsert(ctx, entry)
	}); err != nil {
		// Nothing was posted without a record, so the post is just refreshed
		// again next cycle.
		log.Error("recording refresh time failed", zap.Error(err))
		result.Error = err.Error()
		return result, nil
	}
	result.Complete = true
	log.Info("post refreshed", zap.Int("added", result.Added), zap.Int("duplicates", result.Duplicates))
	return result, nil
}

// recordDuplicate stores a citation the site already shows, so later
// refreshes skip it. The comment id is unknown and stored as zero. A failed
// write only releases the id: nothing was posted, so the citation is simply
// tried again next time.
func (e *Engine) recordDuplicate(ctx context.Context, log *zap.Logger, postID int64, citingID string, id int64) {
	ce := ledger.CommentEntry{
		InternalID:       id,
		PostID:           postID,
		CitingExternalID: citingID,
	}
	if err := e.writeLedger(ctx, log, func(ctx context.Context) error {
		return e.comments.Upsert(ctx, ce)
	}); err != nil {
		log.Warn("recording duplicate comment failed", zap.String("citing_id", citingID), zap.Error(err))
		e.release(ctx, log, id)
	}
}
