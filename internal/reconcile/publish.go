package reconcile

import (
	"context"
	"fmt"

	"github.com/matsen/citesync/internal/cms"
	"github.com/matsen/citesync/internal/ledger"
	"github.com/matsen/citesync/internal/publication"
	"go.uber.org/zap"
)

// publishNew posts each allowed publication and records it. A failed post
// releases its id and the batch continues.
func (e *Engine) publishNew(ctx context.Context, log *zap.Logger, report *Report, allowed []*publication.Publication) error {
	for _, pub := range allowed {
		if err := ctx.Err(); err != nil {
			return err
		}

		id, err := e.ids.Allocate(ctx)
		if err != nil {
			return fmt.Errorf("allocating id for %s: %w", pub.ExternalID, err)
		}

		tags := e.classifier.KeywordsFor(pub)
		postID, err := e.pub.CreatePost(ctx, pub, tags)
		if err != nil {
			e.release(ctx, log, id)
			if cms.IsUnauthorized(err) {
				return fmt.Errorf("publishing %s: %w", pub.ExternalID, err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("publishing failed",
				zap.String("phase", string(PhasePublishNew)),
				zap.String("external_id", pub.ExternalID),
				zap.Bool("duplicate", cms.IsDuplicate(err)),
				zap.Error(err))
			report.fail(PhasePublishNew, pub.ExternalID, err)
			continue
		}

		entry := ledger.ReferenceEntry{InternalID: id, PostID: postID, ExternalID: pub.ExternalID}
		if err := e.writeLedger(ctx, log, func(ctx context.Context) error {
			return e.refs.Upsert(ctx, entry)
		}); err != nil {
			return fmt.Errorf("%w: post %d for %s: %w", ErrLedgerWrite, postID, pub.ExternalID, err)
		}

		log.Info("published",
			zap.String("phase", string(PhasePublishNew)),
			zap.String("external_id", pub.ExternalID),
			zap.Int64("internal_id", id),
			zap.Int64("post_id", postID),
			zap.Strings("tags", tags))
		report.Published = append(report.Published, Published{
			ExternalID: pub.ExternalID,
			InternalID: id,
			PostID:     postID,
		})
	}
	return nil
}
