// Package pubcache caches publication records and author publication lists
// in front of a citation source.
//
// Citing ids are always fetched live: they are the one thing a refresh pass
// exists to observe changing.
package pubcache

import (
	"context"
	"fmt"
	"time"

	"github.com/matsen/citesync/internal/publication"
	"go.uber.org/zap"
)

// Source is the citation database being cached.
type Source interface {
	FetchPublication(ctx context.Context, externalID string) (*publication.Publication, error)
	FetchAuthorPublicationIDs(ctx context.Context, authorID string) ([]string, error)
	FetchCitingIDs(ctx context.Context, externalID string) ([]string, error)
}

// Cached wraps a Source with a Backend.
type Cached struct {
	src       Source
	backend   Backend
	logger    *zap.Logger
	ttl       time.Duration
	authorTTL time.Duration
}

// Option configures a Cached source.
type Option func(*Cached)

// WithTTL sets how long publication records are kept.
func WithTTL(d time.Duration) Option {
	return func(c *Cached) { c.ttl = d }
}

// WithAuthorTTL sets how long author publication lists are kept.
func WithAuthorTTL(d time.Duration) Option {
	return func(c *Cached) { c.authorTTL = d }
}

// WithLogger sets the logger used to report backend failures.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cached) { c.logger = l }
}

// New wraps src.
func New(src Source, backend Backend, opts ...Option) *Cached {
	c := &Cached{
		src:       src,
		backend:   backend,
		logger:    zap.NewNop(),
		ttl:       24 * time.Hour,
		authorTTL: time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func publicationKey(id string) string { return "pub:" + id }
func authorKey(id string) string      { return "author:" + id }

// lookup returns the cached record for key, or nil on a miss. Backend and
// decode errors count as misses.
func (c *Cached) lookup(ctx context.Context, key string, want publication.Kind) *publication.Record {
	data, found, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}
	rec, err := publication.DecodeRecord(data)
	if err != nil {
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return nil
	}
	if rec.Kind != want {
		c.logger.Warn("discarding cache entry of wrong kind",
			zap.String("key", key), zap.String("kind", string(rec.Kind)))
		return nil
	}
	return rec
}

func (c *Cached) store(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if err := c.backend.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// FetchPublication returns the cached record or fetches and caches it.
// Callers receive their own copy.
func (c *Cached) FetchPublication(ctx context.Context, externalID string) (*publication.Publication, error) {
	key := publicationKey(externalID)
	if rec := c.lookup(ctx, key, publication.KindPublication); rec != nil {
		return rec.Publication, nil
	}

	pub, err := c.src.FetchPublication(ctx, externalID)
	if err != nil {
		return nil, err
	}

	data, err := publication.EncodePublication(pub)
	if err != nil {
		return nil, fmt.Errorf("encoding %s for cache: %w", externalID, err)
	}
	c.store(ctx, key, data, c.ttl)
	return pub.Clone(), nil
}

// FetchAuthorPublicationIDs returns the cached list or fetches and caches it.
func (c *Cached) FetchAuthorPublicationIDs(ctx context.Context, authorID string) ([]string, error) {
	key := authorKey(authorID)
	if rec := c.lookup(ctx, key, publication.KindAuthorIDs); rec != nil {
		return rec.IDs, nil
	}

	ids, err := c.src.FetchAuthorPublicationIDs(ctx, authorID)
	if err != nil {
		return nil, err
	}

	data, err := publication.EncodeAuthorIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("encoding ids of author %s for cache: %w", authorID, err)
	}
	c.store(ctx, key, data, c.authorTTL)
	return append([]string(nil), ids...), nil
}

// FetchCitingIDs always queries the source.
func (c *Cached) FetchCitingIDs(ctx context.Context, externalID string) ([]string, error) {
	return c.src.FetchCitingIDs(ctx, externalID)
}
