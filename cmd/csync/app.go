package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matsen/citesync/internal/config"
	"github.com/matsen/citesync/internal/idalloc"
	"github.com/matsen/citesync/internal/ledger"
	"github.com/matsen/citesync/internal/observe"
	"github.com/matsen/citesync/internal/pgstore"
	"github.com/matsen/citesync/internal/pubcache"
	"github.com/matsen/citesync/internal/reconcile"
	"github.com/matsen/citesync/internal/scopus"
	"github.com/matsen/citesync/internal/storage"
	"github.com/matsen/citesync/internal/wordpress"
	"go.uber.org/zap"
)

// stores is the persistence selected by storage.driver.
type stores struct {
	refs     ledger.References
	comments ledger.Comments
	ids      idalloc.Store
	stats    func(context.Context) (*storage.Stats, error)
	close    func() error
}

// openStores opens the ledger and allocator store for the configured driver.
func openStores(sc config.StorageConfig) (*stores, error) {
	switch sc.Driver {
	case config.DriverPostgres:
		s, err := pgstore.Open(sc.DSN)
		if err != nil {
			return nil, err
		}
		st := &stores{refs: s.References(), comments: s.Comments(), ids: s.IDs(), close: s.Close}
		st.stats = st.countAll
		return st, nil

	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(sc.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		db, err := storage.OpenDB(sc.Path)
		if err != nil {
			return nil, err
		}
		return &stores{refs: db.References(), comments: db.Comments(), ids: db.IDs(), stats: db.Stats, close: db.Close}, nil

	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", config.ErrInvalidConfig, sc.Driver)
	}
}

// countAll computes Stats through the store contracts, for drivers without
// a cheaper count.
func (s *stores) countAll(ctx context.Context) (*storage.Stats, error) {
	refs, err := s.refs.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	used, err := s.ids.Used(ctx)
	if err != nil {
		return nil, err
	}
	unused, err := s.ids.Unused(ctx)
	if err != nil {
		return nil, err
	}
	return &storage.Stats{
		References: len(refs),
		Comments:   len(comments),
		UsedIDs:    len(used),
		UnusedIDs:  len(unused),
	}, nil
}

// mustOpenStores opens the stores, exits on error.
// The caller is responsible for calling close.
func mustOpenStores() *stores {
	s, err := openStores(cfg.Storage)
	if err != nil {
		exitWithError(ExitError, "opening %s storage: %v", cfg.Storage.Driver, err)
	}
	return s
}

// newSource builds the Scopus client, wrapped in the configured cache. The
// returned close func releases the cache connection, if any.
func newSource(c *config.Config, log *zap.Logger) (reconcile.Source, func() error, error) {
	client := scopus.NewClient(
		scopus.WithAPIKey(c.Scopus.APIKey),
		scopus.WithInstToken(c.Scopus.InstToken),
		scopus.WithBaseURL(c.Scopus.BaseURL),
		scopus.WithRateLimit(c.Scopus.RateLimit),
	)
	noop := func() error { return nil }

	opts := []pubcache.Option{
		pubcache.WithTTL(c.Cache.TTL),
		pubcache.WithAuthorTTL(c.Cache.AuthorTTL),
		pubcache.WithLogger(log.Named("cache")),
	}

	switch c.Cache.Backend {
	case config.CacheNone:
		return client, noop, nil
	case config.CacheMemory:
		backend := pubcache.NewMemoryBackend(c.Cache.TTL, c.Cache.TTL/2)
		return pubcache.New(client, backend, opts...), noop, nil
	case config.CacheRedis:
		backend := pubcache.NewRedisBackend(
			pubcache.NewRedisClient(c.Cache.RedisAddr, c.Cache.RedisPassword, c.Cache.RedisDB),
			"csync:")
		if err := backend.Ping(context.Background()); err != nil {
			// A cache outage degrades to live fetches rather than blocking a cycle.
			log.Warn("redis unavailable, continuing without cache",
				zap.String("addr", c.Cache.RedisAddr), zap.Error(err))
			_ = backend.Close()
			return client, noop, nil
		}
		return pubcache.New(client, backend, opts...), backend.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown cache backend %q", config.ErrInvalidConfig, c.Cache.Backend)
	}
}

// mustNewSource builds the source, exits on error.
func mustNewSource() (reconcile.Source, func() error) {
	src, closeFn, err := newSource(cfg, logger)
	if err != nil {
		exitWithError(exitCodeFor(err), "creating source: %v", err)
	}
	return src, closeFn
}

// mustNewPublisher validates the wordpress section and builds the client.
func mustNewPublisher() *wordpress.Client {
	if err := cfg.ValidatePublisher(); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	return wordpress.NewClient(cfg.WordPress.URL, cfg.WordPress.Username, cfg.WordPress.AppPassword,
		wordpress.WithStatus(cfg.WordPress.Status),
		wordpress.WithRateLimit(cfg.WordPress.RateLimit))
}

// mustLoadRegistry loads the observed-authors file, exits on error.
func mustLoadRegistry() *observe.Registry {
	reg, err := observe.LoadFile(cfg.Sync.AuthorsFile)
	if err != nil {
		exitWithError(ExitConfigError, "loading observed authors: %v", err)
	}
	return reg
}

// mustNewAllocator loads the id counter, exits on error.
func mustNewAllocator(ctx context.Context, store idalloc.Store) *idalloc.Allocator {
	alloc, err := idalloc.New(ctx, store)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	return alloc
}

// engineOptions maps the sync section onto engine options.
func engineOptions(sc config.SyncConfig, dryRun bool) reconcile.Options {
	return reconcile.Options{
		Staleness:           sc.Staleness,
		RefreshBatch:        sc.RefreshBatch,
		LedgerRetries:       sc.LedgerRetries,
		LedgerRetryInterval: sc.LedgerRetryInterval,
		DryRun:              dryRun,
	}
}
