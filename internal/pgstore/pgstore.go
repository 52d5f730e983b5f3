// Package pgstore persists the reference ledger and the id allocator state in
// Postgres through gorm.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/matsen/citesync/internal/idalloc"
	"github.com/matsen/citesync/internal/ledger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const counterName = "publication"

// Store wraps a gorm connection.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*Store, error) {
	gormLogger := logger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             300 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	return initStore(db, Migrate)
}

// initStore migrates db and closes it again if migration fails.
func initStore(db *gorm.DB, migrate func(*gorm.DB) error) (*Store, error) {
	s := &Store{db: db}
	if err := migrate(db); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

// New wraps an existing gorm connection. The schema must already be migrated.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&PublicationRef{},
		&CommentRef{},
		&IDCounter{},
		&IDUsed{},
		&IDUnused{},
	)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// References returns the publication ledger backed by Postgres.
func (s *Store) References() ledger.References { return pgRefs{s.db} }

// Comments returns the comment ledger backed by Postgres.
func (s *Store) Comments() ledger.Comments { return pgComments{s.db} }

// IDs returns the allocator store backed by Postgres.
func (s *Store) IDs() idalloc.Store { return pgIDs{s.db} }

type pgRefs struct{ db *gorm.DB }

func toEntry(m PublicationRef) ledger.ReferenceEntry {
	e := ledger.ReferenceEntry{
		InternalID: m.InternalID,
		PostID:     m.PostID,
		ExternalID: m.ExternalID,
	}
	if m.CommentsLastRefreshed.Year() > 1 {
		e.CommentsLastRefreshed = m.CommentsLastRefreshed.UTC()
	}
	return e
}

func (r pgRefs) GetAll(ctx context.Context) ([]ledger.ReferenceEntry, error) {
	var rows []PublicationRef
	if err := r.db.WithContext(ctx).Order("internal_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing references: %w", err)
	}
	out := make([]ledger.ReferenceEntry, len(rows))
	for i, m := range rows {
		out[i] = toEntry(m)
	}
	return out, nil
}

func (r pgRefs) GetByExternalID(ctx context.Context, externalID string) (*ledger.ReferenceEntry, error) {
	var m PublicationRef
	err := r.db.WithContext(ctx).First(&m, "external_id = ?", externalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting reference %s: %w", externalID, err)
	}
	e := toEntry(m)
	return &e, nil
}

func (r pgRefs) Upsert(ctx context.Context, e ledger.ReferenceEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	m := PublicationRef{
		ExternalID:            e.ExternalID,
		InternalID:            e.InternalID,
		PostID:                e.PostID,
		CommentsLastRefreshed: e.CommentsLastRefreshed,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"internal_id":             gorm.Expr("excluded.internal_id"),
			"post_id":                 gorm.Expr("excluded.post_id"),
			"comments_last_refreshed": gorm.Expr("GREATEST(publication_refs.comments_last_refreshed, excluded.comments_last_refreshed)"),
		}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("upserting reference %s: %w", e.ExternalID, err)
	}
	return nil
}

func (r pgRefs) Truncate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Where("1 = 1").Delete(&PublicationRef{}).Error; err != nil {
		return fmt.Errorf("truncating references: %w", err)
	}
	return nil
}

type pgComments struct{ db *gorm.DB }

func (c pgComments) find(ctx context.Context, query *gorm.DB) ([]ledger.CommentEntry, error) {
	var rows []CommentRef
	if err := query.Order("post_id, citing_external_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	out := make([]ledger.CommentEntry, len(rows))
	for i, m := range rows {
		out[i] = ledger.CommentEntry{
			InternalID:       m.InternalID,
			PostID:           m.PostID,
			CommentID:        m.CommentID,
			CitingExternalID: m.CitingExternalID,
		}
	}
	return out, nil
}

func (c pgComments) GetAll(ctx context.Context) ([]ledger.CommentEntry, error) {
	return c.find(ctx, c.db.WithContext(ctx))
}

func (c pgComments) GetByPostID(ctx context.Context, postID int64) ([]ledger.CommentEntry, error) {
	return c.find(ctx, c.db.WithContext(ctx).Where("post_id = ?", postID))
}

func (c pgComments) Upsert(ctx context.Context, e ledger.CommentEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	m := CommentRef{
		PostID:           e.PostID,
		CitingExternalID: e.CitingExternalID,
		InternalID:       e.InternalID,
		CommentID:        e.CommentID,
	}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}, {Name: "citing_external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"internal_id", "comment_id"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("upserting comment %d/%s: %w", e.PostID, e.CitingExternalID, err)
	}
	return nil
}

func (c pgComments) Truncate(ctx context.Context) error {
	if err := c.db.WithContext(ctx).Where("1 = 1").Delete(&CommentRef{}).Error; err != nil {
		return fmt.Errorf("truncating comments: %w", err)
	}
	return nil
}

type pgIDs struct{ db *gorm.DB }

func (s pgIDs) LoadCounter(ctx context.Context) (int64, error) {
	var m IDCounter
	err := s.db.WithContext(ctx).First(&m, "name = ?", counterName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading id counter: %w", err)
	}
	return m.Value, nil
}

func (s pgIDs) CommitAllocation(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&IDCounter{Name: counterName, Value: id}).Error; err != nil {
			return fmt.Errorf("updating id counter: %w", err)
		}
		if err := tx.Create(&IDUsed{ID: id}).Error; err != nil {
			return fmt.Errorf("marking id %d used: %w", id, err)
		}
		return nil
	})
}

func (s pgIDs) CommitRelease(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&IDUsed{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("unmarking id %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return idalloc.ErrNotAllocated
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&IDUnused{ID: id}).Error; err != nil {
			return fmt.Errorf("recording unused id %d: %w", id, err)
		}
		return nil
	})
}

func (s pgIDs) Used(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&IDUsed{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("listing used ids: %w", err)
	}
	return ids, nil
}

func (s pgIDs) Unused(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&IDUnused{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("listing unused ids: %w", err)
	}
	return ids, nil
}
