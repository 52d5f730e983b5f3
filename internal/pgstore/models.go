package pgstore

import "time"

// PublicationRef is the gorm model for ledger.ReferenceEntry.
type PublicationRef struct {
	ExternalID            string    `gorm:"primaryKey;column:external_id"`
	InternalID            int64     `gorm:"column:internal_id;uniqueIndex;not null"`
	PostID                int64     `gorm:"column:post_id;index;not null"`
	CommentsLastRefreshed time.Time `gorm:"column:comments_last_refreshed;not null"`
}

// TableName overrides the table name used by PublicationRef.
func (PublicationRef) TableName() string { return "publication_refs" }

// CommentRef is the gorm model for ledger.CommentEntry.
type CommentRef struct {
	PostID           int64  `gorm:"primaryKey;autoIncrement:false;column:post_id"`
	CitingExternalID string `gorm:"primaryKey;column:citing_external_id"`
	InternalID       int64  `gorm:"column:internal_id;not null"`
	CommentID        int64  `gorm:"column:comment_id;not null"`
}

// TableName overrides the table name used by CommentRef.
func (CommentRef) TableName() string { return "comment_refs" }

// IDCounter holds the allocator counter.
type IDCounter struct {
	Name  string `gorm:"primaryKey;column:name"`
	Value int64  `gorm:"column:value;not null"`
}

// TableName overrides the table name used by IDCounter.
func (IDCounter) TableName() string { return "id_counter" }

// IDUsed is an allocated id.
type IDUsed struct {
	ID int64 `gorm:"primaryKey;autoIncrement:false;column:id"`
}

// TableName overrides the table name used by IDUsed.
func (IDUsed) TableName() string { return "id_used" }

// IDUnused is a released id.
type IDUnused struct {
	ID int64 `gorm:"primaryKey;autoIncrement:false;column:id"`
}

// TableName overrides the table name used by IDUnused.
func (IDUnused) TableName() string { return "id_unused" }
