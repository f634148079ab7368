// Package entity holds the fields shared by every persisted aggregate.
package entity

import (
	"time"

	"tradeledger/internal/core/id"
)

// BaseEntity contains the primary key and the optimistic-lock version.
type BaseEntity struct {
	// ID is the primary key (UUIDv7)
	ID id.ID `db:"id" json:"id"`

	// Version is incremented by the repository on each successful update.
	// Zero means the aggregate has never been persisted.
	Version int `db:"version" json:"version"`
}

// NewBaseEntity creates a new BaseEntity with generated ID.
func NewBaseEntity() BaseEntity {
	return BaseEntity{ID: id.New()}
}

// IsNew reports whether the aggregate still has to be inserted.
func (b *BaseEntity) IsNew() bool {
	return b.Version == 0
}

// GetID returns the primary key.
func (b *BaseEntity) GetID() id.ID {
	return b.ID
}

// GetVersion returns the version the aggregate was loaded with.
func (b *BaseEntity) GetVersion() int {
	return b.Version
}

// SetVersion updates the version number (used by repository after sync).
func (b *BaseEntity) SetVersion(v int) {
	b.Version = v
}

// BaseDocument extends BaseEntity with audit fields.
type BaseDocument struct {
	BaseEntity

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy string    `db:"updated_by" json:"updatedBy,omitempty"`
}

// NewBaseDocument creates a new BaseDocument with generated ID and timestamps.
func NewBaseDocument(by string) BaseDocument {
	now := time.Now().UTC()
	return BaseDocument{
		BaseEntity: NewBaseEntity(),
		CreatedAt:  now,
		UpdatedAt:  now,
		CreatedBy:  by,
		UpdatedBy:  by,
	}
}

// Touch records who changed the document and when.
func (b *BaseDocument) Touch(by string) {
	b.UpdatedAt = time.Now().UTC()
	b.UpdatedBy = by
}

// Versioned is implemented by every aggregate that goes through an optimistic-lock update.
type Versioned interface {
	GetID() id.ID
	GetVersion() int
	SetVersion(v int)
	IsNew() bool
}
