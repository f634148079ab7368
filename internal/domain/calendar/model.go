// Package calendar holds the Calendar Event derived from other documents.
// An event is owned by exactly one source document and addressed by it.
package calendar

import (
	"time"

	"tradeledger/internal/core/entity"
	"tradeledger/internal/domain"
)

const EntityEvent = "CalendarEvent"

// SourceType names the kind of document an event mirrors.
type SourceType string

const SourceBilling SourceType = "billing"

// Event is upserted by (SourceType, SourceID).
type Event struct {
	entity.BaseDocument

	SourceKey  string     `db:"source_key" json:"sourceKey"`
	SourceType SourceType `db:"source_type" json:"sourceType"`
	SourceID   string     `db:"source_id" json:"sourceId"`
	Title      string     `db:"title" json:"title"`
	Date       time.Time  `db:"date" json:"date"`
	Status     string     `db:"status" json:"status"`
}

// SourceKey builds the natural key of an event.
func SourceKey(t SourceType, sourceID string) string {
	return string(t) + ":" + sourceID
}

// NewEvent creates an event for a source document.
func NewEvent(t SourceType, sourceID, by string) *Event {
	return &Event{
		BaseDocument: entity.NewBaseDocument(by),
		SourceKey:    SourceKey(t, sourceID),
		SourceType:   t,
		SourceID:     sourceID,
	}
}

// Key implements domain.Aggregate.
func (e *Event) Key() string { return e.SourceKey }

// Sync copies the mirrored fields. Returns false when nothing changed.
func (e *Event) Sync(title string, date time.Time, status string) bool {
	if e.Title == title && e.Date.Equal(date) && e.Status == status {
		return false
	}
	e.Title, e.Date, e.Status = title, date, status
	return true
}

// Repository stores events keyed by SourceKey.
type Repository = domain.Repository[*Event]
