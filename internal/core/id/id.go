// Package id generates the identifiers of billings, daily transactions,
// stock registry rows and outbox messages.
package id

import (
	"github.com/google/uuid"
)

// ID is the uuid type stored in UUID columns.
type ID = uuid.UUID

// New returns a UUIDv7, so ids sort by creation time. It degrades to a
// random UUIDv4 if the v7 clock source fails.
func New() ID {
	if v, err := uuid.NewV7(); err == nil {
		return v
	}
	return uuid.New()
}

// Parse parses the canonical textual form.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// IsZero reports whether v is the nil uuid.
func IsZero(v ID) bool {
	return v == uuid.Nil
}
