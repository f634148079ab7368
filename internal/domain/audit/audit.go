// Package audit defines the audit trail written alongside every reconciliation commit.
package audit

import "context"

// Action is the kind of change recorded.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Record is one audited aggregate change. Snapshot is the state after the
// change (nil for deletions).
type Record struct {
	EntityType string
	EntityKey  string
	Action     Action
	Operation  string
	Snapshot   any
}

// Logger persists audit records within the caller's transaction.
type Logger interface {
	LogBatch(ctx context.Context, records []Record) error
}

// Nop discards records.
type Nop struct{}

// LogBatch implements Logger.
func (Nop) LogBatch(context.Context, []Record) error { return nil }
