// Package domain provides the repository and lifecycle-hook contracts shared by all aggregates.
package domain

import (
	"context"

	"tradeledger/internal/core/entity"
)

// Aggregate is a persisted document addressed by a natural key
// (payments account name, supplier id, item id, purchase id, ...).
type Aggregate interface {
	entity.Versioned
	Key() string
}

// Repository is the storage contract every aggregate goes through.
//
// Reads performed inside a transaction lock the row (SELECT ... FOR UPDATE),
// so a read-modify-write cycle always starts from the latest committed state.
type Repository[T Aggregate] interface {
	// Get loads the aggregate by key. Returns NotFound when absent.
	Get(ctx context.Context, key string) (T, error)

	// Exists reports whether an aggregate with key is stored.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns every aggregate ordered by key.
	List(ctx context.Context) ([]T, error)

	// Save inserts a new aggregate or updates an existing one with an
	// optimistic version check. On success the aggregate carries the stored version.
	Save(ctx context.Context, agg T) error

	// Delete removes the aggregate by key. Returns NotFound when absent.
	Delete(ctx context.Context, key string) error
}

// HookEvent names a point in the flush of a touched aggregate.
type HookEvent string

const (
	// BeforeSave runs before the aggregate is written; an error aborts the
	// whole posting.
	BeforeSave HookEvent = "before_save"
	// AfterSave runs after the write, inside the same transaction.
	AfterSave HookEvent = "after_save"
)

// Hook is a function that runs at specific lifecycle points.
type Hook[T any] func(ctx context.Context, entity T) error

// HookRegistry stores lifecycle hooks for an entity type.
// Hooks run in registration order; the first error aborts the chain.
type HookRegistry[T any] struct {
	hooks map[HookEvent][]Hook[T]
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{
		hooks: make(map[HookEvent][]Hook[T]),
	}
}

// On registers a hook for the specified event.
func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run executes all hooks for the specified event.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, entity T) error {
	for _, hook := range r.hooks[event] {
		if err := hook(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

// OnBeforeSave registers a hook to run before insert or update.
func (r *HookRegistry[T]) OnBeforeSave(hook Hook[T]) {
	r.On(BeforeSave, hook)
}

// OnAfterSave registers a hook to run after insert or update.
func (r *HookRegistry[T]) OnAfterSave(hook Hook[T]) {
	r.On(AfterSave, hook)
}
