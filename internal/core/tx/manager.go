// Package tx declares the transaction boundary the reconcile service runs
// in. Postgres and the in-memory store both implement it.
package tx

import (
	"context"
)

// Manager runs fn atomically. Every read and write fn performs through the
// repositories joins the transaction carried by the ctx passed to fn; an
// error from fn rolls all of them back. A call made while a transaction is
// already open on ctx joins it instead of starting a new one.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager also offers read-only transactions; stock verification
// runs in one so it takes no row locks.
type ReadOnlyManager interface {
	Manager
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
