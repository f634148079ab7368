// Package reconcile implements the cross-aggregate consistency protocol:
// every mutating operation re-reads the aggregates it touches inside one
// transaction, mutates them, recomputes every derived balance by full
// reduction, and persists them together with registry, audit and outbox rows.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tradeledger/internal/core/apperror"
	appctx "tradeledger/internal/core/context"
	"tradeledger/internal/core/tx"
	"tradeledger/internal/domain"
	"tradeledger/internal/domain/accounts"
	"tradeledger/internal/domain/audit"
	"tradeledger/internal/domain/billing"
	"tradeledger/internal/domain/calendar"
	"tradeledger/internal/domain/daybook"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/domain/ledger"
	"tradeledger/internal/domain/purchase"
	"tradeledger/internal/domain/returns"
	"tradeledger/internal/domain/stock"
	"tradeledger/pkg/logger"
	"tradeledger/pkg/numerator"
)

var tracer = otel.Tracer("tradeledger/reconcile")

// maxAttempts bounds retries of an operation that lost an optimistic-lock race.
const maxAttempts = 3

// Stores groups the repositories the protocol touches.
type Stores struct {
	PaymentsAccounts domain.Repository[*accounts.PaymentsAccount]
	Suppliers        domain.Repository[*accounts.SupplierAccount]
	Sellers          domain.Repository[*accounts.SellerPayment]
	Customers        domain.Repository[*accounts.CustomerAccount]
	Billings         billing.Repository
	Needs            billing.NeedRepository
	Products         domain.Repository[*stock.Product]
	Registry         stock.Registry
	Purchases        purchase.Repository
	Returns          returns.Repository
	Transactions     daybook.Repository
	Events           calendar.Repository
}

// Locker serializes mutations of the same aggregates across processes before
// the transaction opens. Keys are acquired in sorted order.
//
// Only keys known from the operation input are locked. Aggregates found by
// reading a document (the accounts behind a stored payment or transfer) are
// guarded by the row lock taken on read and the version check on write.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// Recorder receives the outcome of every operation (metrics).
type Recorder interface {
	ObserveOperation(op, outcome string, elapsed time.Duration)
}

// Config configures the service. Locker, Publisher, Auditor and Recorder are optional.
type Config struct {
	TxManager tx.Manager
	Stores    Stores
	Locker    Locker
	Publisher events.Publisher
	Auditor   audit.Logger
	Recorder  Recorder
	Refs      *ledger.RefGenerator
	Now       func() time.Time
}

// Service runs reconciliation operations.
type Service struct {
	txm       tx.Manager
	stores    Stores
	locker    Locker
	publisher events.Publisher
	auditor   audit.Logger
	recorder  Recorder
	refs      *ledger.RefGenerator
	now       func() time.Time

	purchaseNumbers *numerator.Service
	returnNumbers   *numerator.Service

	billingHooks *domain.HookRegistry[*billing.Billing]
}

// NewService creates the reconciliation service.
func NewService(cfg Config) *Service {
	s := &Service{
		txm:             cfg.TxManager,
		stores:          cfg.Stores,
		locker:          cfg.Locker,
		publisher:       cfg.Publisher,
		auditor:         cfg.Auditor,
		recorder:        cfg.Recorder,
		refs:            cfg.Refs,
		now:             cfg.Now,
		purchaseNumbers: numerator.New(cfg.Stores.Purchases),
		returnNumbers:   numerator.New(cfg.Stores.Returns),
		billingHooks:    domain.NewHookRegistry[*billing.Billing](),
	}
	if s.locker == nil {
		s.locker = noLocker{}
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	if s.auditor == nil {
		s.auditor = audit.Nop{}
	}
	if s.refs == nil {
		s.refs = ledger.NewRefGenerator()
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.billingHooks.OnBeforeSave(func(_ context.Context, b *billing.Billing) error {
		b.Derive()
		return b.Validate()
	})
	s.billingHooks.OnAfterSave(s.syncCalendarEvent)
	return s
}

// BillingHooks exposes the billing save hooks for additional registrations.
func (s *Service) BillingHooks() *domain.HookRegistry[*billing.Billing] {
	return s.billingHooks
}

type noLocker struct{}

func (noLocker) Lock(context.Context, ...string) (func(), error) { return func() {}, nil }

// run executes fn as one atomic operation. Any error rolls back every write.
func (s *Service) run(ctx context.Context, op string, lockKeys []string, fn func(ss *session) error) (err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "reconcile."+op)
	span.SetAttributes(attribute.String("reconcile.op", op))
	defer func() {
		if s.recorder != nil {
			s.recorder.ObserveOperation(op, outcome(err), time.Since(start))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	lockKeys = slices.Compact(slices.Sorted(slices.Values(lockKeys)))
	unlock, err := s.locker.Lock(ctx, lockKeys...)
	if err != nil {
		return fmt.Errorf("acquire locks for %s: %w", op, err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			ss := s.newSession(ctx, op)
			if err := fn(ss); err != nil {
				return err
			}
			return ss.flush()
		})
		if err == nil || !apperror.IsConcurrentModification(err) || attempt == maxAttempts {
			break
		}
		logger.Warn(ctx, "retrying after concurrent modification", "op", op, "attempt", attempt)
	}

	if err != nil {
		if _, ok := apperror.AsAppError(err); !ok {
			logger.Error(ctx, "reconcile operation failed", "op", op, "error", err)
		}
		return err
	}
	logger.Info(ctx, "reconcile operation committed", "op", op, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// readOnly runs fn without locks in a read-only transaction when the
// manager supports one.
func (s *Service) readOnly(ctx context.Context, op string, fn func(ctx context.Context) error) (err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "reconcile."+op)
	defer func() {
		if s.recorder != nil {
			s.recorder.ObserveOperation(op, outcome(err), time.Since(start))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if ro, ok := s.txm.(tx.ReadOnlyManager); ok {
		return ro.ReadOnly(ctx, fn)
	}
	return s.txm.RunInTransaction(ctx, fn)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "error"
}

// syncCalendarEvent upserts the event owned by a billing.
func (s *Service) syncCalendarEvent(ctx context.Context, b *billing.Billing) error {
	key := calendar.SourceKey(calendar.SourceBilling, b.Key())
	ev, err := s.stores.Events.Get(ctx, key)
	switch {
	case apperror.IsNotFound(err):
		ev = calendar.NewEvent(calendar.SourceBilling, b.Key(), appctx.SubmittedBy(ctx))
	case err != nil:
		return err
	}

	title := fmt.Sprintf("Delivery %s - %s", b.InvoiceNo, b.CustomerName)
	if !ev.Sync(title, b.InvoiceDate, string(b.DeliveryStatus)) && !ev.IsNew() {
		return nil
	}
	ev.Touch(appctx.SubmittedBy(ctx))
	return s.stores.Events.Save(ctx, ev)
}

// Lock key helpers.
func paymentsKey(name string) string  { return "payments:" + name }
func billingKey(key string) string    { return "billing:" + key }
func productKey(itemID string) string { return "product:" + itemID }
func supplierKey(id string) string    { return "supplier:" + id }
func sellerKey(id string) string      { return "seller:" + id }
func customerKey(id string) string    { return "customer:" + id }
