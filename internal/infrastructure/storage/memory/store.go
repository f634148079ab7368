// Package memory is an in-process implementation of every repository, used in
// dev mode and by the reconciliation tests. Aggregates are stored as JSON, so
// callers never share memory with the store, and transactions snapshot the
// whole store and restore it when fn fails.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"tradeledger/internal/core/tx"
	"tradeledger/internal/domain/accounts"
	"tradeledger/internal/domain/audit"
	"tradeledger/internal/domain/billing"
	"tradeledger/internal/domain/calendar"
	"tradeledger/internal/domain/daybook"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/domain/purchase"
	"tradeledger/internal/domain/reconcile"
	"tradeledger/internal/domain/returns"
	"tradeledger/internal/domain/stock"
)

// Store holds all tables.
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte

	registry []stock.Change
	audits   []audit.Record
	outbox   []events.Event

	// txMu serializes transactions; nested calls are detected through the context.
	txMu sync.Mutex
}

// New creates an empty store.
func New() *Store {
	return &Store{tables: make(map[string]map[string][]byte)}
}

type snapshot struct {
	tables   map[string]map[string][]byte
	registry []stock.Change
	audits   []audit.Record
	outbox   []events.Event
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := snapshot{
		tables:   make(map[string]map[string][]byte, len(s.tables)),
		registry: slices.Clone(s.registry),
		audits:   slices.Clone(s.audits),
		outbox:   slices.Clone(s.outbox),
	}
	for name, rows := range s.tables {
		snap.tables[name] = maps.Clone(rows)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = snap.tables
	s.registry = snap.registry
	s.audits = snap.audits
	s.outbox = snap.outbox
}

// --- Transactions ---

type txKey struct{}

// TxManager implements tx.ReadOnlyManager over a Store.
type TxManager struct {
	store *Store
}

// TxManager returns the transaction manager of the store.
func (s *Store) TxManager() *TxManager {
	return &TxManager{store: s}
}

// RunInTransaction implements tx.Manager. Nested calls join the outer transaction.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	snap := m.store.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, m.store)); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

// ReadOnly implements tx.ReadOnlyManager. Writes are rolled back.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	snap := m.store.snapshot()
	defer m.store.restore(snap)
	return fn(context.WithValue(ctx, txKey{}, m.store))
}

var _ tx.ReadOnlyManager = (*TxManager)(nil)

// --- Wiring ---

// Stores returns every repository backed by this store.
func (s *Store) Stores() reconcile.Stores {
	return reconcile.Stores{
		PaymentsAccounts: newTable[accounts.PaymentsAccount](s, tablePaymentsAccounts),
		Suppliers:        newTable[accounts.SupplierAccount](s, tableSupplierAccounts),
		Sellers:          newTable[accounts.SellerPayment](s, tableSellerPayments),
		Customers:        newTable[accounts.CustomerAccount](s, tableCustomerAccounts),
		Billings:         &BillingRepo{Table: newTable[billing.Billing](s, tableBillings)},
		Needs:            &NeedRepo{Table: newTable[billing.NeedToPurchase](s, tableNeeds)},
		Products:         newTable[stock.Product](s, tableProducts),
		Registry:         &Registry{store: s},
		Purchases:        &NumberedRepo[purchase.Purchase, *purchase.Purchase]{Table: newTable[purchase.Purchase](s, tablePurchases)},
		Returns:          &NumberedRepo[returns.Return, *returns.Return]{Table: newTable[returns.Return](s, tableReturns)},
		Transactions:     newTable[daybook.DailyTransaction](s, tableDailyTransactions),
		Events:           newTable[calendar.Event](s, tableCalendarEvents),
	}
}

// Outbox returns the events published so far, oldest first.
func (s *Store) Outbox() []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.outbox)
}

// AuditTrail returns the audit records written so far, oldest first.
func (s *Store) AuditTrail() []audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.audits)
}

// PublishBatch implements events.Publisher.
func (s *Store) PublishBatch(_ context.Context, batch []events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(s.outbox, batch...)
	return nil
}

// LogBatch implements audit.Logger.
func (s *Store) LogBatch(_ context.Context, records []audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, records...)
	return nil
}

var (
	_ events.Publisher = (*Store)(nil)
	_ audit.Logger     = (*Store)(nil)
)
