package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/domain"
)

// Table names.
const (
	tablePaymentsAccounts  = "payments_accounts"
	tableSupplierAccounts  = "supplier_accounts"
	tableSellerPayments    = "seller_payments"
	tableCustomerAccounts  = "customer_accounts"
	tableBillings          = "billings"
	tableNeeds             = "need_to_purchase"
	tableProducts          = "products"
	tablePurchases         = "purchases"
	tableReturns           = "returns"
	tableDailyTransactions = "daily_transactions"
	tableCalendarEvents    = "calendar_events"
)

// Table is a generic JSON-backed repository for one aggregate type.
// E is the aggregate struct, T its pointer type.
type Table[E any, T interface {
	*E
	domain.Aggregate
}] struct {
	store *Store
	name  string
}

func newTable[E any, T interface {
	*E
	domain.Aggregate
}](s *Store, name string) *Table[E, T] {
	return &Table[E, T]{store: s, name: name}
}

func (t *Table[E, T]) decode(raw []byte) (T, error) {
	v := T(new(E))
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t.name, err)
	}
	return v, nil
}

// Get implements domain.Repository.
func (t *Table[E, T]) Get(_ context.Context, key string) (T, error) {
	t.store.mu.RLock()
	raw, ok := t.store.tables[t.name][key]
	t.store.mu.RUnlock()
	if !ok {
		return nil, apperror.NewNotFound(t.name, key)
	}
	return t.decode(raw)
}

// Exists implements domain.Repository.
func (t *Table[E, T]) Exists(_ context.Context, key string) (bool, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.tables[t.name][key]
	return ok, nil
}

// List implements domain.Repository.
func (t *Table[E, T]) List(ctx context.Context) ([]T, error) {
	return t.filter(ctx, nil)
}

func (t *Table[E, T]) filter(_ context.Context, keep func(T) bool) ([]T, error) {
	t.store.mu.RLock()
	rows := t.store.tables[t.name]
	keys := slices.Sorted(maps.Keys(rows))
	raws := make([][]byte, len(keys))
	for i, k := range keys {
		raws[i] = rows[k]
	}
	t.store.mu.RUnlock()

	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		v, err := t.decode(raw)
		if err != nil {
			return nil, err
		}
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (t *Table[E, T]) keys() []string {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return slices.Collect(maps.Keys(t.store.tables[t.name]))
}

// Save implements domain.Repository: insert when the aggregate is new,
// otherwise an update guarded by the stored version.
func (t *Table[E, T]) Save(_ context.Context, agg T) error {
	key := agg.Key()
	if key == "" {
		return apperror.NewValidation("aggregate key is required").WithDetail("entity", t.name)
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	rows := t.store.tables[t.name]
	if rows == nil {
		rows = make(map[string][]byte)
		t.store.tables[t.name] = rows
	}

	prev := agg.GetVersion()
	raw, exists := rows[key]
	if agg.IsNew() {
		if exists {
			return apperror.NewDuplicate(t.name, "key", key)
		}
	} else {
		if !exists {
			return apperror.NewNotFound(t.name, key)
		}
		var stored struct {
			Version int `json:"version"`
		}
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode %s version: %w", t.name, err)
		}
		if stored.Version != prev {
			return apperror.NewConcurrentModification(t.name, key)
		}
	}

	agg.SetVersion(prev + 1)
	data, err := json.Marshal(agg)
	if err != nil {
		agg.SetVersion(prev)
		return fmt.Errorf("encode %s: %w", t.name, err)
	}
	rows[key] = data
	return nil
}

// Delete implements domain.Repository.
func (t *Table[E, T]) Delete(_ context.Context, key string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.tables[t.name][key]; !ok {
		return apperror.NewNotFound(t.name, key)
	}
	delete(t.store.tables[t.name], key)
	return nil
}
