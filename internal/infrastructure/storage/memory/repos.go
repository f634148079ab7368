package memory

import (
	"context"
	"slices"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/id"
	"tradeledger/internal/domain"
	"tradeledger/internal/domain/billing"
	"tradeledger/internal/domain/stock"
	"tradeledger/pkg/numerator"
)

// BillingRepo implements billing.Repository.
type BillingRepo struct {
	*Table[billing.Billing, *billing.Billing]
}

// ListByCustomer implements billing.Repository.
func (r *BillingRepo) ListByCustomer(ctx context.Context, customerID string) ([]*billing.Billing, error) {
	return r.filter(ctx, func(b *billing.Billing) bool { return b.CustomerID == customerID })
}

// ExistsInvoice implements billing.Repository.
func (r *BillingRepo) ExistsInvoice(ctx context.Context, invoiceNo string) (bool, error) {
	list, err := r.filter(ctx, func(b *billing.Billing) bool { return b.InvoiceNo == invoiceNo })
	return len(list) > 0, err
}

// NeedRepo implements billing.NeedRepository.
type NeedRepo struct {
	*Table[billing.NeedToPurchase, *billing.NeedToPurchase]
}

// ListByInvoice implements billing.NeedRepository.
func (r *NeedRepo) ListByInvoice(ctx context.Context, invoiceNo string) ([]*billing.NeedToPurchase, error) {
	return r.filter(ctx, func(n *billing.NeedToPurchase) bool { return n.InvoiceNo == invoiceNo })
}

// NumberedRepo adds MaxSuffix over the keys of a table (purchases, returns).
type NumberedRepo[E any, T interface {
	*E
	domain.Aggregate
}] struct {
	*Table[E, T]
}

// MaxSuffix implements numerator.MaxFinder.
func (r *NumberedRepo[E, T]) MaxSuffix(_ context.Context, prefix string) (int64, error) {
	return numerator.MaxOf(prefix, r.keys()), nil
}

// Registry implements stock.Registry.
type Registry struct {
	store *Store
}

// Append implements stock.Registry.
func (r *Registry) Append(_ context.Context, rows ...stock.Change) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.registry = append(r.store.registry, rows...)
	return nil
}

// Get implements stock.Registry.
func (r *Registry) Get(_ context.Context, changeID id.ID) (stock.Change, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, row := range r.store.registry {
		if row.ID == changeID {
			return row, nil
		}
	}
	return stock.Change{}, apperror.NewNotFound("StockChange", changeID.String())
}

// ListByItem implements stock.Registry.
func (r *Registry) ListByItem(_ context.Context, itemID string) ([]stock.Change, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []stock.Change
	for _, row := range r.store.registry {
		if row.ItemID == itemID {
			out = append(out, row)
		}
	}
	return slices.Clip(out), nil
}

var (
	_ billing.Repository     = (*BillingRepo)(nil)
	_ billing.NeedRepository = (*NeedRepo)(nil)
	_ stock.Registry         = (*Registry)(nil)
)
