// Package stock holds the Product aggregate and the append-only Stock Registry.
package stock

import (
	"context"
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/entity"
	"tradeledger/internal/core/id"
	"tradeledger/internal/core/types"
)

const EntityProduct = "Product"

// ChangeType tags the cause of a stock delta. Values are stored verbatim.
type ChangeType string

const (
	ChangePurchase              ChangeType = "Purchase"
	ChangePurchaseNewProduct    ChangeType = "Purchase (New Product)"
	ChangePurchaseDeletion      ChangeType = "Purchase Deletion"
	ChangeSalesBilling          ChangeType = "Sales Billing"
	ChangeSalesBillingDeleted   ChangeType = "Sales Billing Deleted"
	ChangeStockDamage           ChangeType = "Stock Damage"
	ChangeReturnBilling         ChangeType = "Return (Billing)"
	ChangeReturnPurchase        ChangeType = "Return (Purchase)"
	ChangeReturnDeletedBilling  ChangeType = "Return Deleted (Billing)"
	ChangeReturnDeletedPurchase ChangeType = "Return Deleted (Purchase)"
	ChangeManualAddition        ChangeType = "Manual Addition"
	ChangeManualReduction       ChangeType = "Manual Reduction"
	ChangeRevertedStockUpdate   ChangeType = "Reverted Stock Update"
)

// Direction returns +1 for increases, -1 for decreases and 0 when either sign is allowed.
func (c ChangeType) Direction() int {
	switch c {
	case ChangePurchase, ChangePurchaseNewProduct, ChangeSalesBillingDeleted,
		ChangeReturnBilling, ChangeReturnDeletedPurchase, ChangeManualAddition:
		return 1
	case ChangePurchaseDeletion, ChangeSalesBilling, ChangeStockDamage,
		ChangeReturnPurchase, ChangeReturnDeletedBilling, ChangeManualReduction:
		return -1
	default:
		return 0
	}
}

// IsValid reports whether c is a known change type.
func (c ChangeType) IsValid() bool {
	return c.Direction() != 0 || c == ChangeRevertedStockUpdate
}

// IsManual reports whether c may be requested directly by the stock update operation.
func (c ChangeType) IsManual() bool {
	return c == ChangeManualAddition || c == ChangeManualReduction || c == ChangeStockDamage
}

// Product is a stock item addressed by its ItemID.
type Product struct {
	entity.BaseDocument

	ItemID       string         `db:"item_id" json:"itemId"`
	Name         string         `db:"name" json:"name"`
	Brand        string         `db:"brand" json:"brand,omitempty"`
	Category     string         `db:"category" json:"category,omitempty"`
	CountInStock types.Quantity `db:"count_in_stock" json:"countInStock"`
}

// NewProduct creates a product with zero stock.
func NewProduct(itemID, name, brand, category, by string) *Product {
	return &Product{
		BaseDocument: entity.NewBaseDocument(by),
		ItemID:       itemID,
		Name:         name,
		Brand:        brand,
		Category:     category,
	}
}

// Key implements domain.Aggregate.
func (p *Product) Key() string { return p.ItemID }

// Validate checks product invariants.
func (p *Product) Validate() error {
	if p.ItemID == "" {
		return apperror.NewValidation("item id is required").WithDetail("field", "itemId")
	}
	if p.Name == "" {
		return apperror.NewValidation("product name is required").WithDetail("field", "name")
	}
	if p.CountInStock.IsNegative() {
		return apperror.NewValidation("stock count cannot be negative").WithDetail("field", "countInStock")
	}
	return nil
}

// Change is one immutable Stock Registry row.
type Change struct {
	ID             id.ID          `db:"id" json:"id"`
	ItemID         string         `db:"item_id" json:"itemId"`
	Name           string         `db:"name" json:"name"`
	Brand          string         `db:"brand" json:"brand,omitempty"`
	Category       string         `db:"category" json:"category,omitempty"`
	ChangeType     ChangeType     `db:"change_type" json:"changeType"`
	QuantityChange types.Quantity `db:"quantity_change" json:"quantityChange"`
	FinalStock     types.Quantity `db:"final_stock" json:"finalStock"`
	InvoiceNo      string         `db:"invoice_no" json:"invoiceNo"`
	Date           time.Time      `db:"date" json:"date"`
	UpdatedBy      string         `db:"updated_by" json:"updatedBy"`
}

// NoInvoice is recorded when a change has no correlating document.
const NoInvoice = "N/A"

// Apply adds delta to the product stock and returns the registry row describing it.
// A result below zero is rejected with InsufficientStock; nothing is clamped, so the
// recorded QuantityChange is always the delta that was applied.
func Apply(p *Product, delta types.Quantity, ct ChangeType, invoiceNo, by string, at time.Time) (Change, error) {
	if !ct.IsValid() {
		return Change{}, apperror.NewValidation("unknown change type").WithDetail("changeType", string(ct))
	}
	if delta.IsZero() {
		return Change{}, apperror.NewValidation("quantity change cannot be zero").WithDetail("field", "quantity")
	}
	if dir := ct.Direction(); (dir > 0 && delta.IsNegative()) || (dir < 0 && delta.IsPositive()) {
		return Change{}, apperror.NewValidation("quantity sign does not match change type").
			WithDetail("changeType", string(ct)).
			WithDetail("quantity", delta.String())
	}

	next := p.CountInStock + delta
	if next.IsNegative() {
		return Change{}, apperror.NewInsufficientStock(p.ItemID, delta.Neg().Float64(), p.CountInStock.Float64())
	}
	p.CountInStock = next

	if invoiceNo == "" {
		invoiceNo = NoInvoice
	}
	return Change{
		ID:             id.New(),
		ItemID:         p.ItemID,
		Name:           p.Name,
		Brand:          p.Brand,
		Category:       p.Category,
		ChangeType:     ct,
		QuantityChange: delta,
		FinalStock:     next,
		InvoiceNo:      invoiceNo,
		Date:           at,
		UpdatedBy:      by,
	}, nil
}

// VerifyRunningTotal checks that opening + Σ quantityChange up to each row equals
// that row's finalStock. Rows must be in registry order. Returns the index of the
// first mismatching row, or -1.
func VerifyRunningTotal(opening types.Quantity, rows []Change) int {
	running := opening
	for i, r := range rows {
		running += r.QuantityChange
		if running != r.FinalStock {
			return i
		}
	}
	return -1
}

// Opening infers the stock before the first registry row.
func Opening(rows []Change) types.Quantity {
	if len(rows) == 0 {
		return 0
	}
	return rows[0].FinalStock - rows[0].QuantityChange
}

// Registry is the append-only store of stock changes.
type Registry interface {
	// Append stores rows in order within the caller's transaction.
	Append(ctx context.Context, rows ...Change) error

	// Get returns one row. NotFound when absent.
	Get(ctx context.Context, changeID id.ID) (Change, error)

	// ListByItem returns rows for itemID in insertion order.
	ListByItem(ctx context.Context, itemID string) ([]Change, error)
}
