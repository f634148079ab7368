// Package returns contains credit notes for goods coming back from a customer
// (bill return) or going back to a seller (purchase return).
package returns

import (
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/entity"
	"tradeledger/internal/core/numerator"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain"
	"tradeledger/internal/domain/stock"
)

const EntityReturn = "Return"

// Type is the direction of a return.
type Type string

const (
	TypeBill     Type = "bill"
	TypePurchase Type = "purchase"
)

// Item is one returned line.
type Item struct {
	ItemID      string         `json:"itemId"`
	Name        string         `json:"name"`
	Quantity    types.Quantity `json:"quantity"`
	ReturnPrice types.Money    `json:"returnPrice"`
}

// Return is keyed by its CN{n} number.
type Return struct {
	entity.BaseDocument

	ReturnNo    string      `db:"return_no" json:"returnNo"`
	ReturnType  Type        `db:"return_type" json:"returnType"`
	RelatedNo   string      `db:"related_no" json:"relatedNo"`
	Products    []Item      `db:"products" json:"products"`
	TotalAmount types.Money `db:"total_amount" json:"totalAmount"`
	ReturnDate  time.Time   `db:"return_date" json:"returnDate"`
	Remark      string      `db:"remark" json:"remark,omitempty"`
}

// Key implements domain.Aggregate.
func (r *Return) Key() string { return r.ReturnNo }

// ComputeTotal sums quantity × return price.
func (r *Return) ComputeTotal() {
	total := types.Zero()
	for _, it := range r.Products {
		total = total.Add(it.ReturnPrice.Mul(it.Quantity.Decimal()))
	}
	r.TotalAmount = total
}

// Validate checks return invariants.
func (r *Return) Validate() error {
	if r.ReturnType != TypeBill && r.ReturnType != TypePurchase {
		return apperror.NewValidation("return type must be bill or purchase").WithDetail("field", "returnType")
	}
	if r.RelatedNo == "" {
		return apperror.NewValidation("related document is required").WithDetail("field", "relatedNo")
	}
	if len(r.Products) == 0 {
		return apperror.NewValidation("at least one product is required").WithDetail("field", "products")
	}
	for i, it := range r.Products {
		if it.ItemID == "" {
			return apperror.NewValidation("item id is required").WithDetail("line", i+1)
		}
		if !it.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be greater than zero").WithDetail("itemId", it.ItemID)
		}
		if it.ReturnPrice.IsNegative() {
			return apperror.NewValidation("return price cannot be negative").WithDetail("itemId", it.ItemID)
		}
	}
	return nil
}

// StockEffect returns the change type and signed delta applied when the return
// is created: bill returns put goods back, purchase returns take them out.
func (r *Return) StockEffect(it Item) (stock.ChangeType, types.Quantity) {
	if r.ReturnType == TypeBill {
		return stock.ChangeReturnBilling, it.Quantity
	}
	return stock.ChangeReturnPurchase, it.Quantity.Neg()
}

// ReverseStockEffect is the compensating change applied when the return is deleted.
func (r *Return) ReverseStockEffect(it Item) (stock.ChangeType, types.Quantity) {
	if r.ReturnType == TypeBill {
		return stock.ChangeReturnDeletedBilling, it.Quantity.Neg()
	}
	return stock.ChangeReturnDeletedPurchase, it.Quantity
}

// Repository stores returns. MaxSuffix feeds CN{n} allocation.
type Repository interface {
	domain.Repository[*Return]
	numerator.MaxFinder
}
