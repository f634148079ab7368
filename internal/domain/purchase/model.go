// Package purchase contains the Purchase document: goods bought from a seller,
// split into a bill part and a cash part.
package purchase

import (
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/entity"
	"tradeledger/internal/core/numerator"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain"
	"tradeledger/internal/domain/billing"
)

const EntityPurchase = "Purchase"

// Item is one purchased line. IsNew creates the product on the fly.
type Item struct {
	ItemID        string         `json:"itemId"`
	Name          string         `json:"name"`
	Brand         string         `json:"brand,omitempty"`
	Category      string         `json:"category,omitempty"`
	Quantity      types.Quantity `json:"quantity"`
	BillPartPrice types.Money    `json:"billPartPrice"`
	CashPartPrice types.Money    `json:"cashPartPrice"`
	IsNew         bool           `json:"isNew,omitempty"`
}

// Totals of a purchase. BillPartTotal goes to the supplier account,
// TotalPurchaseAmount to the seller payment book.
type Totals struct {
	BillPartTotal       types.Money `json:"billPartTotal"`
	CashPartTotal       types.Money `json:"cashPartTotal"`
	TotalPurchaseAmount types.Money `json:"totalPurchaseAmount"`
}

// TransportLeg describes one carrier used to bring the goods in.
type TransportLeg struct {
	CompanyName string      `json:"companyName"`
	BillID      string      `json:"billId,omitempty"`
	Amount      types.Money `json:"amount"`
	Remark      string      `json:"remark,omitempty"`
}

// Transportation groups the logistic (long-haul) and local legs.
type Transportation struct {
	Logistic *TransportLeg `json:"logistic,omitempty"`
	Local    *TransportLeg `json:"local,omitempty"`
}

// Purchase is keyed by its KP{n} id.
type Purchase struct {
	entity.BaseDocument

	PurchaseID            string            `db:"purchase_id" json:"purchaseId"`
	SellerID              string            `db:"seller_id" json:"sellerId"`
	SellerName            string            `db:"seller_name" json:"sellerName"`
	InvoiceNo             string            `db:"invoice_no" json:"invoiceNo"`
	PurchaseDate          time.Time         `db:"purchase_date" json:"purchaseDate"`
	Items                 []Item            `db:"items" json:"items"`
	Totals                Totals            `db:"totals" json:"totals"`
	TransportationDetails Transportation    `db:"transportation_details" json:"transportationDetails"`
	OtherExpenses         []billing.Expense `db:"other_expenses" json:"otherExpenses"`
}

// Key implements domain.Aggregate.
func (p *Purchase) Key() string { return p.PurchaseID }

// ComputeTotals derives the totals from the item lines.
func (p *Purchase) ComputeTotals() {
	bill, cash := types.Zero(), types.Zero()
	for _, it := range p.Items {
		q := it.Quantity.Decimal()
		bill = bill.Add(it.BillPartPrice.Mul(q))
		cash = cash.Add(it.CashPartPrice.Mul(q))
	}
	p.Totals = Totals{
		BillPartTotal:       bill,
		CashPartTotal:       cash,
		TotalPurchaseAmount: bill.Add(cash),
	}
}

// Validate checks purchase invariants.
func (p *Purchase) Validate() error {
	if p.SellerID == "" {
		return apperror.NewValidation("seller is required").WithDetail("field", "sellerId")
	}
	if len(p.Items) == 0 {
		return apperror.NewValidation("at least one item is required").WithDetail("field", "items")
	}
	seen := make(map[string]struct{}, len(p.Items))
	for i, it := range p.Items {
		if it.ItemID == "" {
			return apperror.NewValidation("item id is required").WithDetail("line", i+1)
		}
		if _, dup := seen[it.ItemID]; dup {
			return apperror.NewValidation("duplicate item line").WithDetail("itemId", it.ItemID)
		}
		seen[it.ItemID] = struct{}{}
		if !it.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be greater than zero").
				WithDetail("line", i+1).
				WithDetail("itemId", it.ItemID)
		}
		if it.BillPartPrice.IsNegative() || it.CashPartPrice.IsNegative() {
			return apperror.NewValidation("prices cannot be negative").WithDetail("itemId", it.ItemID)
		}
		if it.IsNew && it.Name == "" {
			return apperror.NewValidation("name is required for a new product").WithDetail("itemId", it.ItemID)
		}
	}
	for i, e := range p.OtherExpenses {
		if !e.Amount.IsPositive() {
			return apperror.NewValidation("expense amount must be greater than zero").WithDetail("expense", i+1)
		}
		if e.Method == "" {
			return apperror.NewValidation("expense method is required").WithDetail("expense", i+1)
		}
	}
	return nil
}

// Repository stores purchases. MaxSuffix feeds KP{n} allocation.
type Repository interface {
	domain.Repository[*Purchase]
	numerator.MaxFinder
}
