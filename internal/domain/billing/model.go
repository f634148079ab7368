// Package billing contains the Billing aggregate: the sale document whose
// payments, deliveries and expenses drive its derived statuses and totals.
package billing

import (
	"context"
	"slices"
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/entity"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain"
	"tradeledger/internal/domain/ledger"
)

const (
	EntityBilling        = "Billing"
	EntityNeedToPurchase = "NeedToPurchase"
)

// Product is an ordered line of a billing.
type Product struct {
	ItemID            string         `json:"itemId"`
	Name              string         `json:"name"`
	Quantity          types.Quantity `json:"quantity"`
	SellingPrice      types.Money    `json:"sellingPrice"`
	DeliveredQuantity types.Quantity `json:"deliveredQuantity"`
	DeliveryStatus    DeliveryStatus `json:"deliveryStatus"`
}

// NeededItem is the part of an ordered line that stock could not cover at sale time.
type NeededItem struct {
	ItemID   string         `json:"itemId"`
	Name     string         `json:"name"`
	Quantity types.Quantity `json:"quantity"`
}

// Billing is the sale-order aggregate.
type Billing struct {
	entity.BaseDocument

	InvoiceNo    string    `db:"invoice_no" json:"invoiceNo"`
	InvoiceDate  time.Time `db:"invoice_date" json:"invoiceDate"`
	CustomerID   string    `db:"customer_id" json:"customerId"`
	CustomerName string    `db:"customer_name" json:"customerName"`
	Remark       string    `db:"remark" json:"remark,omitempty"`

	GrandTotal       types.Money    `db:"grand_total" json:"grandTotal"`
	Products         []Product      `db:"products" json:"products"`
	Payments         []ledger.Entry `db:"payments" json:"payments"`
	Deliveries       []Delivery     `db:"deliveries" json:"deliveries"`
	OtherExpenses    []Expense      `db:"other_expenses" json:"otherExpenses"`
	NeededToPurchase []NeededItem   `db:"needed_to_purchase" json:"neededToPurchase"`

	// Derived by Derive on every save.
	IsNeededToPurchase    bool           `db:"is_needed_to_purchase" json:"isneededToPurchase"`
	BillingAmountReceived types.Money    `db:"billing_amount_received" json:"billingAmountReceived"`
	PaymentStatus         PaymentStatus  `db:"payment_status" json:"paymentStatus"`
	DeliveryStatus        DeliveryStatus `db:"delivery_status" json:"deliveryStatus"`
	TotalFuelCharge       types.Money    `db:"total_fuel_charge" json:"totalFuelCharge"`
	TotalOtherExpenses    types.Money    `db:"total_other_expenses" json:"totalOtherExpenses"`
}

// NewBilling creates a billing. Derived fields are filled by Derive.
func NewBilling(invoiceNo, customerID, customerName string, grandTotal types.Money, products []Product, by string) *Billing {
	b := &Billing{
		BaseDocument:     entity.NewBaseDocument(by),
		InvoiceNo:        invoiceNo,
		InvoiceDate:      time.Now().UTC(),
		CustomerID:       customerID,
		CustomerName:     customerName,
		GrandTotal:       grandTotal,
		Products:         products,
		Payments:         []ledger.Entry{},
		Deliveries:       []Delivery{},
		OtherExpenses:    []Expense{},
		NeededToPurchase: []NeededItem{},
	}
	b.Derive()
	return b
}

// Key implements domain.Aggregate.
func (b *Billing) Key() string { return b.ID.String() }

// Validate checks billing invariants.
func (b *Billing) Validate() error {
	if b.InvoiceNo == "" {
		return apperror.NewValidation("invoice number is required").WithDetail("field", "invoiceNo")
	}
	if b.CustomerID == "" {
		return apperror.NewValidation("customer is required").WithDetail("field", "customerId")
	}
	if b.GrandTotal.IsNegative() {
		return apperror.NewValidation("grand total cannot be negative").WithDetail("field", "grandTotal")
	}
	if len(b.Products) == 0 {
		return apperror.NewValidation("at least one product is required").WithDetail("field", "products")
	}
	seen := make(map[string]struct{}, len(b.Products))
	for i, p := range b.Products {
		if p.ItemID == "" {
			return apperror.NewValidation("item id is required").WithDetail("line", i+1)
		}
		if !p.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be greater than zero").
				WithDetail("line", i+1).
				WithDetail("itemId", p.ItemID)
		}
		if _, dup := seen[p.ItemID]; dup {
			return apperror.NewValidation("duplicate product line").WithDetail("itemId", p.ItemID)
		}
		seen[p.ItemID] = struct{}{}
	}
	return nil
}

// Derive recomputes every derived field from the arrays. Runs before each save.
func (b *Billing) Derive() {
	b.BillingAmountReceived = ledger.Sum(b.Payments)
	b.PaymentStatus = DerivePaymentStatus(b.BillingAmountReceived, b.GrandTotal)

	statuses := make([]DeliveryStatus, len(b.Products))
	for i := range b.Products {
		p := &b.Products[i]
		p.DeliveryStatus = deriveLineStatus(p.Quantity, p.DeliveredQuantity)
		statuses[i] = p.DeliveryStatus
	}
	b.DeliveryStatus = aggregateStatus(statuses)

	fuel, other := types.Zero(), types.Zero()
	for _, d := range b.Deliveries {
		for _, e := range d.Expenses {
			if e.Kind == ExpenseFuel {
				fuel = fuel.Add(e.Amount)
			} else {
				other = other.Add(e.Amount)
			}
		}
	}
	for _, e := range b.OtherExpenses {
		other = other.Add(e.Amount)
	}
	b.TotalFuelCharge, b.TotalOtherExpenses = fuel, other

	b.IsNeededToPurchase = len(b.NeededToPurchase) > 0
}

// --- Payments ---

func (b *Billing) checkReceived() error {
	received := ledger.Sum(b.Payments)
	if received.GreaterThan(b.GrandTotal) {
		return apperror.NewExceedsTotal(b.InvoiceNo, received.String(), b.GrandTotal.String())
	}
	return nil
}

// AddPayment appends a payment. Rejected with ExceedsTotal when the sum of
// payments would exceed the grand total; the billing is left unchanged.
func (b *Billing) AddPayment(e ledger.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if ledger.IndexOf(b.Payments, e.ReferenceID) >= 0 {
		return apperror.NewDuplicate("BillingPayment", "referenceId", e.ReferenceID)
	}
	e.InvoiceNo = b.InvoiceNo

	prev := b.Payments
	b.Payments = append(slices.Clone(prev), e)
	if err := b.checkReceived(); err != nil {
		b.Payments = prev
		return err
	}
	b.Derive()
	return nil
}

// UpdatePayment replaces the payment with ref and returns the previous version.
func (b *Billing) UpdatePayment(ref string, e ledger.Entry) (ledger.Entry, error) {
	old, ok := ledger.Find(b.Payments, ref)
	if !ok {
		return ledger.Entry{}, apperror.NewNotFound("BillingPayment", ref)
	}
	e.ReferenceID = ref
	e.InvoiceNo = b.InvoiceNo
	if err := e.Validate(); err != nil {
		return ledger.Entry{}, err
	}

	prev := b.Payments
	b.Payments = ledger.Upsert(prev, e)
	if err := b.checkReceived(); err != nil {
		b.Payments = prev
		return ledger.Entry{}, err
	}
	b.Derive()
	return old, nil
}

// RemovePayment drops the payment with ref and returns it.
func (b *Billing) RemovePayment(ref string) (ledger.Entry, error) {
	old, ok := ledger.Find(b.Payments, ref)
	if !ok {
		return ledger.Entry{}, apperror.NewNotFound("BillingPayment", ref)
	}
	b.Payments, _ = ledger.Remove(b.Payments, ref)
	b.Derive()
	return old, nil
}

// --- Needed to purchase ---

// AddNeeded records (or grows) the uncovered quantity of an item.
func (b *Billing) AddNeeded(item NeededItem) {
	if i := slices.IndexFunc(b.NeededToPurchase, func(n NeededItem) bool { return n.ItemID == item.ItemID }); i >= 0 {
		b.NeededToPurchase[i].Quantity += item.Quantity
	} else {
		b.NeededToPurchase = append(b.NeededToPurchase, item)
	}
	b.Derive()
}

// RemoveNeeded drops the needed line of itemID.
func (b *Billing) RemoveNeeded(itemID string) bool {
	n := len(b.NeededToPurchase)
	b.NeededToPurchase = slices.DeleteFunc(b.NeededToPurchase, func(n NeededItem) bool { return n.ItemID == itemID })
	b.Derive()
	return len(b.NeededToPurchase) != n
}

// NeedToPurchase is the standalone purchasing worklist row mirrored by
// Billing.NeededToPurchase. It is keyed by item and invoice.
type NeedToPurchase struct {
	entity.BaseDocument

	NeedKey      string         `db:"need_key" json:"needKey"`
	ItemID       string         `db:"item_id" json:"itemId"`
	Name         string         `db:"name" json:"name"`
	InvoiceNo    string         `db:"invoice_no" json:"invoiceNo"`
	CustomerName string         `db:"customer_name" json:"customerName"`
	Quantity     types.Quantity `db:"quantity" json:"quantity"`
}

// NeedKey builds the natural key of a NeedToPurchase row.
func NeedKey(itemID, invoiceNo string) string {
	return itemID + "|" + invoiceNo
}

// NewNeedToPurchase creates a worklist row.
func NewNeedToPurchase(item NeededItem, invoiceNo, customerName, by string) *NeedToPurchase {
	return &NeedToPurchase{
		BaseDocument: entity.NewBaseDocument(by),
		NeedKey:      NeedKey(item.ItemID, invoiceNo),
		ItemID:       item.ItemID,
		Name:         item.Name,
		InvoiceNo:    invoiceNo,
		CustomerName: customerName,
		Quantity:     item.Quantity,
	}
}

// Key implements domain.Aggregate.
func (n *NeedToPurchase) Key() string { return n.NeedKey }

// Repository stores billings.
type Repository interface {
	domain.Repository[*Billing]

	// ListByCustomer returns the billings of one customer.
	ListByCustomer(ctx context.Context, customerID string) ([]*Billing, error)

	// ExistsInvoice reports whether an invoice number is already used.
	ExistsInvoice(ctx context.Context, invoiceNo string) (bool, error)
}

// NeedRepository stores the purchasing worklist.
type NeedRepository interface {
	domain.Repository[*NeedToPurchase]

	// ListByInvoice returns the rows created for one invoice.
	ListByInvoice(ctx context.Context, invoiceNo string) ([]*NeedToPurchase, error)
}
