package billing

import (
	"slices"
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/id"
	"tradeledger/internal/core/types"
)

// GeoStamp is a GPS fix taken at delivery start or end.
type GeoStamp struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Time      time.Time `json:"time"`
}

// DeliveredItem is the quantity of one product handed over in a delivery.
type DeliveredItem struct {
	ItemID   string         `json:"itemId"`
	Quantity types.Quantity `json:"quantity"`
}

// Delivery is one trip fulfilling part of a billing.
type Delivery struct {
	DeliveryID        string          `json:"deliveryId"`
	DriverID          string          `json:"driverId,omitempty"`
	StartLocation     *GeoStamp       `json:"startLocation,omitempty"`
	EndLocation       *GeoStamp       `json:"endLocation,omitempty"`
	ProductsDelivered []DeliveredItem `json:"productsDelivered"`
	Expenses          []Expense       `json:"expenses"`
	DeliveryStatus    DeliveryStatus  `json:"deliveryStatus"`
	Ended             bool            `json:"ended"`
}

func (b *Billing) deliveryIndex(deliveryID string) int {
	return slices.IndexFunc(b.Deliveries, func(d Delivery) bool { return d.DeliveryID == deliveryID })
}

// Delivery returns a copy of the delivery with deliveryID.
func (b *Billing) Delivery(deliveryID string) (Delivery, bool) {
	if i := b.deliveryIndex(deliveryID); i >= 0 {
		return b.Deliveries[i], true
	}
	return Delivery{}, false
}

// StartDelivery opens a new delivery and returns its id.
func (b *Billing) StartDelivery(deliveryID, driverID string, start GeoStamp) (string, error) {
	if deliveryID == "" {
		deliveryID = id.New().String()
	}
	if b.deliveryIndex(deliveryID) >= 0 {
		return "", apperror.NewDuplicate("Delivery", "deliveryId", deliveryID)
	}
	if start.Time.IsZero() {
		start.Time = time.Now().UTC()
	}
	b.Deliveries = append(b.Deliveries, Delivery{
		DeliveryID:        deliveryID,
		DriverID:          driverID,
		StartLocation:     &start,
		ProductsDelivered: []DeliveredItem{},
		Expenses:          []Expense{},
		DeliveryStatus:    DeliveryPending,
	})
	b.Derive()
	return deliveryID, nil
}

// EndDelivery closes a delivery: adds the reported quantities to the product
// lines, enforcing the ordered-quantity cap, and merges its expenses.
//
// Ending an already ended delivery replaces its previous report: the old
// quantities are taken back before the new ones are applied.
// On error the billing is unchanged.
func (b *Billing) EndDelivery(deliveryID string, end GeoStamp, items []DeliveredItem, expenses []Expense) (ExpenseDiff, error) {
	idx := b.deliveryIndex(deliveryID)
	if idx < 0 {
		return ExpenseDiff{}, apperror.NewNotFound("Delivery", deliveryID)
	}
	d := b.Deliveries[idx]

	products := slices.Clone(b.Products)
	if d.Ended {
		revertDelivered(products, d.ProductsDelivered)
	}

	for i, it := range items {
		if it.Quantity.IsNegative() {
			return ExpenseDiff{}, apperror.NewValidation("delivered quantity cannot be negative").
				WithDetail("itemId", it.ItemID).WithDetail("line", i+1)
		}
	}
	reported := collapseItems(items)
	for _, it := range reported {
		pi := slices.IndexFunc(products, func(p Product) bool { return p.ItemID == it.ItemID })
		if pi < 0 {
			return ExpenseDiff{}, apperror.NewNotFound("BillingProduct", it.ItemID).
				WithDetail("invoiceNo", b.InvoiceNo)
		}
		p := &products[pi]
		cumulative := p.DeliveredQuantity + it.Quantity
		if cumulative > p.Quantity {
			return ExpenseDiff{}, apperror.NewOverDelivery(p.ItemID, p.Quantity.Float64(), cumulative.Float64())
		}
		p.DeliveredQuantity = cumulative
		p.DeliveryStatus = deriveLineStatus(p.Quantity, p.DeliveredQuantity)
	}

	now := time.Now().UTC()
	merged, diff, err := mergeExpenses(d.Expenses, expenses, now)
	if err != nil {
		return ExpenseDiff{}, err
	}

	if end.Time.IsZero() {
		end.Time = now
	}
	d.EndLocation = &end
	d.ProductsDelivered = reported
	d.Expenses = merged
	d.Ended = true

	touched := make([]DeliveryStatus, 0, len(reported))
	for _, it := range reported {
		pi := slices.IndexFunc(products, func(p Product) bool { return p.ItemID == it.ItemID })
		touched = append(touched, products[pi].DeliveryStatus)
	}
	d.DeliveryStatus = aggregateStatus(touched)

	b.Products = products
	b.Deliveries[idx] = d
	b.Derive()
	return diff, nil
}

// CancelDelivery removes a delivery, takes back its delivered quantities and
// returns its expenses, whose ledger entries must be removed.
func (b *Billing) CancelDelivery(deliveryID string) ([]Expense, error) {
	idx := b.deliveryIndex(deliveryID)
	if idx < 0 {
		return nil, apperror.NewNotFound("Delivery", deliveryID)
	}
	d := b.Deliveries[idx]
	if d.Ended {
		revertDelivered(b.Products, d.ProductsDelivered)
	}
	b.Deliveries = slices.Delete(b.Deliveries, idx, idx+1)
	b.Derive()
	return d.Expenses, nil
}

func revertDelivered(products []Product, items []DeliveredItem) {
	for _, it := range items {
		for i := range products {
			if products[i].ItemID == it.ItemID {
				products[i].DeliveredQuantity -= it.Quantity
				if products[i].DeliveredQuantity.IsNegative() {
					products[i].DeliveredQuantity = 0
				}
			}
		}
	}
}

// collapseItems merges repeated item ids, keeping first-seen order.
// collapseItems sums quantities per item and drops zero lines, which report
// that nothing of the item was delivered.
func collapseItems(items []DeliveredItem) []DeliveredItem {
	out := make([]DeliveredItem, 0, len(items))
	for _, it := range items {
		if it.Quantity.IsZero() {
			continue
		}
		if i := slices.IndexFunc(out, func(o DeliveredItem) bool { return o.ItemID == it.ItemID }); i >= 0 {
			out[i].Quantity += it.Quantity
			continue
		}
		out = append(out, it)
	}
	return out
}
