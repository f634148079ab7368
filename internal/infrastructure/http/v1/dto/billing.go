package dto

import (
	"time"

	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/billing"
	"tradeledger/internal/domain/reconcile"
)

// BillingLine is one ordered product.
type BillingLine struct {
	ItemID       string         `json:"itemId" binding:"required"`
	Quantity     types.Quantity `json:"quantity"`
	SellingPrice types.Money    `json:"sellingPrice"`
}

// CreateBillingRequest records a sale.
type CreateBillingRequest struct {
	InvoiceNo    string        `json:"invoiceNo" binding:"required"`
	InvoiceDate  time.Time     `json:"invoiceDate"`
	CustomerID   string        `json:"customerId" binding:"required"`
	CustomerName string        `json:"customerName"`
	GrandTotal   types.Money   `json:"grandTotal"`
	Products     []BillingLine `json:"products" binding:"required,min=1,dive"`
	Remark       string        `json:"remark"`
}

// ToInput converts the request.
func (r CreateBillingRequest) ToInput() reconcile.CreateBillingInput {
	lines := make([]reconcile.BillingLineInput, 0, len(r.Products))
	for _, p := range r.Products {
		lines = append(lines, reconcile.BillingLineInput{
			ItemID:       p.ItemID,
			Quantity:     p.Quantity,
			SellingPrice: p.SellingPrice,
		})
	}
	return reconcile.CreateBillingInput{
		InvoiceNo:    r.InvoiceNo,
		InvoiceDate:  dateOr(r.InvoiceDate, time.Now()),
		CustomerID:   r.CustomerID,
		CustomerName: r.CustomerName,
		GrandTotal:   r.GrandTotal,
		Products:     lines,
		Remark:       r.Remark,
	}
}

// StartDeliveryRequest opens a delivery. DeliveryID is optional.
type StartDeliveryRequest struct {
	DeliveryID string           `json:"deliveryId"`
	DriverID   string           `json:"driverId"`
	Location   billing.GeoStamp `json:"location"`
}

// ToInput converts the request.
func (r StartDeliveryRequest) ToInput() reconcile.StartDeliveryInput {
	return reconcile.StartDeliveryInput{
		DeliveryID: r.DeliveryID,
		DriverID:   r.DriverID,
		Location:   r.Location,
	}
}

// DeliveryIDResponse returns the id of a started delivery.
type DeliveryIDResponse struct {
	DeliveryID string `json:"deliveryId"`
}

// EndDeliveryRequest closes a delivery.
type EndDeliveryRequest struct {
	Location billing.GeoStamp        `json:"location"`
	Products []billing.DeliveredItem `json:"productsDelivered"`
	Expenses []billing.Expense       `json:"expenses"`
}

// ToInput converts the request.
func (r EndDeliveryRequest) ToInput() reconcile.EndDeliveryInput {
	return reconcile.EndDeliveryInput{
		Location: r.Location,
		Products: r.Products,
		Expenses: r.Expenses,
	}
}

// ExpensesRequest replaces the top-level expenses of a billing. An expense
// with amount 0 deletes the stored expense with the same id.
type ExpensesRequest struct {
	Expenses []billing.Expense `json:"otherExpenses"`
}
