package dto

import (
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/reconcile"
	"tradeledger/internal/domain/stock"
)

// StockUpdateRequest is a manual stock correction.
type StockUpdateRequest struct {
	ItemID     string         `json:"itemId" binding:"required"`
	Quantity   types.Quantity `json:"quantity"`
	ChangeType string         `json:"changeType" binding:"required"`
	InvoiceNo  string         `json:"invoiceNo"`
}

// ToInput converts the request.
func (r StockUpdateRequest) ToInput() reconcile.StockUpdateInput {
	return reconcile.StockUpdateInput{
		ItemID:     r.ItemID,
		Quantity:   r.Quantity,
		ChangeType: stock.ChangeType(r.ChangeType),
		InvoiceNo:  r.InvoiceNo,
	}
}

// ProductResponse is a product with its registry history.
type ProductResponse struct {
	*stock.Product
	Registry []stock.Change `json:"registry"`
}

// UpdateCustomerRequest renames a customer account.
type UpdateCustomerRequest struct {
	CustomerName string `json:"customerName" binding:"required"`
}

// NextNumberResponse returns an allocated document number.
type NextNumberResponse struct {
	Number string `json:"number"`
}
