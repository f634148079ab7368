package dto

import (
	"time"

	"tradeledger/internal/domain/billing"
	"tradeledger/internal/domain/purchase"
	"tradeledger/internal/domain/reconcile"
	"tradeledger/internal/domain/returns"
)

// PurchaseRequest creates or replaces a purchase. PurchaseID is optional on create.
type PurchaseRequest struct {
	PurchaseID     string                  `json:"purchaseId"`
	SellerID       string                  `json:"sellerId" binding:"required"`
	SellerName     string                  `json:"sellerName"`
	InvoiceNo      string                  `json:"invoiceNo"`
	PurchaseDate   time.Time               `json:"purchaseDate"`
	Items          []purchase.Item         `json:"items" binding:"required,min=1"`
	Transportation purchase.Transportation `json:"transportationDetails"`
	OtherExpenses  []billing.Expense       `json:"otherExpenses"`
}

// ToInput converts the request.
func (r PurchaseRequest) ToInput() reconcile.PurchaseInput {
	return reconcile.PurchaseInput{
		PurchaseID:     r.PurchaseID,
		SellerID:       r.SellerID,
		SellerName:     r.SellerName,
		InvoiceNo:      r.InvoiceNo,
		PurchaseDate:   dateOr(r.PurchaseDate, time.Now()),
		Items:          r.Items,
		Transportation: r.Transportation,
		OtherExpenses:  r.OtherExpenses,
	}
}

// ReturnRequest records a bill or purchase return.
type ReturnRequest struct {
	ReturnType string         `json:"returnType" binding:"required,oneof=bill purchase"`
	ReturnNo   string         `json:"returnNo"`
	RelatedNo  string         `json:"relatedNo" binding:"required"`
	Products   []returns.Item `json:"products" binding:"required,min=1"`
	ReturnDate time.Time      `json:"returnDate"`
	Remark     string         `json:"remark"`
}

// ToInput converts the request.
func (r ReturnRequest) ToInput() reconcile.ReturnInput {
	return reconcile.ReturnInput{
		ReturnType: returns.Type(r.ReturnType),
		ReturnNo:   r.ReturnNo,
		RelatedNo:  r.RelatedNo,
		Products:   r.Products,
		ReturnDate: dateOr(r.ReturnDate, time.Now()),
		Remark:     r.Remark,
	}
}
