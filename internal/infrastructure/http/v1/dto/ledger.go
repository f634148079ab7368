package dto

import (
	"time"

	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/daybook"
	"tradeledger/internal/domain/reconcile"
)

// OpenAccountRequest opens a payments account.
type OpenAccountRequest struct {
	Name string `json:"name" binding:"required"`
}

// TransferRequest moves money between two payments accounts.
type TransferRequest struct {
	From   string      `json:"fromAccount" binding:"required"`
	To     string      `json:"toAccount" binding:"required"`
	Amount types.Money `json:"amount"`
	Date   time.Time   `json:"date"`
	Remark string      `json:"remark"`
}

// ToInput converts the request.
func (r TransferRequest) ToInput() reconcile.TransferInput {
	return reconcile.TransferInput{
		From:   r.From,
		To:     r.To,
		Amount: r.Amount,
		Date:   dateOr(r.Date, time.Now()),
		Remark: r.Remark,
	}
}

// SimpleRequest posts money into or out of one payments account.
type SimpleRequest struct {
	Type         string      `json:"type" binding:"required,oneof=in out"`
	Account      string      `json:"accountName" binding:"required"`
	Amount       types.Money `json:"amount"`
	Counterparty string      `json:"counterparty"`
	Method       string      `json:"method"`
	Date         time.Time   `json:"date"`
	Remark       string      `json:"remark"`
}

// ToInput converts the request.
func (r SimpleRequest) ToInput() reconcile.SimpleInput {
	return reconcile.SimpleInput{
		Type:         daybook.Type(r.Type),
		Account:      r.Account,
		Amount:       r.Amount,
		Counterparty: r.Counterparty,
		Method:       r.Method,
		Date:         dateOr(r.Date, time.Now()),
		Remark:       r.Remark,
	}
}

// PaymentRequest is a payment against a billing, supplier or seller.
type PaymentRequest struct {
	Amount types.Money `json:"amount"`
	Method string      `json:"method" binding:"required"`
	Date   time.Time   `json:"date"`
	Remark string      `json:"remark"`
}

// ToInput converts the request.
func (r PaymentRequest) ToInput() reconcile.PaymentInput {
	return reconcile.PaymentInput{
		Amount: r.Amount,
		Method: r.Method,
		Date:   dateOr(r.Date, time.Now()),
		Remark: r.Remark,
	}
}
