// Package ledger holds the Ledger Entry shared by every account aggregate
// and the pure reducer that derives balances from entry arrays.
package ledger

import (
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/types"
)

// MethodInternalTransfer marks a billing payment that moves no cash:
// it is recorded on the billing and the customer account only.
const MethodInternalTransfer = "Internal Transfer"

// Entry is an immutable money movement. Entries are appended and removed,
// never edited in place; an edit is a remove followed by an append.
type Entry struct {
	ReferenceID string      `json:"referenceId"`
	Amount      types.Money `json:"amount"`
	Method      string      `json:"method,omitempty"`
	Date        time.Time   `json:"date"`
	Remark      string      `json:"remark,omitempty"`
	SubmittedBy string      `json:"submittedBy,omitempty"`
	InvoiceNo   string      `json:"invoiceNo,omitempty"`
}

// Validate checks entry invariants.
func (e Entry) Validate() error {
	if e.ReferenceID == "" {
		return apperror.NewValidation("reference id is required").
			WithDetail("field", "referenceId")
	}
	if !e.Amount.IsPositive() {
		return apperror.NewValidation("amount must be greater than zero").
			WithDetail("field", "amount").
			WithDetail("amount", e.Amount.String())
	}
	return nil
}

// MovesCash reports whether the entry's method identifies a PaymentsAccount.
func (e Entry) MovesCash() bool {
	return e.Method != "" && e.Method != MethodInternalTransfer
}
