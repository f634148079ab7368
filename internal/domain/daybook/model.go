// Package daybook records each cash movement posted through a payments account
// as a DailyTransaction, which carries the reference ids needed to reverse it.
package daybook

import (
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/entity"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain"
)

const EntityDailyTransaction = "DailyTransaction"

// Type of a daily transaction.
type Type string

const (
	TypeTransfer Type = "transfer"
	TypeIn       Type = "in"
	TypeOut      Type = "out"
)

// DailyTransaction is the user-visible record of a transfer or a single-sided posting.
type DailyTransaction struct {
	entity.BaseDocument

	Type           Type        `db:"type" json:"type"`
	AccountName    string      `db:"account_name" json:"accountName,omitempty"`
	FromAccount    string      `db:"from_account" json:"fromAccount,omitempty"`
	ToAccount      string      `db:"to_account" json:"toAccount,omitempty"`
	Amount         types.Money `db:"amount" json:"amount"`
	Counterparty   string      `db:"counterparty" json:"counterparty,omitempty"`
	Method         string      `db:"method" json:"method,omitempty"`
	ReferenceID    string      `db:"reference_id" json:"referenceId,omitempty"`
	ReferenceIDOut string      `db:"reference_id_out" json:"referenceIdOut,omitempty"`
	ReferenceIDIn  string      `db:"reference_id_in" json:"referenceIdIn,omitempty"`
	Date           time.Time   `db:"date" json:"date"`
	SubmittedBy    string      `db:"submitted_by" json:"submittedBy"`
	Remark         string      `db:"remark" json:"remark,omitempty"`
}

// Key implements domain.Aggregate.
func (t *DailyTransaction) Key() string { return t.ID.String() }

// Validate checks the shape required by the transaction type.
func (t *DailyTransaction) Validate() error {
	if !t.Amount.IsPositive() {
		return apperror.NewValidation("amount must be greater than zero").WithDetail("field", "amount")
	}
	switch t.Type {
	case TypeTransfer:
		if t.FromAccount == "" || t.ToAccount == "" {
			return apperror.NewValidation("transfer requires source and destination accounts")
		}
		if t.FromAccount == t.ToAccount {
			return apperror.NewValidation("source and destination accounts must differ").
				WithDetail("account", t.FromAccount)
		}
		if t.ReferenceIDOut == "" || t.ReferenceIDIn == "" {
			return apperror.NewValidation("transfer requires both reference ids")
		}
	case TypeIn, TypeOut:
		if t.AccountName == "" {
			return apperror.NewValidation("account is required").WithDetail("field", "accountName")
		}
		if t.ReferenceID == "" {
			return apperror.NewValidation("reference id is required").WithDetail("field", "referenceId")
		}
	default:
		return apperror.NewValidation("unknown transaction type").WithDetail("type", string(t.Type))
	}
	return nil
}

// Repository stores daily transactions keyed by id.
type Repository = domain.Repository[*DailyTransaction]
