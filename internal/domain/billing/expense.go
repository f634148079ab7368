package billing

import (
	"slices"
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/id"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/ledger"
)

// ExpenseKind splits delivery costs into fuel and everything else.
type ExpenseKind string

const (
	ExpenseFuel  ExpenseKind = "fuel"
	ExpenseOther ExpenseKind = "other"
)

// Expense is a cost paid out of a PaymentsAccount (Method). Each stored expense
// has exactly one OUT entry in that account, referenced by ledger.ExpenseRef(ID).
type Expense struct {
	ID     string      `json:"id"`
	Kind   ExpenseKind `json:"kind"`
	Amount types.Money `json:"amount"`
	Method string      `json:"method"`
	Remark string      `json:"remark,omitempty"`
	Date   time.Time   `json:"date"`
}

// LedgerEntry is the OUT entry mirroring the expense.
func (e Expense) LedgerEntry(by string) ledger.Entry {
	return ledger.Entry{
		ReferenceID: ledger.ExpenseRef(e.ID),
		Amount:      e.Amount,
		Method:      e.Method,
		Date:        e.Date,
		Remark:      e.Remark,
		SubmittedBy: by,
	}
}

// ExpenseDiff lists the ledger work implied by an expense merge: entries of
// Removed must be deleted from their accounts, entries of Upserted written.
// A method change shows up in both lists.
type ExpenseDiff struct {
	Removed  []Expense
	Upserted []Expense
}

// Append concatenates another diff.
func (d *ExpenseDiff) Append(other ExpenseDiff) {
	d.Removed = append(d.Removed, other.Removed...)
	d.Upserted = append(d.Upserted, other.Upserted...)
}

// IsEmpty reports whether no ledger work is needed.
func (d ExpenseDiff) IsEmpty() bool {
	return len(d.Removed) == 0 && len(d.Upserted) == 0
}

// mergeExpenses upserts incoming into existing by id. A zero amount deletes the
// expense; expenses absent from incoming are kept. Only ids already present in
// existing are honoured, so an EXP-{id} ledger key never names two expenses.
func mergeExpenses(existing, incoming []Expense, now time.Time) ([]Expense, ExpenseDiff, error) {
	out := slices.Clone(existing)
	var diff ExpenseDiff

	for i, in := range incoming {
		if in.Amount.IsNegative() {
			return nil, ExpenseDiff{}, apperror.NewValidation("expense amount cannot be negative").
				WithDetail("line", i+1)
		}
		if in.Kind == "" {
			in.Kind = ExpenseOther
		}
		if in.Kind != ExpenseFuel && in.Kind != ExpenseOther {
			return nil, ExpenseDiff{}, apperror.NewValidation("unknown expense kind").
				WithDetail("kind", string(in.Kind))
		}

		idx := -1
		if in.ID != "" {
			idx = slices.IndexFunc(out, func(e Expense) bool { return e.ID == in.ID })
		}

		if in.Amount.IsZero() {
			if idx >= 0 {
				diff.Removed = append(diff.Removed, out[idx])
				out = slices.Delete(out, idx, idx+1)
			}
			continue
		}

		if in.Method == "" {
			return nil, ExpenseDiff{}, apperror.NewValidation("expense method is required").
				WithDetail("line", i+1)
		}
		if idx < 0 {
			// ids are issued here; an unknown one names a new expense
			in.ID = id.New().String()
		}
		if in.Date.IsZero() {
			in.Date = now
		}

		if idx >= 0 {
			if out[idx].Method != in.Method {
				diff.Removed = append(diff.Removed, out[idx])
			}
			out[idx] = in
		} else {
			out = append(out, in)
		}
		diff.Upserted = append(diff.Upserted, in)
	}
	return out, diff, nil
}

// UpsertOtherExpenses merges billing-level expenses.
func (b *Billing) UpsertOtherExpenses(incoming []Expense) (ExpenseDiff, error) {
	merged, diff, err := mergeExpenses(b.OtherExpenses, incoming, time.Now().UTC())
	if err != nil {
		return ExpenseDiff{}, err
	}
	b.OtherExpenses = merged
	b.Derive()
	return diff, nil
}

// AllExpenses returns billing-level and delivery expenses.
func (b *Billing) AllExpenses() []Expense {
	all := slices.Clone(b.OtherExpenses)
	for _, d := range b.Deliveries {
		all = append(all, d.Expenses...)
	}
	return all
}
