// Package accounts contains the four account aggregates whose derived
// scalars are recomputed from their entry arrays by one shared reducer.
package accounts

import (
	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/entity"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/ledger"
)

// Entity names used in errors, audit rows and lock keys.
const (
	EntityPaymentsAccount = "PaymentsAccount"
	EntitySupplierAccount = "SupplierAccount"
	EntitySellerPayment   = "SellerPayment"
	EntityCustomerAccount = "CustomerAccount"
)

// settle is the shared recompute step: full reduction, then the uniform
// non-negative policy.
func settle(entityName, key string, in, out []ledger.Entry) (ledger.Totals, error) {
	totals := ledger.Reduce(in, out)
	if totals.Net.IsNegative() {
		return totals, apperror.NewInsufficientFunds(entityName, key, totals.Net.String())
	}
	return totals, nil
}

func appendEntry(entries []ledger.Entry, e ledger.Entry) ([]ledger.Entry, error) {
	if err := e.Validate(); err != nil {
		return entries, err
	}
	if ledger.IndexOf(entries, e.ReferenceID) >= 0 {
		return entries, apperror.NewDuplicate("LedgerEntry", "referenceId", e.ReferenceID)
	}
	return append(entries, e), nil
}

// PaymentsAccount is a cash/bank/wallet book. Its Name is the payment method
// string other aggregates use to address it.
type PaymentsAccount struct {
	entity.BaseDocument

	Name          string         `db:"name" json:"name"`
	PaymentsIn    []ledger.Entry `db:"payments_in" json:"paymentsIn"`
	PaymentsOut   []ledger.Entry `db:"payments_out" json:"paymentsOut"`
	BalanceAmount types.Money    `db:"balance_amount" json:"balanceAmount"`
}

// NewPaymentsAccount creates an empty account.
func NewPaymentsAccount(name, by string) *PaymentsAccount {
	return &PaymentsAccount{
		BaseDocument: entity.NewBaseDocument(by),
		Name:         name,
		PaymentsIn:   []ledger.Entry{},
		PaymentsOut:  []ledger.Entry{},
	}
}

// Key implements domain.Aggregate.
func (a *PaymentsAccount) Key() string { return a.Name }

// Validate checks account invariants.
func (a *PaymentsAccount) Validate() error {
	if a.Name == "" {
		return apperror.NewValidation("account name is required").WithDetail("field", "name")
	}
	return nil
}

// Recompute sets BalanceAmount = Σin − Σout.
func (a *PaymentsAccount) Recompute() error {
	totals, err := settle(EntityPaymentsAccount, a.Name, a.PaymentsIn, a.PaymentsOut)
	a.BalanceAmount = totals.Net
	return err
}

// Credit appends an IN entry.
func (a *PaymentsAccount) Credit(e ledger.Entry) (err error) {
	a.PaymentsIn, err = appendEntry(a.PaymentsIn, e)
	return err
}

// Debit appends an OUT entry.
func (a *PaymentsAccount) Debit(e ledger.Entry) (err error) {
	a.PaymentsOut, err = appendEntry(a.PaymentsOut, e)
	return err
}

// UpsertDebit replaces or appends the OUT entry keyed by e.ReferenceID.
// An existing entry posted for another document is never replaced.
func (a *PaymentsAccount) UpsertDebit(e ledger.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if cur, ok := ledger.Find(a.PaymentsOut, e.ReferenceID); ok && cur.InvoiceNo != e.InvoiceNo {
		return apperror.NewConflict("ledger entry belongs to another document").
			WithDetail("account", a.Name).
			WithDetail("referenceId", e.ReferenceID).
			WithDetail("invoiceNo", cur.InvoiceNo)
	}
	a.PaymentsOut = ledger.Upsert(a.PaymentsOut, e)
	return nil
}

// RemoveCredit drops the IN entry with ref.
func (a *PaymentsAccount) RemoveCredit(ref string) bool {
	var ok bool
	a.PaymentsIn, ok = ledger.Remove(a.PaymentsIn, ref)
	return ok
}

// RemoveDebit drops the OUT entry with ref.
func (a *PaymentsAccount) RemoveDebit(ref string) bool {
	var ok bool
	a.PaymentsOut, ok = ledger.Remove(a.PaymentsOut, ref)
	return ok
}

// SupplierAccount tracks bill-part purchase amounts owed to a supplier.
type SupplierAccount struct {
	entity.BaseDocument

	SupplierID      string         `db:"supplier_id" json:"supplierId"`
	SupplierName    string         `db:"supplier_name" json:"supplierName"`
	Bills           []ledger.Entry `db:"bills" json:"bills"`
	Payments        []ledger.Entry `db:"payments" json:"payments"`
	TotalBillAmount types.Money    `db:"total_bill_amount" json:"totalBillAmount"`
	PaidAmount      types.Money    `db:"paid_amount" json:"paidAmount"`
	PendingAmount   types.Money    `db:"pending_amount" json:"pendingAmount"`
}

// NewSupplierAccount creates an empty supplier account.
func NewSupplierAccount(supplierID, name, by string) *SupplierAccount {
	return &SupplierAccount{
		BaseDocument: entity.NewBaseDocument(by),
		SupplierID:   supplierID,
		SupplierName: name,
		Bills:        []ledger.Entry{},
		Payments:     []ledger.Entry{},
	}
}

// Key implements domain.Aggregate.
func (a *SupplierAccount) Key() string { return a.SupplierID }

// Recompute derives totals and pending amount.
func (a *SupplierAccount) Recompute() error {
	totals, err := settle(EntitySupplierAccount, a.SupplierID, a.Bills, a.Payments)
	a.TotalBillAmount, a.PaidAmount, a.PendingAmount = totals.In, totals.Out, totals.Net
	return err
}

// UpsertBill records the bill line of a purchase (ref = purchase id).
func (a *SupplierAccount) UpsertBill(e ledger.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	a.Bills = ledger.Upsert(a.Bills, e)
	return nil
}

// RemoveBill drops the bill line with ref.
func (a *SupplierAccount) RemoveBill(ref string) bool {
	var ok bool
	a.Bills, ok = ledger.Remove(a.Bills, ref)
	return ok
}

// AddPayment appends a payment made to the supplier.
func (a *SupplierAccount) AddPayment(e ledger.Entry) (err error) {
	a.Payments, err = appendEntry(a.Payments, e)
	return err
}

// RemovePayment drops the payment with ref.
func (a *SupplierAccount) RemovePayment(ref string) bool {
	var ok bool
	a.Payments, ok = ledger.Remove(a.Payments, ref)
	return ok
}

// SellerPayment tracks full purchase amounts billed by a seller and what was paid.
type SellerPayment struct {
	entity.BaseDocument

	SellerID          string         `db:"seller_id" json:"sellerId"`
	SellerName        string         `db:"seller_name" json:"sellerName"`
	Billings          []ledger.Entry `db:"billings" json:"billings"`
	Payments          []ledger.Entry `db:"payments" json:"payments"`
	TotalAmountBilled types.Money    `db:"total_amount_billed" json:"totalAmountBilled"`
	TotalAmountPaid   types.Money    `db:"total_amount_paid" json:"totalAmountPaid"`
	PaymentRemaining  types.Money    `db:"payment_remaining" json:"paymentRemaining"`
}

// NewSellerPayment creates an empty seller payment book.
func NewSellerPayment(sellerID, name, by string) *SellerPayment {
	return &SellerPayment{
		BaseDocument: entity.NewBaseDocument(by),
		SellerID:     sellerID,
		SellerName:   name,
		Billings:     []ledger.Entry{},
		Payments:     []ledger.Entry{},
	}
}

// Key implements domain.Aggregate.
func (s *SellerPayment) Key() string { return s.SellerID }

// Recompute derives billed, paid and remaining amounts.
func (s *SellerPayment) Recompute() error {
	totals, err := settle(EntitySellerPayment, s.SellerID, s.Billings, s.Payments)
	s.TotalAmountBilled, s.TotalAmountPaid, s.PaymentRemaining = totals.In, totals.Out, totals.Net
	return err
}

// UpsertBilling records the billing line of a purchase (ref = purchase id).
func (s *SellerPayment) UpsertBilling(e ledger.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.Billings = ledger.Upsert(s.Billings, e)
	return nil
}

// RemoveBilling drops the billing line with ref.
func (s *SellerPayment) RemoveBilling(ref string) bool {
	var ok bool
	s.Billings, ok = ledger.Remove(s.Billings, ref)
	return ok
}

// AddPayment appends a payment made to the seller.
func (s *SellerPayment) AddPayment(e ledger.Entry) (err error) {
	s.Payments, err = appendEntry(s.Payments, e)
	return err
}

// RemovePayment drops the payment with ref.
func (s *SellerPayment) RemovePayment(ref string) bool {
	var ok bool
	s.Payments, ok = ledger.Remove(s.Payments, ref)
	return ok
}

// CustomerAccount tracks billed invoices and payments of one customer.
type CustomerAccount struct {
	entity.BaseDocument

	CustomerID      string         `db:"customer_id" json:"customerId"`
	CustomerName    string         `db:"customer_name" json:"customerName"`
	Bills           []ledger.Entry `db:"bills" json:"bills"`
	Payments        []ledger.Entry `db:"payments" json:"payments"`
	TotalBillAmount types.Money    `db:"total_bill_amount" json:"totalBillAmount"`
	PaidAmount      types.Money    `db:"paid_amount" json:"paidAmount"`
	PendingAmount   types.Money    `db:"pending_amount" json:"pendingAmount"`
}

// NewCustomerAccount creates an empty customer account.
func NewCustomerAccount(customerID, name, by string) *CustomerAccount {
	return &CustomerAccount{
		BaseDocument: entity.NewBaseDocument(by),
		CustomerID:   customerID,
		CustomerName: name,
		Bills:        []ledger.Entry{},
		Payments:     []ledger.Entry{},
	}
}

// Key implements domain.Aggregate.
func (c *CustomerAccount) Key() string { return c.CustomerID }

// Recompute derives totals and pending amount.
func (c *CustomerAccount) Recompute() error {
	totals, err := settle(EntityCustomerAccount, c.CustomerID, c.Bills, c.Payments)
	c.TotalBillAmount, c.PaidAmount, c.PendingAmount = totals.In, totals.Out, totals.Net
	return err
}

// UpsertBill records the bill line of an invoice (ref = invoice number).
func (c *CustomerAccount) UpsertBill(e ledger.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	c.Bills = ledger.Upsert(c.Bills, e)
	return nil
}

// RemoveBill drops the bill line with ref.
func (c *CustomerAccount) RemoveBill(ref string) bool {
	var ok bool
	c.Bills, ok = ledger.Remove(c.Bills, ref)
	return ok
}

// UpsertPayment replaces or appends a payment mirrored from a billing.
func (c *CustomerAccount) UpsertPayment(e ledger.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	c.Payments = ledger.Upsert(c.Payments, e)
	return nil
}

// RemovePayment drops the payment with ref.
func (c *CustomerAccount) RemovePayment(ref string) bool {
	var ok bool
	c.Payments, ok = ledger.Remove(c.Payments, ref)
	return ok
}
