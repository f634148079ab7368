package reconcile

import (
	"context"
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/billing"
	"tradeledger/internal/domain/calendar"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/domain/ledger"
	"tradeledger/internal/domain/stock"
)

// BillingLineInput is one ordered product of a new billing.
type BillingLineInput struct {
	ItemID       string
	Quantity     types.Quantity
	SellingPrice types.Money
}

// CreateBillingInput creates a sale.
type CreateBillingInput struct {
	InvoiceNo    string
	InvoiceDate  time.Time
	CustomerID   string
	CustomerName string
	GrandTotal   types.Money
	Products     []BillingLineInput
	Remark       string
}

// PaymentInput is a payment against a billing, supplier or seller.
type PaymentInput struct {
	Amount types.Money
	Method string
	Date   time.Time
	Remark string
}

// CreateBilling records a sale: stock is taken for every line as far as it goes,
// the uncovered remainder becomes a needed-to-purchase line, and the invoice is
// billed to the customer account.
func (s *Service) CreateBilling(ctx context.Context, in CreateBillingInput) (*billing.Billing, error) {
	keys := []string{customerKey(in.CustomerID)}
	for _, l := range in.Products {
		keys = append(keys, productKey(l.ItemID))
	}

	var b *billing.Billing
	err := s.run(ctx, "create_billing", keys, func(ss *session) error {
		lines := make([]billing.Product, 0, len(in.Products))
		for _, l := range in.Products {
			lines = append(lines, billing.Product{ItemID: l.ItemID, Quantity: l.Quantity, SellingPrice: l.SellingPrice})
		}
		b = billing.NewBilling(in.InvoiceNo, in.CustomerID, in.CustomerName, in.GrandTotal, lines, ss.by)
		b.Remark = in.Remark
		if !in.InvoiceDate.IsZero() {
			b.InvoiceDate = in.InvoiceDate.UTC()
		}
		if err := b.Validate(); err != nil {
			return err
		}

		exists, err := ss.svc.stores.Billings.ExistsInvoice(ss.ctx, b.InvoiceNo)
		if err != nil {
			return err
		}
		if exists {
			return apperror.NewDuplicate(billing.EntityBilling, "invoiceNo", b.InvoiceNo)
		}

		for i := range b.Products {
			line := &b.Products[i]
			p, err := ss.product(line.ItemID)
			if err != nil {
				return err
			}
			line.Name = p.Name

			take := min(line.Quantity, p.CountInStock)
			if take.IsPositive() {
				if _, err := ss.applyStock(p, take.Neg(), stock.ChangeSalesBilling, b.InvoiceNo); err != nil {
					return err
				}
			}
			if shortage := line.Quantity - take; shortage.IsPositive() {
				item := billing.NeededItem{ItemID: p.ItemID, Name: p.Name, Quantity: shortage}
				b.AddNeeded(item)
				need := billing.NewNeedToPurchase(item, b.InvoiceNo, b.CustomerName, ss.by)
				if err := save[*billing.NeedToPurchase](ss, billing.EntityNeedToPurchase, ss.svc.stores.Needs, need); err != nil {
					return err
				}
			}
		}

		ca, err := ss.customer(b.CustomerID, b.CustomerName, true)
		if err != nil {
			return err
		}
		if b.GrandTotal.IsPositive() {
			if err := ca.UpsertBill(ledger.Entry{
				ReferenceID: b.InvoiceNo,
				Amount:      b.GrandTotal,
				Date:        b.InvoiceDate,
				SubmittedBy: ss.by,
				InvoiceNo:   b.InvoiceNo,
			}); err != nil {
				return err
			}
		}

		ss.trackBilling(b)
		ss.emit(billing.EntityBilling, b.Key(), events.BillingCreated, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// DeleteBilling undoes everything the billing caused: payments leave their
// payments accounts and the customer account, expenses leave their accounts,
// sold stock comes back, worklist rows and the calendar event go away.
func (s *Service) DeleteBilling(ctx context.Context, billingID string) error {
	return s.run(ctx, "delete_billing", []string{billingKey(billingID)}, func(ss *session) error {
		b, err := ss.billing(billingID)
		if err != nil {
			return err
		}

		ca, err := ss.customer(b.CustomerID, b.CustomerName, false)
		if err != nil && !apperror.IsNotFound(err) {
			return err
		}
		for _, p := range b.Payments {
			if p.MovesCash() {
				acc, err := ss.paymentsAccount(p.Method)
				if err != nil {
					return err
				}
				acc.RemoveCredit(p.ReferenceID)
			}
			if ca != nil {
				ca.RemovePayment(p.ReferenceID)
			}
		}
		if ca != nil {
			ca.RemoveBill(b.InvoiceNo)
		}

		if err := ss.removeExpenseEntries(b.AllExpenses()); err != nil {
			return err
		}

		for _, line := range b.Products {
			sold := line.Quantity
			for _, n := range b.NeededToPurchase {
				if n.ItemID == line.ItemID {
					sold -= n.Quantity
				}
			}
			if !sold.IsPositive() {
				continue
			}
			p, err := ss.product(line.ItemID)
			if err != nil {
				return err
			}
			if _, err := ss.applyStock(p, sold, stock.ChangeSalesBillingDeleted, b.InvoiceNo); err != nil {
				return err
			}
		}

		needs, err := ss.svc.stores.Needs.ListByInvoice(ss.ctx, b.InvoiceNo)
		if err != nil {
			return err
		}
		for _, n := range needs {
			if err := remove[*billing.NeedToPurchase](ss, billing.EntityNeedToPurchase, ss.svc.stores.Needs, n.Key()); err != nil {
				return err
			}
		}

		eventKey := calendar.SourceKey(calendar.SourceBilling, b.Key())
		if exists, err := ss.svc.stores.Events.Exists(ss.ctx, eventKey); err != nil {
			return err
		} else if exists {
			if err := remove(ss, calendar.EntityEvent, ss.svc.stores.Events, eventKey); err != nil {
				return err
			}
		}

		delete(ss.billings, b.Key())
		if err := remove[*billing.Billing](ss, billing.EntityBilling, ss.svc.stores.Billings, b.Key()); err != nil {
			return err
		}
		ss.emit(billing.EntityBilling, b.Key(), events.BillingDeleted, b)
		return nil
	})
}

// AddBillingPayment records a payment on the billing, credits the payments
// account named by the method and mirrors it on the customer account.
// All three copies share the PAY<ts> reference id.
func (s *Service) AddBillingPayment(ctx context.Context, billingID string, in PaymentInput) (ledger.Entry, error) {
	var entry ledger.Entry
	err := s.run(ctx, "add_billing_payment", []string{billingKey(billingID), paymentsKey(in.Method)}, func(ss *session) error {
		b, err := ss.billing(billingID)
		if err != nil {
			return err
		}

		entry = ledger.Entry{
			ReferenceID: ss.svc.refs.Next(ledger.PrefixPayment),
			Amount:      in.Amount,
			Method:      in.Method,
			Date:        dateOr(in.Date, ss.now),
			Remark:      in.Remark,
			SubmittedBy: ss.by,
		}
		if err := b.AddPayment(entry); err != nil {
			return err
		}
		entry.InvoiceNo = b.InvoiceNo

		if err := ss.mirrorPayment(b, ledger.Entry{}, entry); err != nil {
			return err
		}
		ss.emit(billing.EntityBilling, b.Key(), events.BillingPaymentAdded, entry)
		return nil
	})
	return entry, err
}

// UpdateBillingPayment edits a payment in place across all three aggregates.
// A method change moves the entry to the other payments account.
func (s *Service) UpdateBillingPayment(ctx context.Context, billingID, ref string, in PaymentInput) (ledger.Entry, error) {
	var entry ledger.Entry
	err := s.run(ctx, "update_billing_payment", []string{billingKey(billingID), paymentsKey(in.Method)}, func(ss *session) error {
		b, err := ss.billing(billingID)
		if err != nil {
			return err
		}

		entry = ledger.Entry{
			ReferenceID: ref,
			Amount:      in.Amount,
			Method:      in.Method,
			Date:        dateOr(in.Date, ss.now),
			Remark:      in.Remark,
			SubmittedBy: ss.by,
			InvoiceNo:   b.InvoiceNo,
		}
		old, err := b.UpdatePayment(ref, entry)
		if err != nil {
			return err
		}
		if err := ss.mirrorPayment(b, old, entry); err != nil {
			return err
		}
		ss.emit(billing.EntityBilling, b.Key(), events.BillingPaymentUpdated, entry)
		return nil
	})
	return entry, err
}

// DeleteBillingPayment removes a payment from the billing, its payments account
// and the customer account.
func (s *Service) DeleteBillingPayment(ctx context.Context, billingID, ref string) error {
	return s.run(ctx, "delete_billing_payment", []string{billingKey(billingID)}, func(ss *session) error {
		b, err := ss.billing(billingID)
		if err != nil {
			return err
		}
		old, err := b.RemovePayment(ref)
		if err != nil {
			return err
		}
		if err := ss.mirrorPayment(b, old, ledger.Entry{}); err != nil {
			return err
		}
		ss.emit(billing.EntityBilling, b.Key(), events.BillingPaymentDeleted, old)
		return nil
	})
}

// mirrorPayment replaces old with next in the payments accounts and the customer
// account. A zero-value entry means "none".
func (ss *session) mirrorPayment(b *billing.Billing, old, next ledger.Entry) error {
	if old.ReferenceID != "" && old.MovesCash() {
		acc, err := ss.paymentsAccount(old.Method)
		if err != nil {
			return err
		}
		if !acc.RemoveCredit(old.ReferenceID) {
			return apperror.NewNotFound("LedgerEntry", old.ReferenceID).WithDetail("account", acc.Name)
		}
	}
	if next.ReferenceID != "" && next.MovesCash() {
		acc, err := ss.paymentsAccount(next.Method)
		if err != nil {
			return err
		}
		if err := acc.Credit(next); err != nil {
			return err
		}
	}

	ca, err := ss.customer(b.CustomerID, b.CustomerName, true)
	if err != nil {
		return err
	}
	if next.ReferenceID == "" {
		ca.RemovePayment(old.ReferenceID)
		return nil
	}
	return ca.UpsertPayment(next)
}
