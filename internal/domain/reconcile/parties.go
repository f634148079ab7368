package reconcile

import (
	"context"
	"fmt"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/domain/accounts"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/domain/ledger"
)

// OpenPaymentsAccount creates an empty payments account addressed by name.
func (s *Service) OpenPaymentsAccount(ctx context.Context, name string) (*accounts.PaymentsAccount, error) {
	var acc *accounts.PaymentsAccount
	err := s.run(ctx, "open_payments_account", []string{paymentsKey(name)}, func(ss *session) error {
		acc = accounts.NewPaymentsAccount(name, ss.by)
		if err := acc.Validate(); err != nil {
			return err
		}
		exists, err := ss.svc.stores.PaymentsAccounts.Exists(ss.ctx, name)
		if err != nil {
			return err
		}
		if exists {
			return apperror.NewDuplicate(accounts.EntityPaymentsAccount, "name", name)
		}
		ss.payments[name] = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// partyPayment builds the entry shared by a party account and the payments account.
func (ss *session) partyPayment(in PaymentInput, remark string) (ledger.Entry, error) {
	e := ledger.Entry{
		ReferenceID: ss.svc.refs.Next(ledger.PrefixPayment),
		Amount:      in.Amount,
		Method:      in.Method,
		Date:        dateOr(in.Date, ss.now),
		Remark:      remarkOr(in.Remark, remark),
		SubmittedBy: ss.by,
	}
	if err := e.Validate(); err != nil {
		return ledger.Entry{}, err
	}
	if e.MovesCash() {
		acc, err := ss.paymentsAccount(e.Method)
		if err != nil {
			return ledger.Entry{}, err
		}
		if err := acc.Debit(e); err != nil {
			return ledger.Entry{}, err
		}
	}
	return e, nil
}

// dropPartyPayment removes the payments account side of a party payment.
func (ss *session) dropPartyPayment(e ledger.Entry) error {
	if !e.MovesCash() {
		return nil
	}
	acc, err := ss.paymentsAccount(e.Method)
	if err != nil {
		return err
	}
	if !acc.RemoveDebit(e.ReferenceID) {
		return apperror.NewNotFound("LedgerEntry", e.ReferenceID).WithDetail("account", acc.Name)
	}
	return nil
}

// PaySupplier pays down a supplier account. The PAY reference is shared with
// the OUT entry of the paying account.
func (s *Service) PaySupplier(ctx context.Context, supplierID string, in PaymentInput) (ledger.Entry, error) {
	var entry ledger.Entry
	err := s.run(ctx, "pay_supplier", []string{supplierKey(supplierID), paymentsKey(in.Method)}, func(ss *session) error {
		sa, err := ss.supplier(supplierID, "", false)
		if err != nil {
			return err
		}
		entry, err = ss.partyPayment(in, fmt.Sprintf("Payment to supplier %s", sa.SupplierName))
		if err != nil {
			return err
		}
		if err := sa.AddPayment(entry); err != nil {
			return err
		}
		ss.emit(accounts.EntitySupplierAccount, sa.Key(), events.SupplierPaymentPosted, entry)
		return nil
	})
	return entry, err
}

// ReverseSupplierPayment removes a supplier payment from both aggregates.
func (s *Service) ReverseSupplierPayment(ctx context.Context, supplierID, ref string) error {
	return s.run(ctx, "reverse_supplier_payment", []string{supplierKey(supplierID)}, func(ss *session) error {
		sa, err := ss.supplier(supplierID, "", false)
		if err != nil {
			return err
		}
		e, ok := ledger.Find(sa.Payments, ref)
		if !ok {
			return apperror.NewNotFound("SupplierPayment", ref)
		}
		sa.RemovePayment(ref)
		if err := ss.dropPartyPayment(e); err != nil {
			return err
		}
		ss.emit(accounts.EntitySupplierAccount, sa.Key(), events.SupplierPaymentReversed, e)
		return nil
	})
}

// PaySeller pays down a seller payment book.
func (s *Service) PaySeller(ctx context.Context, sellerID string, in PaymentInput) (ledger.Entry, error) {
	var entry ledger.Entry
	err := s.run(ctx, "pay_seller", []string{sellerKey(sellerID), paymentsKey(in.Method)}, func(ss *session) error {
		sp, err := ss.seller(sellerID, "", false)
		if err != nil {
			return err
		}
		entry, err = ss.partyPayment(in, fmt.Sprintf("Payment to seller %s", sp.SellerName))
		if err != nil {
			return err
		}
		if err := sp.AddPayment(entry); err != nil {
			return err
		}
		ss.emit(accounts.EntitySellerPayment, sp.Key(), events.SellerPaymentPosted, entry)
		return nil
	})
	return entry, err
}

// ReverseSellerPayment removes a seller payment from both aggregates.
func (s *Service) ReverseSellerPayment(ctx context.Context, sellerID, ref string) error {
	return s.run(ctx, "reverse_seller_payment", []string{sellerKey(sellerID)}, func(ss *session) error {
		sp, err := ss.seller(sellerID, "", false)
		if err != nil {
			return err
		}
		e, ok := ledger.Find(sp.Payments, ref)
		if !ok {
			return apperror.NewNotFound("SellerPayment", ref)
		}
		sp.RemovePayment(ref)
		if err := ss.dropPartyPayment(e); err != nil {
			return err
		}
		ss.emit(accounts.EntitySellerPayment, sp.Key(), events.SellerPaymentReversed, e)
		return nil
	})
}

// UpdateCustomerAccount renames a customer. The name is propagated to the
// customer's billings, whose calendar events are resynced on save.
func (s *Service) UpdateCustomerAccount(ctx context.Context, customerID, name string) (*accounts.CustomerAccount, error) {
	if name == "" {
		return nil, apperror.NewValidation("customer name is required").WithDetail("field", "customerName")
	}

	var ca *accounts.CustomerAccount
	err := s.run(ctx, "update_customer_account", []string{customerKey(customerID)}, func(ss *session) error {
		var err error
		ca, err = ss.customer(customerID, "", false)
		if err != nil {
			return err
		}
		ca.CustomerName = name
		if err := ca.Recompute(); err != nil {
			return err
		}

		list, err := ss.svc.stores.Billings.ListByCustomer(ss.ctx, customerID)
		if err != nil {
			return err
		}
		for _, listed := range list {
			b, err := ss.billing(listed.Key())
			if err != nil {
				return err
			}
			b.CustomerName = name
		}
		ss.emit(accounts.EntityCustomerAccount, ca.Key(), events.CustomerAccountUpdated, ca)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ca, nil
}

// DeleteCustomerAccount removes the account together with every payment it
// mirrors: the payments leave the customer's billings (whose statuses are
// re-derived on save) and the payments accounts they were credited to.
func (s *Service) DeleteCustomerAccount(ctx context.Context, customerID string) error {
	return s.run(ctx, "delete_customer_account", []string{customerKey(customerID)}, func(ss *session) error {
		ca, err := ss.customer(customerID, "", false)
		if err != nil {
			return err
		}

		list, err := ss.svc.stores.Billings.ListByCustomer(ss.ctx, customerID)
		if err != nil {
			return err
		}
		for _, listed := range list {
			b, err := ss.billing(listed.Key())
			if err != nil {
				return err
			}
			for _, p := range append([]ledger.Entry(nil), b.Payments...) {
				if _, err := b.RemovePayment(p.ReferenceID); err != nil {
					return err
				}
				if !p.MovesCash() {
					continue
				}
				acc, err := ss.paymentsAccount(p.Method)
				if err != nil {
					return err
				}
				acc.RemoveCredit(p.ReferenceID)
			}
		}

		delete(ss.customers, ca.Key())
		if err := remove(ss, accounts.EntityCustomerAccount, ss.svc.stores.Customers, ca.Key()); err != nil {
			return err
		}
		ss.emit(accounts.EntityCustomerAccount, ca.Key(), events.CustomerAccountDeleted, ca)
		return nil
	})
}
