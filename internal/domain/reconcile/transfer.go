package reconcile

import (
	"context"
	"fmt"
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/entity"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/accounts"
	"tradeledger/internal/domain/daybook"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/domain/ledger"
)

// TransferInput moves money between two payments accounts.
type TransferInput struct {
	From   string
	To     string
	Amount types.Money
	Date   time.Time
	Remark string
}

// SimpleInput posts a single-sided movement on one payments account.
type SimpleInput struct {
	Type         daybook.Type // in or out
	Account      string
	Amount       types.Money
	Counterparty string
	Method       string
	Date         time.Time
	Remark       string
}

// PostTransfer debits From and credits To with a pair of entries sharing one
// timestamp (OUT<ts>/IN<ts>), and records the DailyTransaction that links them.
func (s *Service) PostTransfer(ctx context.Context, in TransferInput) (*daybook.DailyTransaction, error) {
	if !in.Amount.IsPositive() {
		return nil, apperror.NewValidation("amount must be greater than zero").WithDetail("field", "amount")
	}
	if in.From == in.To {
		return nil, apperror.NewValidation("source and destination accounts must differ").WithDetail("account", in.From)
	}

	var dt *daybook.DailyTransaction
	err := s.run(ctx, "post_transfer", []string{paymentsKey(in.From), paymentsKey(in.To)}, func(ss *session) error {
		from, err := ss.paymentsAccount(in.From)
		if err != nil {
			return err
		}
		to, err := ss.paymentsAccount(in.To)
		if err != nil {
			return err
		}

		if balance := ledger.Reduce(from.PaymentsIn, from.PaymentsOut).Net; balance.LessThan(in.Amount) {
			return apperror.NewInsufficientFunds(accounts.EntityPaymentsAccount, from.Name, balance.Sub(in.Amount).String()).
				WithDetail("requested", in.Amount.String())
		}

		date := dateOr(in.Date, ss.now)
		outRef, inRef := ss.svc.refs.Pair()
		if err := from.Debit(ledger.Entry{
			ReferenceID: outRef,
			Amount:      in.Amount,
			Method:      to.Name,
			Date:        date,
			Remark:      remarkOr(in.Remark, fmt.Sprintf("Transfer to %s", to.Name)),
			SubmittedBy: ss.by,
		}); err != nil {
			return err
		}
		if err := to.Credit(ledger.Entry{
			ReferenceID: inRef,
			Amount:      in.Amount,
			Method:      from.Name,
			Date:        date,
			Remark:      remarkOr(in.Remark, fmt.Sprintf("Transfer from %s", from.Name)),
			SubmittedBy: ss.by,
		}); err != nil {
			return err
		}

		dt = &daybook.DailyTransaction{
			BaseDocument:   entity.NewBaseDocument(ss.by),
			Type:           daybook.TypeTransfer,
			FromAccount:    from.Name,
			ToAccount:      to.Name,
			Amount:         in.Amount,
			ReferenceIDOut: outRef,
			ReferenceIDIn:  inRef,
			Date:           date,
			SubmittedBy:    ss.by,
			Remark:         in.Remark,
		}
		if err := dt.Validate(); err != nil {
			return err
		}
		if err := save(ss, daybook.EntityDailyTransaction, ss.svc.stores.Transactions, dt); err != nil {
			return err
		}
		ss.emit(daybook.EntityDailyTransaction, dt.Key(), events.TransferPosted, dt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dt, nil
}

// ReverseTransfer removes both entries of a transfer and its DailyTransaction.
// Fails with NotFound when either entry is gone, and with InsufficientFunds when
// the destination already spent the money.
func (s *Service) ReverseTransfer(ctx context.Context, transactionID string) error {
	return s.run(ctx, "reverse_transfer", []string{"daybook:" + transactionID}, func(ss *session) error {
		dt, err := ss.svc.stores.Transactions.Get(ss.ctx, transactionID)
		if err != nil {
			return err
		}
		if dt.Type != daybook.TypeTransfer {
			return apperror.NewValidation("transaction is not a transfer").WithDetail("type", string(dt.Type))
		}
		return ss.reverseTransfer(dt)
	})
}

func (ss *session) reverseTransfer(dt *daybook.DailyTransaction) error {
	from, err := ss.paymentsAccount(dt.FromAccount)
	if err != nil {
		return err
	}
	to, err := ss.paymentsAccount(dt.ToAccount)
	if err != nil {
		return err
	}
	if !from.RemoveDebit(dt.ReferenceIDOut) {
		return apperror.NewNotFound("LedgerEntry", dt.ReferenceIDOut).WithDetail("account", from.Name)
	}
	if !to.RemoveCredit(dt.ReferenceIDIn) {
		return apperror.NewNotFound("LedgerEntry", dt.ReferenceIDIn).WithDetail("account", to.Name)
	}
	if err := remove(ss, daybook.EntityDailyTransaction, ss.svc.stores.Transactions, dt.Key()); err != nil {
		return err
	}
	ss.emit(daybook.EntityDailyTransaction, dt.Key(), events.TransferReversed, dt)
	return nil
}

// PostSimple records money entering (in) or leaving (out) one account.
func (s *Service) PostSimple(ctx context.Context, in SimpleInput) (*daybook.DailyTransaction, error) {
	if in.Type != daybook.TypeIn && in.Type != daybook.TypeOut {
		return nil, apperror.NewValidation("type must be in or out").WithDetail("type", string(in.Type))
	}
	if !in.Amount.IsPositive() {
		return nil, apperror.NewValidation("amount must be greater than zero").WithDetail("field", "amount")
	}

	var dt *daybook.DailyTransaction
	err := s.run(ctx, "post_simple", []string{paymentsKey(in.Account)}, func(ss *session) error {
		acc, err := ss.paymentsAccount(in.Account)
		if err != nil {
			return err
		}

		prefix := ledger.PrefixIn
		if in.Type == daybook.TypeOut {
			prefix = ledger.PrefixOut
		}
		date := dateOr(in.Date, ss.now)
		e := ledger.Entry{
			ReferenceID: ss.svc.refs.Next(prefix),
			Amount:      in.Amount,
			Method:      in.Method,
			Date:        date,
			Remark:      remarkOr(in.Remark, in.Counterparty),
			SubmittedBy: ss.by,
		}
		if in.Type == daybook.TypeIn {
			err = acc.Credit(e)
		} else {
			err = acc.Debit(e)
		}
		if err != nil {
			return err
		}

		dt = &daybook.DailyTransaction{
			BaseDocument: entity.NewBaseDocument(ss.by),
			Type:         in.Type,
			AccountName:  acc.Name,
			Amount:       in.Amount,
			Counterparty: in.Counterparty,
			Method:       in.Method,
			ReferenceID:  e.ReferenceID,
			Date:         date,
			SubmittedBy:  ss.by,
			Remark:       in.Remark,
		}
		if err := dt.Validate(); err != nil {
			return err
		}
		if err := save(ss, daybook.EntityDailyTransaction, ss.svc.stores.Transactions, dt); err != nil {
			return err
		}
		ss.emit(daybook.EntityDailyTransaction, dt.Key(), events.EntryPosted, dt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dt, nil
}

// ReverseSimple removes the entry of a single-sided posting and its DailyTransaction.
func (s *Service) ReverseSimple(ctx context.Context, transactionID string) error {
	return s.run(ctx, "reverse_simple", []string{"daybook:" + transactionID}, func(ss *session) error {
		dt, err := ss.svc.stores.Transactions.Get(ss.ctx, transactionID)
		if err != nil {
			return err
		}
		if dt.Type == daybook.TypeTransfer {
			return apperror.NewValidation("transaction is a transfer").WithDetail("type", string(dt.Type))
		}
		return ss.reverseSimple(dt)
	})
}

func (ss *session) reverseSimple(dt *daybook.DailyTransaction) error {
	acc, err := ss.paymentsAccount(dt.AccountName)
	if err != nil {
		return err
	}
	var removed bool
	if dt.Type == daybook.TypeIn {
		removed = acc.RemoveCredit(dt.ReferenceID)
	} else {
		removed = acc.RemoveDebit(dt.ReferenceID)
	}
	if !removed {
		return apperror.NewNotFound("LedgerEntry", dt.ReferenceID).WithDetail("account", acc.Name)
	}
	if err := remove(ss, daybook.EntityDailyTransaction, ss.svc.stores.Transactions, dt.Key()); err != nil {
		return err
	}
	ss.emit(daybook.EntityDailyTransaction, dt.Key(), events.EntryReversed, dt)
	return nil
}

// ReverseDailyTransaction reverses any daily transaction according to its type.
func (s *Service) ReverseDailyTransaction(ctx context.Context, transactionID string) error {
	return s.run(ctx, "reverse_daily_transaction", []string{"daybook:" + transactionID}, func(ss *session) error {
		dt, err := ss.svc.stores.Transactions.Get(ss.ctx, transactionID)
		if err != nil {
			return err
		}
		if dt.Type == daybook.TypeTransfer {
			return ss.reverseTransfer(dt)
		}
		return ss.reverseSimple(dt)
	})
}

func dateOr(d, fallback time.Time) time.Time {
	if d.IsZero() {
		return fallback
	}
	return d.UTC()
}

func remarkOr(remark, fallback string) string {
	if remark == "" {
		return fallback
	}
	return remark
}
