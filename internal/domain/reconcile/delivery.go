package reconcile

import (
	"context"

	"tradeledger/internal/domain/billing"
	"tradeledger/internal/domain/events"
)

// StartDeliveryInput opens a delivery.
type StartDeliveryInput struct {
	DeliveryID string
	DriverID   string
	Location   billing.GeoStamp
}

// EndDeliveryInput closes a delivery with what was handed over and what it cost.
type EndDeliveryInput struct {
	Location billing.GeoStamp
	Products []billing.DeliveredItem
	Expenses []billing.Expense
}

// StartDelivery appends a delivery to the billing and returns its id.
func (s *Service) StartDelivery(ctx context.Context, billingID string, in StartDeliveryInput) (string, error) {
	var deliveryID string
	err := s.run(ctx, "start_delivery", []string{billingKey(billingID)}, func(ss *session) error {
		b, err := ss.billing(billingID)
		if err != nil {
			return err
		}
		deliveryID, err = b.StartDelivery(in.DeliveryID, in.DriverID, in.Location)
		if err != nil {
			return err
		}
		ss.emit(billing.EntityBilling, b.Key(), events.DeliveryStarted, map[string]string{"deliveryId": deliveryID})
		return nil
	})
	return deliveryID, err
}

// EndDelivery applies delivered quantities under the ordered-quantity cap,
// refreshes product, delivery and billing statuses and posts every non-zero
// expense as an EXP-{id} OUT entry in the payments account named by its method.
func (s *Service) EndDelivery(ctx context.Context, billingID, deliveryID string, in EndDeliveryInput) (*billing.Billing, error) {
	keys := []string{billingKey(billingID)}
	for _, e := range in.Expenses {
		keys = append(keys, paymentsKey(e.Method))
	}

	var b *billing.Billing
	err := s.run(ctx, "end_delivery", keys, func(ss *session) error {
		var err error
		b, err = ss.billing(billingID)
		if err != nil {
			return err
		}
		diff, err := b.EndDelivery(deliveryID, in.Location, in.Products, in.Expenses)
		if err != nil {
			return err
		}
		if err := ss.applyExpenseDiff(diff, b.InvoiceNo); err != nil {
			return err
		}
		d, _ := b.Delivery(deliveryID)
		ss.emit(billing.EntityBilling, b.Key(), events.DeliveryEnded, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// CancelDelivery drops a delivery, takes back its quantities and removes the
// ledger entries of its expenses.
func (s *Service) CancelDelivery(ctx context.Context, billingID, deliveryID string) error {
	return s.run(ctx, "cancel_delivery", []string{billingKey(billingID)}, func(ss *session) error {
		b, err := ss.billing(billingID)
		if err != nil {
			return err
		}
		removed, err := b.CancelDelivery(deliveryID)
		if err != nil {
			return err
		}
		if err := ss.removeExpenseEntries(removed); err != nil {
			return err
		}
		ss.emit(billing.EntityBilling, b.Key(), events.DeliveryCancelled, map[string]string{"deliveryId": deliveryID})
		return nil
	})
}

// UpsertBillingExpenses merges billing-level expenses and mirrors them into the
// payments accounts. A zero amount deletes the expense and its entry.
func (s *Service) UpsertBillingExpenses(ctx context.Context, billingID string, expenses []billing.Expense) (*billing.Billing, error) {
	keys := []string{billingKey(billingID)}
	for _, e := range expenses {
		keys = append(keys, paymentsKey(e.Method))
	}

	var b *billing.Billing
	err := s.run(ctx, "upsert_billing_expenses", keys, func(ss *session) error {
		var err error
		b, err = ss.billing(billingID)
		if err != nil {
			return err
		}
		diff, err := b.UpsertOtherExpenses(expenses)
		if err != nil {
			return err
		}
		if err := ss.applyExpenseDiff(diff, b.InvoiceNo); err != nil {
			return err
		}
		ss.emit(billing.EntityBilling, b.Key(), events.BillingExpensesUpdated, b.OtherExpenses)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}
