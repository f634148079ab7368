package reconcile

import (
	"context"
	"slices"
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/entity"
	"tradeledger/internal/core/id"
	corenum "tradeledger/internal/core/numerator"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/billing"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/domain/ledger"
	"tradeledger/internal/domain/purchase"
	"tradeledger/internal/domain/stock"
)

// PurchaseInput creates or replaces a purchase. PurchaseID is optional; a
// missing or already used id is replaced by the next KP{n}.
type PurchaseInput struct {
	PurchaseID     string
	SellerID       string
	SellerName     string
	InvoiceNo      string
	PurchaseDate   time.Time
	Items          []purchase.Item
	Transportation purchase.Transportation
	OtherExpenses  []billing.Expense
}

func (in PurchaseInput) lockKeys() []string {
	keys := []string{supplierKey(in.SellerID), sellerKey(in.SellerID)}
	for _, it := range in.Items {
		keys = append(keys, productKey(it.ItemID))
	}
	for _, e := range in.OtherExpenses {
		keys = append(keys, paymentsKey(e.Method))
	}
	return keys
}

// build assembles the purchase. Expense ids not found in known (the stored
// purchase's expenses on update) are replaced with fresh ones.
func (in PurchaseInput) build(base entity.BaseDocument, now time.Time, known []billing.Expense) *purchase.Purchase {
	p := &purchase.Purchase{
		BaseDocument:          base,
		PurchaseID:            in.PurchaseID,
		SellerID:              in.SellerID,
		SellerName:            in.SellerName,
		InvoiceNo:             in.InvoiceNo,
		PurchaseDate:          dateOr(in.PurchaseDate, now),
		Items:                 in.Items,
		TransportationDetails: in.Transportation,
		OtherExpenses:         make([]billing.Expense, 0, len(in.OtherExpenses)),
	}
	for _, e := range in.OtherExpenses {
		if e.ID == "" || !slices.ContainsFunc(known, func(k billing.Expense) bool { return k.ID == e.ID }) {
			e.ID = id.New().String()
		}
		if e.Kind == "" {
			e.Kind = billing.ExpenseOther
		}
		e.Date = dateOr(e.Date, now)
		p.OtherExpenses = append(p.OtherExpenses, e)
	}
	p.ComputeTotals()
	return p
}

// CreatePurchase adds the purchased quantities to stock (creating new products
// on the fly), bills the bill part to the supplier account and the full amount
// to the seller payment book, and posts the purchase expenses.
func (s *Service) CreatePurchase(ctx context.Context, in PurchaseInput) (*purchase.Purchase, error) {
	var p *purchase.Purchase
	err := s.run(ctx, "create_purchase", in.lockKeys(), func(ss *session) error {
		p = in.build(entity.NewBaseDocument(ss.by), ss.now, nil)
		if err := p.Validate(); err != nil {
			return err
		}

		taken := p.PurchaseID == ""
		if !taken {
			exists, err := ss.svc.stores.Purchases.Exists(ss.ctx, p.PurchaseID)
			if err != nil {
				return err
			}
			taken = exists
		}
		if taken {
			next, err := ss.svc.purchaseNumbers.Next(ss.ctx, corenum.PrefixPurchase)
			if err != nil {
				return err
			}
			p.PurchaseID = next
		}

		if err := ss.applyPurchase(p); err != nil {
			return err
		}
		if err := save[*purchase.Purchase](ss, purchase.EntityPurchase, ss.svc.stores.Purchases, p); err != nil {
			return err
		}
		ss.emit(purchase.EntityPurchase, p.Key(), events.PurchaseCreated, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePurchase replaces a purchase: the stored version is fully reversed and
// the new one applied in the same transaction, keeping the purchase id. New
// quantities are added before the old ones are taken out, so only the net
// change has to be covered by stock.
func (s *Service) UpdatePurchase(ctx context.Context, purchaseID string, in PurchaseInput) (*purchase.Purchase, error) {
	in.PurchaseID = purchaseID

	var p *purchase.Purchase
	err := s.run(ctx, "update_purchase", in.lockKeys(), func(ss *session) error {
		old, err := ss.svc.stores.Purchases.Get(ss.ctx, purchaseID)
		if err != nil {
			return err
		}
		p = in.build(old.BaseDocument, ss.now, old.OtherExpenses)
		if err := p.Validate(); err != nil {
			return err
		}
		if err := ss.reversePurchaseLines(old); err != nil {
			return err
		}
		if err := ss.applyPurchase(p); err != nil {
			return err
		}
		if err := ss.reversePurchaseStock(old); err != nil {
			return err
		}
		if err := save[*purchase.Purchase](ss, purchase.EntityPurchase, ss.svc.stores.Purchases, p); err != nil {
			return err
		}
		ss.emit(purchase.EntityPurchase, p.Key(), events.PurchaseUpdated, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePurchase takes the purchased quantities back out of stock (failing with
// InsufficientStock if they were already sold) and removes the account lines.
func (s *Service) DeletePurchase(ctx context.Context, purchaseID string) error {
	return s.run(ctx, "delete_purchase", []string{"purchase:" + purchaseID}, func(ss *session) error {
		p, err := ss.svc.stores.Purchases.Get(ss.ctx, purchaseID)
		if err != nil {
			return err
		}
		if err := ss.reversePurchase(p); err != nil {
			return err
		}
		if err := remove[*purchase.Purchase](ss, purchase.EntityPurchase, ss.svc.stores.Purchases, p.Key()); err != nil {
			return err
		}
		ss.emit(purchase.EntityPurchase, p.Key(), events.PurchaseDeleted, p)
		return nil
	})
}

func (ss *session) applyPurchase(p *purchase.Purchase) error {
	for _, it := range p.Items {
		prod, err := ss.product(it.ItemID)
		ct := stock.ChangePurchase
		switch {
		case apperror.IsNotFound(err) && it.IsNew:
			prod = stock.NewProduct(it.ItemID, it.Name, it.Brand, it.Category, ss.by)
			ss.trackProduct(prod)
			ct = stock.ChangePurchaseNewProduct
		case err != nil:
			return err
		}
		if _, err := ss.applyStock(prod, it.Quantity, ct, p.PurchaseID); err != nil {
			return err
		}
	}

	supplier, err := ss.supplier(p.SellerID, p.SellerName, true)
	if err != nil {
		return err
	}
	if p.Totals.BillPartTotal.IsPositive() {
		if err := supplier.UpsertBill(ss.purchaseLine(p, p.Totals.BillPartTotal)); err != nil {
			return err
		}
	}

	seller, err := ss.seller(p.SellerID, p.SellerName, true)
	if err != nil {
		return err
	}
	if p.Totals.TotalPurchaseAmount.IsPositive() {
		if err := seller.UpsertBilling(ss.purchaseLine(p, p.Totals.TotalPurchaseAmount)); err != nil {
			return err
		}
	}

	return ss.applyExpenseDiff(billing.ExpenseDiff{Upserted: p.OtherExpenses}, p.PurchaseID)
}

func (ss *session) reversePurchase(p *purchase.Purchase) error {
	if err := ss.reversePurchaseStock(p); err != nil {
		return err
	}
	return ss.reversePurchaseLines(p)
}

func (ss *session) reversePurchaseStock(p *purchase.Purchase) error {
	for _, it := range p.Items {
		prod, err := ss.product(it.ItemID)
		if err != nil {
			return err
		}
		if _, err := ss.applyStock(prod, it.Quantity.Neg(), stock.ChangePurchaseDeletion, p.PurchaseID); err != nil {
			return err
		}
	}
	return nil
}

// reversePurchaseLines removes the supplier bill, seller billing and expense entries.
func (ss *session) reversePurchaseLines(p *purchase.Purchase) error {
	supplier, err := ss.supplier(p.SellerID, p.SellerName, false)
	switch {
	case err == nil:
		supplier.RemoveBill(p.PurchaseID)
	case !apperror.IsNotFound(err):
		return err
	}

	seller, err := ss.seller(p.SellerID, p.SellerName, false)
	switch {
	case err == nil:
		seller.RemoveBilling(p.PurchaseID)
	case !apperror.IsNotFound(err):
		return err
	}

	return ss.removeExpenseEntries(p.OtherExpenses)
}

func (ss *session) purchaseLine(p *purchase.Purchase, amount types.Money) ledger.Entry {
	return ledger.Entry{
		ReferenceID: p.PurchaseID,
		Amount:      amount,
		Date:        p.PurchaseDate,
		SubmittedBy: ss.by,
		InvoiceNo:   p.InvoiceNo,
	}
}
