package reconcile

import (
	"context"
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/entity"
	corenum "tradeledger/internal/core/numerator"
	"tradeledger/internal/domain/billing"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/domain/purchase"
	"tradeledger/internal/domain/returns"
)

// ReturnInput creates a credit note against a billing or a purchase.
// ReturnNo is optional; a missing or already used number is replaced by the
// next CN{n}.
type ReturnInput struct {
	ReturnType returns.Type
	ReturnNo   string
	RelatedNo  string
	Products   []returns.Item
	ReturnDate time.Time
	Remark     string
}

// CreateReturn stores the return under its number and moves the returned goods:
// back into stock for a bill return, out of stock for a purchase return.
func (s *Service) CreateReturn(ctx context.Context, in ReturnInput) (*returns.Return, error) {
	keys := make([]string, 0, len(in.Products))
	for _, it := range in.Products {
		keys = append(keys, productKey(it.ItemID))
	}

	var r *returns.Return
	err := s.run(ctx, "create_return", keys, func(ss *session) error {
		r = &returns.Return{
			BaseDocument: entity.NewBaseDocument(ss.by),
			ReturnType:   in.ReturnType,
			RelatedNo:    in.RelatedNo,
			Products:     in.Products,
			ReturnDate:   dateOr(in.ReturnDate, ss.now),
			Remark:       in.Remark,
		}
		r.ComputeTotal()
		if err := r.Validate(); err != nil {
			return err
		}
		if err := ss.checkRelated(r); err != nil {
			return err
		}

		r.ReturnNo = in.ReturnNo
		taken := r.ReturnNo == ""
		if !taken {
			exists, err := ss.svc.stores.Returns.Exists(ss.ctx, r.ReturnNo)
			if err != nil {
				return err
			}
			taken = exists
		}
		if taken {
			next, err := ss.svc.returnNumbers.Next(ss.ctx, corenum.PrefixReturn)
			if err != nil {
				return err
			}
			r.ReturnNo = next
		}

		for _, it := range r.Products {
			p, err := ss.product(it.ItemID)
			if err != nil {
				return err
			}
			ct, delta := r.StockEffect(it)
			if _, err := ss.applyStock(p, delta, ct, r.ReturnNo); err != nil {
				return err
			}
		}

		if err := save[*returns.Return](ss, returns.EntityReturn, ss.svc.stores.Returns, r); err != nil {
			return err
		}
		ss.emit(returns.EntityReturn, r.Key(), events.ReturnCreated, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteReturn applies the opposite stock movement and removes the return.
func (s *Service) DeleteReturn(ctx context.Context, returnNo string) error {
	return s.run(ctx, "delete_return", []string{"return:" + returnNo}, func(ss *session) error {
		r, err := ss.svc.stores.Returns.Get(ss.ctx, returnNo)
		if err != nil {
			return err
		}
		for _, it := range r.Products {
			p, err := ss.product(it.ItemID)
			if err != nil {
				return err
			}
			ct, delta := r.ReverseStockEffect(it)
			if _, err := ss.applyStock(p, delta, ct, r.ReturnNo); err != nil {
				return err
			}
		}
		if err := remove[*returns.Return](ss, returns.EntityReturn, ss.svc.stores.Returns, r.Key()); err != nil {
			return err
		}
		ss.emit(returns.EntityReturn, r.Key(), events.ReturnDeleted, r)
		return nil
	})
}

// checkRelated verifies that the billing or purchase the return refers to exists.
func (ss *session) checkRelated(r *returns.Return) error {
	var (
		exists bool
		err    error
		entity string
	)
	switch r.ReturnType {
	case returns.TypeBill:
		entity = billing.EntityBilling
		exists, err = ss.svc.stores.Billings.ExistsInvoice(ss.ctx, r.RelatedNo)
	default:
		entity = purchase.EntityPurchase
		exists, err = ss.svc.stores.Purchases.Exists(ss.ctx, r.RelatedNo)
	}
	if err != nil {
		return err
	}
	if !exists {
		return apperror.NewNotFound(entity, r.RelatedNo)
	}
	return nil
}
