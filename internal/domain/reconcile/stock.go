package reconcile

import (
	"context"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/id"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/domain/stock"
)

// StockUpdateInput is a manual stock correction. Quantity is signed: positive
// for Manual Addition, negative for Manual Reduction and Stock Damage.
type StockUpdateInput struct {
	ItemID     string
	Quantity   types.Quantity
	ChangeType stock.ChangeType
	InvoiceNo  string
}

// UpdateStock applies a manual correction and records it in the registry.
func (s *Service) UpdateStock(ctx context.Context, in StockUpdateInput) (stock.Change, error) {
	if !in.ChangeType.IsManual() {
		return stock.Change{}, apperror.NewValidation("change type cannot be applied manually").
			WithDetail("changeType", string(in.ChangeType))
	}

	var row stock.Change
	err := s.run(ctx, "update_stock", []string{productKey(in.ItemID)}, func(ss *session) error {
		p, err := ss.product(in.ItemID)
		if err != nil {
			return err
		}
		row, err = ss.applyStock(p, in.Quantity, in.ChangeType, in.InvoiceNo)
		if err != nil {
			return err
		}
		ss.emit(stock.EntityProduct, p.Key(), events.StockUpdated, row)
		return nil
	})
	return row, err
}

// RevertStockUpdate applies the opposite of a manual registry row. The
// compensating row carries the reverted row's id as its invoice number, which
// is also how a second revert of the same row is detected.
func (s *Service) RevertStockUpdate(ctx context.Context, changeID string) (stock.Change, error) {
	cid, err := id.Parse(changeID)
	if err != nil {
		return stock.Change{}, apperror.NewNotFound("StockChange", changeID)
	}

	var row stock.Change
	err = s.run(ctx, "revert_stock_update", []string{"stock-change:" + changeID}, func(ss *session) error {
		orig, err := ss.svc.stores.Registry.Get(ss.ctx, cid)
		if err != nil {
			return err
		}
		if !orig.ChangeType.IsManual() {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule, "only manual stock updates can be reverted").
				WithDetail("changeType", string(orig.ChangeType))
		}

		history, err := ss.svc.stores.Registry.ListByItem(ss.ctx, orig.ItemID)
		if err != nil {
			return err
		}
		for _, h := range history {
			if h.ChangeType == stock.ChangeRevertedStockUpdate && h.InvoiceNo == orig.ID.String() {
				return apperror.NewConflict("stock update already reverted").WithDetail("changeId", changeID)
			}
		}

		p, err := ss.product(orig.ItemID)
		if err != nil {
			return err
		}
		row, err = ss.applyStock(p, orig.QuantityChange.Neg(), stock.ChangeRevertedStockUpdate, orig.ID.String())
		if err != nil {
			return err
		}
		ss.emit(stock.EntityProduct, p.Key(), events.StockUpdateReverted, row)
		return nil
	})
	return row, err
}
