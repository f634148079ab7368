package reconcile

import (
	"context"
	"maps"
	"slices"
	"strconv"

	"tradeledger/internal/core/apperror"
	corenum "tradeledger/internal/core/numerator"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain"
	"tradeledger/internal/domain/accounts"
	"tradeledger/internal/domain/billing"
	"tradeledger/internal/domain/stock"
)

// Drift is a stored derived field that differs from its full reduction.
type Drift struct {
	Entity  string `json:"entity"`
	Key     string `json:"key"`
	Field   string `json:"field"`
	Stored  string `json:"stored"`
	Derived string `json:"derived"`
}

// Violation is an aggregate whose arrays reduce to an invalid state.
type Violation struct {
	Entity string `json:"entity"`
	Key    string `json:"key"`
	Error  string `json:"error"`
}

// RecomputeReport is the result of Recompute.
type RecomputeReport struct {
	Checked    int         `json:"checked"`
	Drifts     []Drift     `json:"drifts"`
	Violations []Violation `json:"violations"`
	Applied    bool        `json:"applied"`
}

// Recompute rebuilds every derived balance and status by full reduction and
// reports the fields that drifted. Unless dryRun is set, drifted aggregates are
// saved with the recomputed values; aggregates with violations are left untouched.
func (s *Service) Recompute(ctx context.Context, dryRun bool) (*RecomputeReport, error) {
	report := &RecomputeReport{}
	err := s.run(ctx, "recompute", nil, func(ss *session) error {
		*report = RecomputeReport{Applied: !dryRun}
		st := ss.svc.stores

		if err := recomputeAll(ss, report, accounts.EntityPaymentsAccount, st.PaymentsAccounts, ss.payments,
			func(a *accounts.PaymentsAccount) error { return a.Recompute() },
			func(a *accounts.PaymentsAccount) map[string]string {
				return map[string]string{"balanceAmount": money(a.BalanceAmount)}
			}); err != nil {
			return err
		}
		if err := recomputeAll(ss, report, accounts.EntitySupplierAccount, st.Suppliers, ss.suppliers,
			func(a *accounts.SupplierAccount) error { return a.Recompute() },
			func(a *accounts.SupplierAccount) map[string]string {
				return map[string]string{
					"totalBillAmount": money(a.TotalBillAmount),
					"paidAmount":      money(a.PaidAmount),
					"pendingAmount":   money(a.PendingAmount),
				}
			}); err != nil {
			return err
		}
		if err := recomputeAll(ss, report, accounts.EntitySellerPayment, st.Sellers, ss.sellers,
			func(a *accounts.SellerPayment) error { return a.Recompute() },
			func(a *accounts.SellerPayment) map[string]string {
				return map[string]string{
					"totalAmountBilled": money(a.TotalAmountBilled),
					"totalAmountPaid":   money(a.TotalAmountPaid),
					"paymentRemaining":  money(a.PaymentRemaining),
				}
			}); err != nil {
			return err
		}
		if err := recomputeAll(ss, report, accounts.EntityCustomerAccount, st.Customers, ss.customers,
			func(a *accounts.CustomerAccount) error { return a.Recompute() },
			func(a *accounts.CustomerAccount) map[string]string {
				return map[string]string{
					"totalBillAmount": money(a.TotalBillAmount),
					"paidAmount":      money(a.PaidAmount),
					"pendingAmount":   money(a.PendingAmount),
				}
			}); err != nil {
			return err
		}
		if err := recomputeAll[*billing.Billing](ss, report, billing.EntityBilling, st.Billings, ss.billings,
			func(b *billing.Billing) error { b.Derive(); return nil },
			func(b *billing.Billing) map[string]string {
				return map[string]string{
					"billingAmountReceived": money(b.BillingAmountReceived),
					"paymentStatus":         string(b.PaymentStatus),
					"deliveryStatus":        string(b.DeliveryStatus),
					"totalFuelCharge":       money(b.TotalFuelCharge),
					"totalOtherExpenses":    money(b.TotalOtherExpenses),
					"isneededToPurchase":    strconv.FormatBool(b.IsNeededToPurchase),
				}
			}); err != nil {
			return err
		}

		if dryRun {
			clear(ss.payments)
			clear(ss.suppliers)
			clear(ss.sellers)
			clear(ss.customers)
			clear(ss.billings)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// recomputeAll reduces every aggregate of one type and queues drifted ones for save.
func recomputeAll[T touchable](ss *session, report *RecomputeReport, entityType string, repo domain.Repository[T],
	cache map[string]T, recompute func(T) error, fields func(T) map[string]string) error {
	list, err := repo.List(ss.ctx)
	if err != nil {
		return err
	}
	for _, agg := range list {
		report.Checked++
		before := fields(agg)
		if err := recompute(agg); err != nil {
			report.Violations = append(report.Violations, Violation{Entity: entityType, Key: agg.Key(), Error: err.Error()})
			continue
		}
		after := fields(agg)

		drifted := false
		for _, field := range slices.Sorted(maps.Keys(after)) {
			if before[field] == after[field] {
				continue
			}
			drifted = true
			report.Drifts = append(report.Drifts, Drift{
				Entity:  entityType,
				Key:     agg.Key(),
				Field:   field,
				Stored:  before[field],
				Derived: after[field],
			})
		}
		if drifted {
			cache[agg.Key()] = agg
		}
	}
	return nil
}

func money(m types.Money) string { return m.StringFixed(4) }

// StockMismatch describes a product whose registry does not add up.
type StockMismatch struct {
	ItemID       string         `json:"itemId"`
	CountInStock types.Quantity `json:"countInStock"`
	// RowIndex is the first registry row whose finalStock breaks the running total, or -1.
	RowIndex int `json:"rowIndex"`
	// LastFinal is the finalStock of the last registry row.
	LastFinal types.Quantity `json:"lastFinal"`
}

// VerifyStock checks for every product that the registry running total is
// consistent and ends at the product's current countInStock.
func (s *Service) VerifyStock(ctx context.Context) ([]StockMismatch, error) {
	var mismatches []StockMismatch
	err := s.readOnly(ctx, "verify_stock", func(ctx context.Context) error {
		mismatches = nil
		products, err := s.stores.Products.List(ctx)
		if err != nil {
			return err
		}
		for _, p := range products {
			rows, err := s.stores.Registry.ListByItem(ctx, p.ItemID)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				continue
			}
			idx := stock.VerifyRunningTotal(stock.Opening(rows), rows)
			last := rows[len(rows)-1].FinalStock
			if idx >= 0 || last != p.CountInStock {
				mismatches = append(mismatches, StockMismatch{
					ItemID:       p.ItemID,
					CountInStock: p.CountInStock,
					RowIndex:     idx,
					LastFinal:    last,
				})
			}
		}
		return nil
	})
	return mismatches, err
}

// NextNumber previews the next KP{n} or CN{n} number without reserving it.
func (s *Service) NextNumber(ctx context.Context, prefix string) (string, error) {
	switch prefix {
	case corenum.PrefixPurchase:
		return s.purchaseNumbers.Next(ctx, prefix)
	case corenum.PrefixReturn:
		return s.returnNumbers.Next(ctx, prefix)
	default:
		return "", apperror.NewValidation("unknown number prefix").WithDetail("prefix", prefix)
	}
}
