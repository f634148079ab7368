package reconcile_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/core/apperror"
	appctx "tradeledger/internal/core/context"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain"
	"tradeledger/internal/domain/accounts"
	"tradeledger/internal/domain/billing"
	"tradeledger/internal/domain/calendar"
	"tradeledger/internal/domain/daybook"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/domain/ledger"
	"tradeledger/internal/domain/purchase"
	"tradeledger/internal/domain/reconcile"
	"tradeledger/internal/domain/returns"
	"tradeledger/internal/domain/stock"
	"tradeledger/internal/infrastructure/lock"
	"tradeledger/internal/infrastructure/storage/memory"
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	st    reconcile.Stores
	svc   *reconcile.Service
}

func newFixture(t *testing.T, opts ...func(*reconcile.Config)) *fixture {
	t.Helper()
	store := memory.New()
	cfg := reconcile.Config{
		TxManager: store.TxManager(),
		Stores:    store.Stores(),
		Publisher: store,
		Auditor:   store,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &fixture{
		t:     t,
		ctx:   appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u-1", Username: "alice"}),
		store: store,
		st:    cfg.Stores,
		svc:   reconcile.NewService(cfg),
	}
}

func money(s string) types.Money { return types.MustMoney(s) }
func qty(n int64) types.Quantity { return types.NewQuantity(n) }

func assertMoney(t *testing.T, want string, got types.Money, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, got.Equal(money(want)), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

func (f *fixture) openAccount(name, opening string) {
	f.t.Helper()
	_, err := f.svc.OpenPaymentsAccount(f.ctx, name)
	require.NoError(f.t, err)
	if money(opening).IsPositive() {
		_, err = f.svc.PostSimple(f.ctx, reconcile.SimpleInput{
			Type: daybook.TypeIn, Account: name, Amount: money(opening), Counterparty: "owner",
		})
		require.NoError(f.t, err)
	}
}

func (f *fixture) balance(name string) types.Money {
	f.t.Helper()
	acc, err := f.st.PaymentsAccounts.Get(f.ctx, name)
	require.NoError(f.t, err)
	return acc.BalanceAmount
}

func (f *fixture) seedProduct(itemID string, units int64) {
	f.t.Helper()
	require.NoError(f.t, f.st.Products.Save(f.ctx, stock.NewProduct(itemID, "Item "+itemID, "", "", "seed")))
	if units > 0 {
		_, err := f.svc.UpdateStock(f.ctx, reconcile.StockUpdateInput{
			ItemID: itemID, Quantity: qty(units), ChangeType: stock.ChangeManualAddition,
		})
		require.NoError(f.t, err)
	}
}

func (f *fixture) stockOf(itemID string) types.Quantity {
	f.t.Helper()
	p, err := f.st.Products.Get(f.ctx, itemID)
	require.NoError(f.t, err)
	return p.CountInStock
}

func (f *fixture) createBilling(invoiceNo, total string, lines ...reconcile.BillingLineInput) *billing.Billing {
	f.t.Helper()
	b, err := f.svc.CreateBilling(f.ctx, reconcile.CreateBillingInput{
		InvoiceNo: invoiceNo, CustomerID: "C1", CustomerName: "Jane", GrandTotal: money(total), Products: lines,
	})
	require.NoError(f.t, err)
	return b
}

func (f *fixture) billing(b *billing.Billing) *billing.Billing {
	f.t.Helper()
	got, err := f.st.Billings.Get(f.ctx, b.Key())
	require.NoError(f.t, err)
	return got
}

// --- Transfers ---

func TestTransfer_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.openAccount("Cash", "1000")
	f.openAccount("Bank", "0")

	cashBefore, err := f.st.PaymentsAccounts.Get(f.ctx, "Cash")
	require.NoError(t, err)

	dt, err := f.svc.PostTransfer(f.ctx, reconcile.TransferInput{From: "Cash", To: "Bank", Amount: money("400")})
	require.NoError(t, err)
	assertMoney(t, "600", f.balance("Cash"))
	assertMoney(t, "400", f.balance("Bank"))
	assert.True(t, strings.HasPrefix(dt.ReferenceIDOut, "OUT"))
	assert.Equal(t, strings.TrimPrefix(dt.ReferenceIDOut, "OUT"), strings.TrimPrefix(dt.ReferenceIDIn, "IN"))
	assert.Equal(t, "alice", dt.SubmittedBy)

	require.NoError(t, f.svc.ReverseTransfer(f.ctx, dt.Key()))

	cashAfter, err := f.st.PaymentsAccounts.Get(f.ctx, "Cash")
	require.NoError(t, err)
	assert.Equal(t, cashBefore.PaymentsIn, cashAfter.PaymentsIn)
	assert.Empty(t, cashAfter.PaymentsOut)
	assertMoney(t, "1000", cashAfter.BalanceAmount)

	bank, err := f.st.PaymentsAccounts.Get(f.ctx, "Bank")
	require.NoError(t, err)
	assert.Empty(t, bank.PaymentsIn)
	assertMoney(t, "0", bank.BalanceAmount)

	exists, err := f.st.Transactions.Exists(f.ctx, dt.Key())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.openAccount("Cash", "100")
	f.openAccount("Bank", "0")

	_, err := f.svc.PostTransfer(f.ctx, reconcile.TransferInput{From: "Cash", To: "Bank", Amount: money("200")})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientFunds))
	assertMoney(t, "100", f.balance("Cash"))
	assertMoney(t, "0", f.balance("Bank"))
}

func TestReverseTransfer_MissingEntryRollsBack(t *testing.T) {
	f := newFixture(t)
	f.openAccount("Cash", "1000")
	f.openAccount("Bank", "0")

	dt, err := f.svc.PostTransfer(f.ctx, reconcile.TransferInput{From: "Cash", To: "Bank", Amount: money("250")})
	require.NoError(t, err)

	bank, err := f.st.PaymentsAccounts.Get(f.ctx, "Bank")
	require.NoError(t, err)
	require.True(t, bank.RemoveCredit(dt.ReferenceIDIn))
	require.NoError(t, bank.Recompute())
	require.NoError(t, f.st.PaymentsAccounts.Save(f.ctx, bank))

	err = f.svc.ReverseTransfer(f.ctx, dt.Key())
	assert.True(t, apperror.IsNotFound(err))

	cash, err := f.st.PaymentsAccounts.Get(f.ctx, "Cash")
	require.NoError(t, err)
	require.Len(t, cash.PaymentsOut, 1)
	assert.Equal(t, dt.ReferenceIDOut, cash.PaymentsOut[0].ReferenceID)
}

func TestPostSimple_AndReverse(t *testing.T) {
	f := newFixture(t)
	f.openAccount("Cash", "300")

	dt, err := f.svc.PostSimple(f.ctx, reconcile.SimpleInput{
		Type: daybook.TypeOut, Account: "Cash", Amount: money("120"), Counterparty: "Electricity",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dt.ReferenceID, "OUT"))
	assertMoney(t, "180", f.balance("Cash"))

	_, err = f.svc.PostSimple(f.ctx, reconcile.SimpleInput{Type: daybook.TypeOut, Account: "Cash", Amount: money("500")})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientFunds))

	require.NoError(t, f.svc.ReverseDailyTransaction(f.ctx, dt.Key()))
	assertMoney(t, "300", f.balance("Cash"))
}

// --- Billing ---

func TestBillingPayments_StatusAndMirrors(t *testing.T) {
	f := newFixture(t)
	f.openAccount("Cash", "0")
	f.openAccount("Bank", "0")
	f.seedProduct("P1", 10)

	b := f.createBilling("INV-1", "3000", reconcile.BillingLineInput{ItemID: "P1", Quantity: qty(2), SellingPrice: money("1500")})
	assert.Equal(t, billing.PaymentUnpaid, b.PaymentStatus)

	first, err := f.svc.AddBillingPayment(f.ctx, b.Key(), reconcile.PaymentInput{Amount: money("2000"), Method: "Cash"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.ReferenceID, "PAY"))
	assert.Equal(t, billing.PaymentPartial, f.billing(b).PaymentStatus)

	second, err := f.svc.AddBillingPayment(f.ctx, b.Key(), reconcile.PaymentInput{Amount: money("1000"), Method: "Bank"})
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentPaid, f.billing(b).PaymentStatus)

	_, err = f.svc.AddBillingPayment(f.ctx, b.Key(), reconcile.PaymentInput{Amount: money("1"), Method: "Cash"})
	assert.True(t, apperror.HasCode(err, apperror.CodeExceedsTotal))
	assertMoney(t, "2000", f.balance("Cash"))
	assertMoney(t, "1000", f.balance("Bank"))

	ca, err := f.st.Customers.Get(f.ctx, "C1")
	require.NoError(t, err)
	assertMoney(t, "3000", ca.PaidAmount)
	assertMoney(t, "0", ca.PendingAmount)

	require.NoError(t, f.svc.DeleteBillingPayment(f.ctx, b.Key(), second.ReferenceID))
	assert.Equal(t, billing.PaymentPartial, f.billing(b).PaymentStatus)
	assertMoney(t, "0", f.balance("Bank"))

	// moving the remaining payment to another method moves its IN entry
	_, err = f.svc.UpdateBillingPayment(f.ctx, b.Key(), first.ReferenceID, reconcile.PaymentInput{Amount: money("2500"), Method: "Bank"})
	require.NoError(t, err)
	assertMoney(t, "0", f.balance("Cash"))
	assertMoney(t, "2500", f.balance("Bank"))

	ca, err = f.st.Customers.Get(f.ctx, "C1")
	require.NoError(t, err)
	assertMoney(t, "2500", ca.PaidAmount)
	assertMoney(t, "500", ca.PendingAmount)
}

func TestCreateBilling_ShortageAndDelete(t *testing.T) {
	f := newFixture(t)
	f.seedProduct("P1", 3)

	b := f.createBilling("INV-2", "500", reconcile.BillingLineInput{ItemID: "P1", Quantity: qty(5), SellingPrice: money("100")})
	assert.Equal(t, types.Quantity(0), f.stockOf("P1"))
	require.Len(t, b.NeededToPurchase, 1)
	assert.Equal(t, qty(2), b.NeededToPurchase[0].Quantity)
	assert.True(t, b.IsNeededToPurchase)

	needs, err := f.st.Needs.ListByInvoice(f.ctx, "INV-2")
	require.NoError(t, err)
	require.Len(t, needs, 1)

	_, err = f.svc.CreateBilling(f.ctx, reconcile.CreateBillingInput{
		InvoiceNo: "INV-2", CustomerID: "C1", CustomerName: "Jane", GrandTotal: money("1"),
		Products: []reconcile.BillingLineInput{{ItemID: "P1", Quantity: qty(1)}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicate))

	require.NoError(t, f.svc.DeleteBilling(f.ctx, b.Key()))
	assert.Equal(t, qty(3), f.stockOf("P1"))

	needs, err = f.st.Needs.ListByInvoice(f.ctx, "INV-2")
	require.NoError(t, err)
	assert.Empty(t, needs)

	ca, err := f.st.Customers.Get(f.ctx, "C1")
	require.NoError(t, err)
	assert.Empty(t, ca.Bills)

	exists, err := f.st.Events.Exists(f.ctx, calendar.SourceKey(calendar.SourceBilling, b.Key()))
	require.NoError(t, err)
	assert.False(t, exists)

	rows, err := f.st.Registry.ListByItem(f.ctx, "P1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, stock.ChangeSalesBilling, rows[1].ChangeType)
	assert.Equal(t, stock.ChangeSalesBillingDeleted, rows[2].ChangeType)
	assert.Equal(t, -1, stock.VerifyRunningTotal(stock.Opening(rows), rows))
}

func TestCalendarEvent_OnePerBilling(t *testing.T) {
	f := newFixture(t)
	f.openAccount("Cash", "0")
	f.seedProduct("P1", 5)

	b := f.createBilling("INV-3", "100", reconcile.BillingLineInput{ItemID: "P1", Quantity: qty(1)})
	_, err := f.svc.AddBillingPayment(f.ctx, b.Key(), reconcile.PaymentInput{Amount: money("50"), Method: "Cash"})
	require.NoError(t, err)
	_, err = f.svc.UpdateCustomerAccount(f.ctx, "C1", "Jane Doe")
	require.NoError(t, err)

	list, err := f.st.Events.List(f.ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.Key(), list[0].SourceID)
	assert.Contains(t, list[0].Title, "INV-3")
	assert.Contains(t, list[0].Title, "Jane Doe")
	assert.Equal(t, string(billing.DeliveryPending), list[0].Status)
}

// --- Deliveries ---

func TestEndDelivery_CumulativeCapAndExpenses(t *testing.T) {
	f := newFixture(t)
	f.openAccount("Cash", "500")
	f.seedProduct("P1", 10)
	b := f.createBilling("INV-4", "1000", reconcile.BillingLineInput{ItemID: "P1", Quantity: qty(10)})

	d1, err := f.svc.StartDelivery(f.ctx, b.Key(), reconcile.StartDeliveryInput{DriverID: "D1"})
	require.NoError(t, err)
	got, err := f.svc.EndDelivery(f.ctx, b.Key(), d1, reconcile.EndDeliveryInput{
		Products: []billing.DeliveredItem{{ItemID: "P1", Quantity: qty(6)}},
		Expenses: []billing.Expense{{Kind: billing.ExpenseFuel, Amount: money("100"), Method: "Cash"}},
	})
	require.NoError(t, err)
	assert.Equal(t, billing.DeliveryPartial, got.DeliveryStatus)
	assertMoney(t, "400", f.balance("Cash"))
	expID := got.Deliveries[0].Expenses[0].ID

	d2, err := f.svc.StartDelivery(f.ctx, b.Key(), reconcile.StartDeliveryInput{DriverID: "D2"})
	require.NoError(t, err)
	_, err = f.svc.EndDelivery(f.ctx, b.Key(), d2, reconcile.EndDeliveryInput{
		Products: []billing.DeliveredItem{{ItemID: "P1", Quantity: qty(5)}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeOverDelivery))

	// editing the first delivery replaces its report and keeps one expense entry
	got, err = f.svc.EndDelivery(f.ctx, b.Key(), d1, reconcile.EndDeliveryInput{
		Products: []billing.DeliveredItem{{ItemID: "P1", Quantity: qty(4)}},
		Expenses: []billing.Expense{{ID: expID, Kind: billing.ExpenseFuel, Amount: money("100"), Method: "Cash"}},
	})
	require.NoError(t, err)
	assert.Equal(t, qty(4), got.Products[0].DeliveredQuantity)

	cash, err := f.st.PaymentsAccounts.Get(f.ctx, "Cash")
	require.NoError(t, err)
	require.Len(t, cash.PaymentsOut, 1)
	assert.Equal(t, "EXP-"+expID, cash.PaymentsOut[0].ReferenceID)
	assertMoney(t, "400", cash.BalanceAmount)

	got, err = f.svc.EndDelivery(f.ctx, b.Key(), d2, reconcile.EndDeliveryInput{
		Products: []billing.DeliveredItem{{ItemID: "P1", Quantity: qty(6)}},
	})
	require.NoError(t, err)
	assert.Equal(t, billing.DeliveryDelivered, got.DeliveryStatus)
	assertMoney(t, "100", got.TotalFuelCharge)

	require.NoError(t, f.svc.CancelDelivery(f.ctx, b.Key(), d1))
	assertMoney(t, "500", f.balance("Cash"))
	assert.Equal(t, billing.DeliveryPartial, f.billing(b).DeliveryStatus)
}

func TestUpsertBillingExpenses_ZeroDeletes(t *testing.T) {
	f := newFixture(t)
	f.openAccount("Cash", "300")
	f.openAccount("UPI", "300")
	f.seedProduct("P1", 1)
	b := f.createBilling("INV-5", "100", reconcile.BillingLineInput{ItemID: "P1", Quantity: qty(1)})

	got, err := f.svc.UpsertBillingExpenses(f.ctx, b.Key(), []billing.Expense{{Amount: money("40"), Method: "Cash", Remark: "loading"}})
	require.NoError(t, err)
	expID := got.OtherExpenses[0].ID
	assertMoney(t, "260", f.balance("Cash"))

	_, err = f.svc.UpsertBillingExpenses(f.ctx, b.Key(), []billing.Expense{{ID: expID, Amount: money("40"), Method: "UPI"}})
	require.NoError(t, err)
	assertMoney(t, "300", f.balance("Cash"))
	assertMoney(t, "260", f.balance("UPI"))

	got, err = f.svc.UpsertBillingExpenses(f.ctx, b.Key(), []billing.Expense{{ID: expID, Amount: types.Zero(), Method: "UPI"}})
	require.NoError(t, err)
	assert.Empty(t, got.OtherExpenses)
	assertMoney(t, "300", f.balance("UPI"))
}

// --- Purchases ---

func TestCreatePurchase_NewSellerAndProduct(t *testing.T) {
	f := newFixture(t)
	f.openAccount("Cash", "1000")
	f.seedProduct("P1", 2)

	p, err := f.svc.CreatePurchase(f.ctx, reconcile.PurchaseInput{
		SellerID: "S1", SellerName: "Acme", InvoiceNo: "A-77",
		Items: []purchase.Item{
			{ItemID: "P1", Quantity: qty(5), BillPartPrice: money("100"), CashPartPrice: money("20")},
			{ItemID: "NEW1", Name: "Bolt", IsNew: true, Quantity: qty(10), BillPartPrice: money("10")},
		},
		OtherExpenses: []billing.Expense{{Amount: money("50"), Method: "Cash", Remark: "unloading"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "KP1", p.PurchaseID)
	assertMoney(t, "600", p.Totals.BillPartTotal)
	assertMoney(t, "700", p.Totals.TotalPurchaseAmount)

	assert.Equal(t, qty(7), f.stockOf("P1"))
	assert.Equal(t, qty(10), f.stockOf("NEW1"))
	rows, err := f.st.Registry.ListByItem(f.ctx, "NEW1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stock.ChangePurchaseNewProduct, rows[0].ChangeType)
	assert.Equal(t, "KP1", rows[0].InvoiceNo)

	sa, err := f.st.Suppliers.Get(f.ctx, "S1")
	require.NoError(t, err)
	require.Len(t, sa.Bills, 1)
	assertMoney(t, "600", sa.PendingAmount)

	sp, err := f.st.Sellers.Get(f.ctx, "S1")
	require.NoError(t, err)
	require.Len(t, sp.Billings, 1)
	assertMoney(t, "700", sp.PaymentRemaining)

	assertMoney(t, "950", f.balance("Cash"))

	next, err := f.svc.CreatePurchase(f.ctx, reconcile.PurchaseInput{
		PurchaseID: "KP1", SellerID: "S1", SellerName: "Acme",
		Items: []purchase.Item{{ItemID: "P1", Quantity: qty(1), BillPartPrice: money("1")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "KP2", next.PurchaseID)
}

func TestCreatePurchase_MissingItemRollsBack(t *testing.T) {
	f := newFixture(t)
	f.seedProduct("P1", 2)

	_, err := f.svc.CreatePurchase(f.ctx, reconcile.PurchaseInput{
		SellerID: "S2", SellerName: "Nobody",
		Items: []purchase.Item{
			{ItemID: "P1", Quantity: qty(5), BillPartPrice: money("10")},
			{ItemID: "GHOST", Quantity: qty(1), BillPartPrice: money("10")},
		},
	})
	assert.True(t, apperror.IsNotFound(err))
	assert.Equal(t, qty(2), f.stockOf("P1"))

	exists, err := f.st.Suppliers.Exists(f.ctx, "S2")
	require.NoError(t, err)
	assert.False(t, exists)
	list, err := f.st.Purchases.List(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdateAndDeletePurchase(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.CreatePurchase(f.ctx, reconcile.PurchaseInput{
		SellerID: "S1", SellerName: "Acme",
		Items: []purchase.Item{{ItemID: "N1", Name: "Nut", IsNew: true, Quantity: qty(5), BillPartPrice: money("10")}},
	})
	require.NoError(t, err)

	f.createBilling("INV-6", "30", reconcile.BillingLineInput{ItemID: "N1", Quantity: qty(3)})
	assert.Equal(t, qty(2), f.stockOf("N1"))

	// only the net change has to be covered by stock
	_, err = f.svc.UpdatePurchase(f.ctx, p.PurchaseID, reconcile.PurchaseInput{
		SellerID: "S1", SellerName: "Acme",
		Items: []purchase.Item{{ItemID: "N1", Quantity: qty(4), BillPartPrice: money("12")}},
	})
	require.NoError(t, err)
	assert.Equal(t, qty(1), f.stockOf("N1"))

	sa, err := f.st.Suppliers.Get(f.ctx, "S1")
	require.NoError(t, err)
	require.Len(t, sa.Bills, 1)
	assertMoney(t, "48", sa.TotalBillAmount)

	err = f.svc.DeletePurchase(f.ctx, p.PurchaseID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
	assert.Equal(t, qty(1), f.stockOf("N1"))
}

// --- Returns ---

func TestReturns_Directionality(t *testing.T) {
	f := newFixture(t)
	f.seedProduct("P1", 10)
	f.createBilling("INV-7", "200", reconcile.BillingLineInput{ItemID: "P1", Quantity: qty(2)})
	assert.Equal(t, qty(8), f.stockOf("P1"))

	r, err := f.svc.CreateReturn(f.ctx, reconcile.ReturnInput{
		ReturnType: returns.TypeBill, RelatedNo: "INV-7",
		Products: []returns.Item{{ItemID: "P1", Quantity: qty(1), ReturnPrice: money("100")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "CN1", r.ReturnNo)
	assertMoney(t, "100", r.TotalAmount)
	assert.Equal(t, qty(9), f.stockOf("P1"))

	p, err := f.svc.CreatePurchase(f.ctx, reconcile.PurchaseInput{
		SellerID: "S1", SellerName: "Acme",
		Items: []purchase.Item{{ItemID: "P1", Quantity: qty(5), BillPartPrice: money("10")}},
	})
	require.NoError(t, err)
	assert.Equal(t, qty(14), f.stockOf("P1"))

	r2, err := f.svc.CreateReturn(f.ctx, reconcile.ReturnInput{
		ReturnType: returns.TypePurchase, RelatedNo: p.PurchaseID,
		Products: []returns.Item{{ItemID: "P1", Quantity: qty(4)}},
	})
	require.NoError(t, err)
	assert.Equal(t, "CN2", r2.ReturnNo)
	assert.Equal(t, qty(10), f.stockOf("P1"))

	require.NoError(t, f.svc.DeleteReturn(f.ctx, r.ReturnNo))
	assert.Equal(t, qty(9), f.stockOf("P1"))

	_, err = f.svc.CreateReturn(f.ctx, reconcile.ReturnInput{
		ReturnType: returns.TypeBill, RelatedNo: "INV-404",
		Products: []returns.Item{{ItemID: "P1", Quantity: qty(1)}},
	})
	assert.True(t, apperror.IsNotFound(err))
}

func TestPurchaseReturn_InsufficientStockRollsBack(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.CreatePurchase(f.ctx, reconcile.PurchaseInput{
		SellerID: "S1", SellerName: "Acme",
		Items: []purchase.Item{{ItemID: "P1", Name: "Pipe", IsNew: true, Quantity: qty(6), BillPartPrice: money("10")}},
	})
	require.NoError(t, err)

	_, err = f.svc.CreateReturn(f.ctx, reconcile.ReturnInput{
		ReturnType: returns.TypePurchase, RelatedNo: p.PurchaseID,
		Products: []returns.Item{{ItemID: "P1", Quantity: qty(7)}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
	assert.Equal(t, qty(6), f.stockOf("P1"))

	list, err := f.st.Returns.List(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// --- Stock ---

func TestUpdateStock_AndRevert(t *testing.T) {
	f := newFixture(t)
	f.seedProduct("P1", 10)

	row, err := f.svc.UpdateStock(f.ctx, reconcile.StockUpdateInput{
		ItemID: "P1", Quantity: qty(-3), ChangeType: stock.ChangeStockDamage,
	})
	require.NoError(t, err)
	assert.Equal(t, qty(7), row.FinalStock)
	assert.Equal(t, stock.NoInvoice, row.InvoiceNo)

	_, err = f.svc.UpdateStock(f.ctx, reconcile.StockUpdateInput{
		ItemID: "P1", Quantity: qty(-8), ChangeType: stock.ChangeManualReduction,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	_, err = f.svc.UpdateStock(f.ctx, reconcile.StockUpdateInput{
		ItemID: "P1", Quantity: qty(1), ChangeType: stock.ChangePurchase,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	rev, err := f.svc.RevertStockUpdate(f.ctx, row.ID.String())
	require.NoError(t, err)
	assert.Equal(t, stock.ChangeRevertedStockUpdate, rev.ChangeType)
	assert.Equal(t, qty(10), f.stockOf("P1"))

	_, err = f.svc.RevertStockUpdate(f.ctx, row.ID.String())
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))

	b := f.createBilling("INV-8", "10", reconcile.BillingLineInput{ItemID: "P1", Quantity: qty(1)})
	rows, err := f.st.Registry.ListByItem(f.ctx, "P1")
	require.NoError(t, err)
	sale := rows[len(rows)-1]
	require.Equal(t, b.InvoiceNo, sale.InvoiceNo)
	_, err = f.svc.RevertStockUpdate(f.ctx, sale.ID.String())
	assert.True(t, apperror.HasCode(err, apperror.CodeBusinessRule))

	mismatches, err := f.svc.VerifyStock(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

// --- Parties ---

func TestSupplierPayment_AndReverse(t *testing.T) {
	f := newFixture(t)
	f.openAccount("Cash", "1000")
	_, err := f.svc.CreatePurchase(f.ctx, reconcile.PurchaseInput{
		SellerID: "S1", SellerName: "Acme",
		Items: []purchase.Item{{ItemID: "P1", Name: "Pipe", IsNew: true, Quantity: qty(6), BillPartPrice: money("100")}},
	})
	require.NoError(t, err)

	e, err := f.svc.PaySupplier(f.ctx, "S1", reconcile.PaymentInput{Amount: money("200"), Method: "Cash"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(e.ReferenceID, "PAY"))

	sa, err := f.st.Suppliers.Get(f.ctx, "S1")
	require.NoError(t, err)
	assertMoney(t, "400", sa.PendingAmount)
	cash, err := f.st.PaymentsAccounts.Get(f.ctx, "Cash")
	require.NoError(t, err)
	assertMoney(t, "800", cash.BalanceAmount)
	assert.Equal(t, e.ReferenceID, cash.PaymentsOut[0].ReferenceID)

	_, err = f.svc.PaySupplier(f.ctx, "S1", reconcile.PaymentInput{Amount: money("500"), Method: "Cash"})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientFunds))

	_, err = f.svc.PaySupplier(f.ctx, "S404", reconcile.PaymentInput{Amount: money("1"), Method: "Cash"})
	assert.True(t, apperror.IsNotFound(err))

	require.NoError(t, f.svc.ReverseSupplierPayment(f.ctx, "S1", e.ReferenceID))
	assertMoney(t, "1000", f.balance("Cash"))
	sa, err = f.st.Suppliers.Get(f.ctx, "S1")
	require.NoError(t, err)
	assertMoney(t, "600", sa.PendingAmount)
}

func TestSellerPayment_AndReverse(t *testing.T) {
	f := newFixture(t)
	f.openAccount("Bank", "1000")
	_, err := f.svc.CreatePurchase(f.ctx, reconcile.PurchaseInput{
		SellerID: "S1", SellerName: "Acme",
		Items: []purchase.Item{{ItemID: "P1", Name: "Pipe", IsNew: true, Quantity: qty(2), BillPartPrice: money("100"), CashPartPrice: money("50")}},
	})
	require.NoError(t, err)

	e, err := f.svc.PaySeller(f.ctx, "S1", reconcile.PaymentInput{Amount: money("300"), Method: "Bank"})
	require.NoError(t, err)
	sp, err := f.st.Sellers.Get(f.ctx, "S1")
	require.NoError(t, err)
	assertMoney(t, "0", sp.PaymentRemaining)
	assertMoney(t, "700", f.balance("Bank"))

	require.NoError(t, f.svc.ReverseSellerPayment(f.ctx, "S1", e.ReferenceID))
	assertMoney(t, "1000", f.balance("Bank"))
	assert.True(t, apperror.IsNotFound(f.svc.ReverseSellerPayment(f.ctx, "S1", e.ReferenceID)))
}

func TestDeleteCustomerAccount_RemovesMirroredPayments(t *testing.T) {
	f := newFixture(t)
	f.openAccount("Cash", "0")
	f.seedProduct("P1", 5)
	b := f.createBilling("INV-9", "1000", reconcile.BillingLineInput{ItemID: "P1", Quantity: qty(1)})
	_, err := f.svc.AddBillingPayment(f.ctx, b.Key(), reconcile.PaymentInput{Amount: money("500"), Method: "Cash"})
	require.NoError(t, err)
	_, err = f.svc.AddBillingPayment(f.ctx, b.Key(), reconcile.PaymentInput{Amount: money("100"), Method: "Internal Transfer"})
	require.NoError(t, err)
	assertMoney(t, "500", f.balance("Cash"))

	require.NoError(t, f.svc.DeleteCustomerAccount(f.ctx, "C1"))

	got := f.billing(b)
	assert.Empty(t, got.Payments)
	assert.Equal(t, billing.PaymentUnpaid, got.PaymentStatus)
	assertMoney(t, "0", f.balance("Cash"))

	exists, err := f.st.Customers.Exists(f.ctx, "C1")
	require.NoError(t, err)
	assert.False(t, exists)
}

// --- Maintenance ---

func TestRecompute_ReportsAndRepairsDrift(t *testing.T) {
	f := newFixture(t)
	f.openAccount("Cash", "400")

	acc, err := f.st.PaymentsAccounts.Get(f.ctx, "Cash")
	require.NoError(t, err)
	acc.BalanceAmount = money("999")
	require.NoError(t, f.st.PaymentsAccounts.Save(f.ctx, acc))

	report, err := f.svc.Recompute(f.ctx, true)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, "balanceAmount", report.Drifts[0].Field)
	assert.False(t, report.Applied)
	assertMoney(t, "999", f.balance("Cash"))

	report, err = f.svc.Recompute(f.ctx, false)
	require.NoError(t, err)
	assert.True(t, report.Applied)
	assertMoney(t, "400", f.balance("Cash"))

	report, err = f.svc.Recompute(f.ctx, true)
	require.NoError(t, err)
	assert.Empty(t, report.Drifts)
	assert.Empty(t, report.Violations)
}

func TestOperations_WriteOutboxAndAudit(t *testing.T) {
	f := newFixture(t)
	f.openAccount("Cash", "100")
	f.openAccount("Bank", "0")

	_, err := f.svc.PostTransfer(f.ctx, reconcile.TransferInput{From: "Cash", To: "Bank", Amount: money("10")})
	require.NoError(t, err)

	outbox := f.store.Outbox()
	require.NotEmpty(t, outbox)
	assert.Equal(t, events.TransferPosted, outbox[len(outbox)-1].EventType)

	var ops []string
	for _, r := range f.store.AuditTrail() {
		if r.Operation == "post_transfer" {
			ops = append(ops, r.EntityType)
		}
	}
	assert.ElementsMatch(t, []string{daybook.EntityDailyTransaction, "PaymentsAccount", "PaymentsAccount"}, ops)
}

func TestNextNumber(t *testing.T) {
	f := newFixture(t)
	next, err := f.svc.NextNumber(f.ctx, "CN")
	require.NoError(t, err)
	assert.Equal(t, "CN1", next)

	_, err = f.svc.NextNumber(f.ctx, "XX")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestVerifyStock_ReportsCountDrift(t *testing.T) {
	f := newFixture(t)
	f.seedProduct("P1", 5)
	f.seedProduct("P2", 2)

	p, err := f.st.Products.Get(f.ctx, "P1")
	require.NoError(t, err)
	p.CountInStock = qty(9)
	require.NoError(t, f.st.Products.Save(f.ctx, p))

	mismatches, err := f.svc.VerifyStock(f.ctx)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "P1", mismatches[0].ItemID)
	assert.Equal(t, qty(9), mismatches[0].CountInStock)
	assert.Equal(t, qty(5), mismatches[0].LastFinal)
	assert.Equal(t, -1, mismatches[0].RowIndex)
}

func TestReverseDailyTransaction_DispatchesTransfer(t *testing.T) {
	f := newFixture(t)
	f.openAccount("Cash", "50")
	f.openAccount("Bank", "0")

	dt, err := f.svc.PostTransfer(f.ctx, reconcile.TransferInput{From: "Cash", To: "Bank", Amount: money("50")})
	require.NoError(t, err)

	require.NoError(t, f.svc.ReverseDailyTransaction(f.ctx, dt.Key()))
	assertMoney(t, "50", f.balance("Cash"))
	assertMoney(t, "0", f.balance("Bank"))
	assert.True(t, apperror.IsNotFound(f.svc.ReverseDailyTransaction(f.ctx, dt.Key())))
}

func TestUpsertBillingExpenses_ClientIDsDoNotCollideAcrossBillings(t *testing.T) {
	f := newFixture(t)
	f.openAccount("Cash", "1000")
	f.seedProduct("P1", 10)
	b1 := f.createBilling("INV-11", "100", reconcile.BillingLineInput{ItemID: "P1", Quantity: qty(1)})
	b2 := f.createBilling("INV-12", "100", reconcile.BillingLineInput{ItemID: "P1", Quantity: qty(1)})

	_, err := f.svc.UpsertBillingExpenses(f.ctx, b1.Key(), []billing.Expense{{ID: "e1", Amount: money("100"), Method: "Cash"}})
	require.NoError(t, err)
	_, err = f.svc.UpsertBillingExpenses(f.ctx, b2.Key(), []billing.Expense{{ID: "e1", Amount: money("50"), Method: "Cash"}})
	require.NoError(t, err)
	assertMoney(t, "850", f.balance("Cash"))

	id1 := f.billing(b1).OtherExpenses[0].ID
	id2 := f.billing(b2).OtherExpenses[0].ID
	assert.NotEqual(t, "e1", id1)
	assert.NotEqual(t, id1, id2)

	require.NoError(t, f.svc.DeleteBilling(f.ctx, b2.Key()))
	cash, err := f.st.PaymentsAccounts.Get(f.ctx, "Cash")
	require.NoError(t, err)
	assertMoney(t, "900", cash.BalanceAmount)
	require.Len(t, cash.PaymentsOut, 1)
	assert.Equal(t, ledger.ExpenseRef(id1), cash.PaymentsOut[0].ReferenceID)
}

func TestCreateReturn_KeepsSuppliedNumberUnlessTaken(t *testing.T) {
	f := newFixture(t)
	f.seedProduct("P1", 10)
	f.createBilling("INV-13", "300", reconcile.BillingLineInput{ItemID: "P1", Quantity: qty(3)})

	in := reconcile.ReturnInput{
		ReturnType: returns.TypeBill, ReturnNo: "CN7", RelatedNo: "INV-13",
		Products: []returns.Item{{ItemID: "P1", Quantity: qty(1), ReturnPrice: money("100")}},
	}
	r, err := f.svc.CreateReturn(f.ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "CN7", r.ReturnNo)

	r2, err := f.svc.CreateReturn(f.ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "CN8", r2.ReturnNo)

	stored, err := f.st.Returns.Get(f.ctx, "CN7")
	require.NoError(t, err)
	assert.Equal(t, r.ID, stored.ID)
	assert.Equal(t, qty(9), f.stockOf("P1"))
}

// --- Concurrency ---

func TestPostings_ConcurrentOnOneAccount(t *testing.T) {
	f := newFixture(t, func(c *reconcile.Config) { c.Locker = lock.NewLocal() })
	f.openAccount("Cash", "1000")
	f.seedProduct("P1", 1)
	b := f.createBilling("INV-14", "500", reconcile.BillingLineInput{ItemID: "P1", Quantity: qty(1)})

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.PostSimple(f.ctx, reconcile.SimpleInput{
				Type: daybook.TypeOut, Account: "Cash", Amount: money("10"), Counterparty: "fuel",
			})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.AddBillingPayment(f.ctx, b.Key(), reconcile.PaymentInput{Amount: money("5"), Method: "Cash"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	cash, err := f.st.PaymentsAccounts.Get(f.ctx, "Cash")
	require.NoError(t, err)
	assert.Len(t, cash.PaymentsIn, n+1)
	assert.Len(t, cash.PaymentsOut, n)
	assertMoney(t, "950", cash.BalanceAmount)
	assertMoney(t, ledger.Reduce(cash.PaymentsIn, cash.PaymentsOut).Net.String(), cash.BalanceAmount)
	assertMoney(t, "50", f.billing(b).BillingAmountReceived)
}

// flakyAccounts fails the next Save with a version conflict once armed.
type flakyAccounts struct {
	domain.Repository[*accounts.PaymentsAccount]
	armed atomic.Bool
	saves atomic.Int32
}

func (r *flakyAccounts) Save(ctx context.Context, acc *accounts.PaymentsAccount) error {
	r.saves.Add(1)
	if r.armed.CompareAndSwap(true, false) {
		return apperror.NewConcurrentModification(accounts.EntityPaymentsAccount, acc.Name)
	}
	return r.Repository.Save(ctx, acc)
}

func TestRun_RetriesAfterConcurrentModification(t *testing.T) {
	var flaky *flakyAccounts
	f := newFixture(t, func(c *reconcile.Config) {
		flaky = &flakyAccounts{Repository: c.Stores.PaymentsAccounts}
		c.Stores.PaymentsAccounts = flaky
	})
	f.openAccount("Cash", "300")

	flaky.armed.Store(true)
	flaky.saves.Store(0)
	_, err := f.svc.PostSimple(f.ctx, reconcile.SimpleInput{
		Type: daybook.TypeOut, Account: "Cash", Amount: money("120"), Counterparty: "rent",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), flaky.saves.Load())

	cash, err := f.st.PaymentsAccounts.Get(f.ctx, "Cash")
	require.NoError(t, err)
	assert.Len(t, cash.PaymentsOut, 1)
	assertMoney(t, "180", cash.BalanceAmount)
}
