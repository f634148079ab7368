package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/ledger"
)

func money(s string) types.Money { return types.MustMoney(s) }

func payment(ref, amount string) ledger.Entry {
	return ledger.Entry{ReferenceID: ref, Amount: money(amount), Method: "Cash", Date: time.Now()}
}

func newTestBilling(total string, lines ...Product) *Billing {
	if len(lines) == 0 {
		lines = []Product{{ItemID: "P1", Name: "Widget", Quantity: types.NewQuantity(10)}}
	}
	return NewBilling("INV-1", "C1", "Jane", money(total), lines, "tester")
}

func TestDerivePaymentStatus(t *testing.T) {
	tests := []struct {
		name     string
		received string
		total    string
		want     PaymentStatus
	}{
		{"nothing received", "0", "5000", PaymentUnpaid},
		{"partial", "2000", "5000", PaymentPartial},
		{"exact", "5000", "5000", PaymentPaid},
		{"over", "5001", "5000", PaymentPaid},
		{"zero total zero received", "0", "0", PaymentUnpaid},
		{"zero total something received", "1", "0", PaymentPaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DerivePaymentStatus(money(tt.received), money(tt.total)))
		})
	}
}

func TestDerivePaymentStatus_MonotonicInReceived(t *testing.T) {
	rank := map[PaymentStatus]int{PaymentUnpaid: 0, PaymentPartial: 1, PaymentPaid: 2}
	total := money("100")
	prev := rank[DerivePaymentStatus(types.Zero(), total)]
	for cents := int64(1); cents <= 15000; cents += 37 {
		cur := rank[DerivePaymentStatus(types.NewMoney(float64(cents)/100), total)]
		require.GreaterOrEqual(t, cur, prev, "received=%d cents", cents)
		prev = cur
	}
}

func TestAddPayment_Scenario(t *testing.T) {
	b := newTestBilling("5000")
	assert.Equal(t, PaymentUnpaid, b.PaymentStatus)

	require.NoError(t, b.AddPayment(payment("PAY1", "2000")))
	assert.Equal(t, PaymentPartial, b.PaymentStatus)
	assert.True(t, b.BillingAmountReceived.Equal(money("2000")))
	assert.Equal(t, "INV-1", b.Payments[0].InvoiceNo)

	require.NoError(t, b.AddPayment(payment("PAY2", "3000")))
	assert.Equal(t, PaymentPaid, b.PaymentStatus)
	assert.True(t, b.BillingAmountReceived.Equal(money("5000")))

	err := b.AddPayment(payment("PAY3", "1"))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeExceedsTotal))
	assert.Len(t, b.Payments, 2)
	assert.True(t, b.BillingAmountReceived.Equal(money("5000")))
}

func TestUpdateAndRemovePayment(t *testing.T) {
	b := newTestBilling("1000")
	require.NoError(t, b.AddPayment(payment("PAY1", "400")))

	old, err := b.UpdatePayment("PAY1", payment("", "900"))
	require.NoError(t, err)
	assert.True(t, old.Amount.Equal(money("400")))
	assert.True(t, b.BillingAmountReceived.Equal(money("900")))

	_, err = b.UpdatePayment("PAY1", payment("", "1001"))
	assert.True(t, apperror.HasCode(err, apperror.CodeExceedsTotal))
	assert.True(t, b.BillingAmountReceived.Equal(money("900")))

	_, err = b.RemovePayment("PAY1")
	require.NoError(t, err)
	assert.Equal(t, PaymentUnpaid, b.PaymentStatus)

	_, err = b.RemovePayment("PAY1")
	assert.True(t, apperror.IsNotFound(err))
}

func TestEndDelivery_CumulativeCap(t *testing.T) {
	b := newTestBilling("100")

	first, err := b.StartDelivery("", "driver-1", GeoStamp{Latitude: 1, Longitude: 2})
	require.NoError(t, err)
	_, err = b.EndDelivery(first, GeoStamp{}, []DeliveredItem{{ItemID: "P1", Quantity: types.NewQuantity(6)}}, nil)
	require.NoError(t, err)
	assert.Equal(t, DeliveryPartial, b.Products[0].DeliveryStatus)
	assert.Equal(t, DeliveryPartial, b.DeliveryStatus)

	second, err := b.StartDelivery("", "driver-1", GeoStamp{})
	require.NoError(t, err)
	_, err = b.EndDelivery(second, GeoStamp{}, []DeliveredItem{{ItemID: "P1", Quantity: types.NewQuantity(5)}}, nil)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeOverDelivery))
	assert.Equal(t, types.NewQuantity(6), b.Products[0].DeliveredQuantity)

	_, err = b.EndDelivery(second, GeoStamp{}, []DeliveredItem{{ItemID: "P1", Quantity: types.NewQuantity(4)}}, nil)
	require.NoError(t, err)
	assert.Equal(t, DeliveryDelivered, b.Products[0].DeliveryStatus)
	assert.Equal(t, DeliveryDelivered, b.DeliveryStatus)

	d, ok := b.Delivery(second)
	require.True(t, ok)
	assert.Equal(t, DeliveryDelivered, d.DeliveryStatus)
	assert.True(t, d.Ended)
}

func TestEndDelivery_ReEndReplacesPreviousReport(t *testing.T) {
	b := newTestBilling("100")
	did, err := b.StartDelivery("D1", "", GeoStamp{})
	require.NoError(t, err)

	_, err = b.EndDelivery(did, GeoStamp{}, []DeliveredItem{{ItemID: "P1", Quantity: types.NewQuantity(8)}}, nil)
	require.NoError(t, err)
	_, err = b.EndDelivery(did, GeoStamp{}, []DeliveredItem{{ItemID: "P1", Quantity: types.NewQuantity(3)}}, nil)
	require.NoError(t, err)

	assert.Equal(t, types.NewQuantity(3), b.Products[0].DeliveredQuantity)
}

func TestDeliveryStatus_OnlyTouchedProducts(t *testing.T) {
	b := newTestBilling("100",
		Product{ItemID: "P1", Name: "A", Quantity: types.NewQuantity(2)},
		Product{ItemID: "P2", Name: "B", Quantity: types.NewQuantity(5)},
	)
	did, err := b.StartDelivery("", "", GeoStamp{})
	require.NoError(t, err)
	_, err = b.EndDelivery(did, GeoStamp{}, []DeliveredItem{{ItemID: "P1", Quantity: types.NewQuantity(2)}}, nil)
	require.NoError(t, err)

	d, _ := b.Delivery(did)
	assert.Equal(t, DeliveryDelivered, d.DeliveryStatus)
	assert.Equal(t, DeliveryPartial, b.DeliveryStatus)
	assert.Equal(t, DeliveryPending, b.Products[1].DeliveryStatus)
}

func TestEndDelivery_Expenses(t *testing.T) {
	b := newTestBilling("100")
	did, err := b.StartDelivery("", "", GeoStamp{})
	require.NoError(t, err)

	diff, err := b.EndDelivery(did, GeoStamp{}, nil, []Expense{
		{ID: "F1", Kind: ExpenseFuel, Amount: money("30"), Method: "Cash"},
		{Kind: ExpenseOther, Amount: money("12.5"), Method: "Cash"},
	})
	require.NoError(t, err)
	require.Len(t, diff.Upserted, 2)
	assert.Empty(t, diff.Removed)
	assert.True(t, b.TotalFuelCharge.Equal(money("30")))
	assert.True(t, b.TotalOtherExpenses.Equal(money("12.5")))
	fuelID, otherID := diff.Upserted[0].ID, diff.Upserted[1].ID
	assert.NotEqual(t, "F1", fuelID, "ids are issued by the billing")
	assert.NotEmpty(t, otherID)

	diff, err = b.EndDelivery(did, GeoStamp{}, nil, []Expense{
		{ID: fuelID, Kind: ExpenseFuel, Amount: money("0"), Method: "Cash"},
		{ID: otherID, Kind: ExpenseOther, Amount: money("20"), Method: "Bank"},
	})
	require.NoError(t, err)
	assert.Len(t, diff.Removed, 2, "zero amount deletes, method change removes old entry")
	assert.Len(t, diff.Upserted, 1)
	assert.True(t, b.TotalFuelCharge.IsZero())
	assert.True(t, b.TotalOtherExpenses.Equal(money("20")))

	_, err = b.UpsertOtherExpenses([]Expense{{Amount: money("5"), Method: "Cash"}})
	require.NoError(t, err)
	assert.True(t, b.TotalOtherExpenses.Equal(money("25")))
	assert.Len(t, b.AllExpenses(), 2)
}

func TestEndDelivery_SkipsZeroLines(t *testing.T) {
	b := newTestBilling("100",
		Product{ItemID: "P1", Name: "A", Quantity: types.NewQuantity(10)},
		Product{ItemID: "P2", Name: "B", Quantity: types.NewQuantity(4)},
	)
	did, err := b.StartDelivery("", "", GeoStamp{})
	require.NoError(t, err)

	_, err = b.EndDelivery(did, GeoStamp{}, []DeliveredItem{
		{ItemID: "P1", Quantity: types.NewQuantity(5)},
		{ItemID: "P2", Quantity: 0},
	}, nil)
	require.NoError(t, err)

	d, ok := b.Delivery(did)
	require.True(t, ok)
	assert.Equal(t, []DeliveredItem{{ItemID: "P1", Quantity: types.NewQuantity(5)}}, d.ProductsDelivered)
	assert.Equal(t, DeliveryPartial, d.DeliveryStatus)
	assert.Equal(t, types.NewQuantity(5), b.Products[0].DeliveredQuantity)
	assert.Equal(t, DeliveryPending, b.Products[1].DeliveryStatus)
}

func TestEndDelivery_RejectsNegativeLineBeforeCollapsing(t *testing.T) {
	b := newTestBilling("100",
		Product{ItemID: "P1", Name: "A", Quantity: types.NewQuantity(10)},
		Product{ItemID: "P2", Name: "B", Quantity: types.NewQuantity(4)},
	)
	did, err := b.StartDelivery("", "", GeoStamp{})
	require.NoError(t, err)

	_, err = b.EndDelivery(did, GeoStamp{}, []DeliveredItem{
		{ItemID: "P1", Quantity: types.NewQuantity(5)},
		{ItemID: "P2", Quantity: types.NewQuantity(-3)},
		{ItemID: "P2", Quantity: types.NewQuantity(4)},
	}, nil)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	d, _ := b.Delivery(did)
	assert.False(t, d.Ended)
	assert.Empty(t, d.ProductsDelivered)
	assert.True(t, b.Products[0].DeliveredQuantity.IsZero())
	assert.True(t, b.Products[1].DeliveredQuantity.IsZero())
}

func TestCancelDelivery(t *testing.T) {
	b := newTestBilling("100")
	did, _ := b.StartDelivery("", "", GeoStamp{})
	_, err := b.EndDelivery(did, GeoStamp{}, []DeliveredItem{{ItemID: "P1", Quantity: types.NewQuantity(10)}},
		[]Expense{{ID: "F1", Kind: ExpenseFuel, Amount: money("9"), Method: "Cash"}})
	require.NoError(t, err)
	assert.Equal(t, DeliveryDelivered, b.DeliveryStatus)

	removed, err := b.CancelDelivery(did)
	require.NoError(t, err)
	assert.Len(t, removed, 1)
	assert.Equal(t, DeliveryPending, b.DeliveryStatus)
	assert.True(t, b.TotalFuelCharge.IsZero())

	_, err = b.CancelDelivery(did)
	assert.True(t, apperror.IsNotFound(err))
}

func TestNeededToPurchaseFlag(t *testing.T) {
	b := newTestBilling("100")
	assert.False(t, b.IsNeededToPurchase)

	b.AddNeeded(NeededItem{ItemID: "P1", Quantity: types.NewQuantity(2)})
	b.AddNeeded(NeededItem{ItemID: "P1", Quantity: types.NewQuantity(1)})
	assert.True(t, b.IsNeededToPurchase)
	assert.Equal(t, types.NewQuantity(3), b.NeededToPurchase[0].Quantity)

	assert.True(t, b.RemoveNeeded("P1"))
	assert.False(t, b.IsNeededToPurchase)
}

func TestValidate(t *testing.T) {
	b := newTestBilling("100")
	assert.NoError(t, b.Validate())

	b.Products = append(b.Products, Product{ItemID: "P1", Quantity: types.NewQuantity(1)})
	assert.True(t, apperror.HasCode(b.Validate(), apperror.CodeValidation))
}
