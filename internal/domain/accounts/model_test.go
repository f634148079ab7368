package accounts

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/ledger"
)

func entry(ref string, amount int64) ledger.Entry {
	return ledger.Entry{ReferenceID: ref, Amount: types.NewMoney(float64(amount)), Date: time.Now()}
}

func TestPaymentsAccount_Recompute(t *testing.T) {
	acc := NewPaymentsAccount("Cash", "tester")
	require.NoError(t, acc.Credit(entry("IN1", 500)))
	require.NoError(t, acc.Recompute())
	assert.True(t, acc.BalanceAmount.Equal(types.NewMoney(500)))

	require.NoError(t, acc.Debit(entry("OUT1", 200)))
	require.NoError(t, acc.Recompute())
	assert.True(t, acc.BalanceAmount.Equal(types.NewMoney(300)))
}

func TestPaymentsAccount_NegativeBalanceRejected(t *testing.T) {
	acc := NewPaymentsAccount("Cash", "tester")
	require.NoError(t, acc.Credit(entry("IN1", 100)))
	require.NoError(t, acc.Debit(entry("OUT1", 150)))

	err := acc.Recompute()
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientFunds))
}

func TestPaymentsAccount_DuplicateReference(t *testing.T) {
	acc := NewPaymentsAccount("Cash", "tester")
	require.NoError(t, acc.Credit(entry("IN1", 100)))
	err := acc.Credit(entry("IN1", 100))
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicate))
}

func TestPaymentsAccount_UpsertDebitIsIdempotent(t *testing.T) {
	acc := NewPaymentsAccount("Cash", "tester")
	require.NoError(t, acc.Credit(entry("IN1", 1000)))
	require.NoError(t, acc.UpsertDebit(entry("EXP-1", 200)))
	require.NoError(t, acc.UpsertDebit(entry("EXP-1", 250)))
	require.NoError(t, acc.Recompute())

	assert.Len(t, acc.PaymentsOut, 1)
	assert.True(t, acc.BalanceAmount.Equal(types.NewMoney(750)))
}

func TestPaymentsAccount_UpsertDebitRefusesOtherDocument(t *testing.T) {
	acc := NewPaymentsAccount("Cash", "tester")
	require.NoError(t, acc.Credit(entry("IN1", 1000)))

	first := entry("EXP-1", 100)
	first.InvoiceNo = "INV-1"
	require.NoError(t, acc.UpsertDebit(first))

	second := entry("EXP-1", 50)
	second.InvoiceNo = "INV-2"
	err := acc.UpsertDebit(second)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))

	require.Len(t, acc.PaymentsOut, 1)
	assert.Equal(t, "INV-1", acc.PaymentsOut[0].InvoiceNo)
	assert.True(t, acc.PaymentsOut[0].Amount.Equal(types.NewMoney(100)))
}

// Balance always equals the full reduction after any accepted sequence of mutations.
func TestPaymentsAccount_BalanceMatchesReduction(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	acc := NewPaymentsAccount("Bank", "tester")

	for i := 0; i < 300; i++ {
		ref := fmt.Sprintf("R%d", i)
		amount := int64(rng.Intn(500) + 1)

		snapshotIn, snapshotOut := acc.PaymentsIn, acc.PaymentsOut
		switch rng.Intn(3) {
		case 0:
			require.NoError(t, acc.Credit(entry(ref, amount)))
		case 1:
			require.NoError(t, acc.Debit(entry(ref, amount)))
		default:
			if len(acc.PaymentsIn) > 0 {
				acc.RemoveCredit(acc.PaymentsIn[rng.Intn(len(acc.PaymentsIn))].ReferenceID)
			}
		}

		if err := acc.Recompute(); err != nil {
			assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientFunds))
			acc.PaymentsIn, acc.PaymentsOut = snapshotIn, snapshotOut
			require.NoError(t, acc.Recompute())
		}

		want := ledger.Sum(acc.PaymentsIn).Sub(ledger.Sum(acc.PaymentsOut))
		require.True(t, acc.BalanceAmount.Equal(want), "step %d", i)
		require.False(t, acc.BalanceAmount.IsNegative())
	}
}

func TestSupplierAccount_Pending(t *testing.T) {
	acc := NewSupplierAccount("S1", "Acme", "tester")
	require.NoError(t, acc.UpsertBill(entry("KP1", 600)))
	require.NoError(t, acc.AddPayment(entry("PAY1", 200)))
	require.NoError(t, acc.Recompute())

	assert.True(t, acc.TotalBillAmount.Equal(types.NewMoney(600)))
	assert.True(t, acc.PaidAmount.Equal(types.NewMoney(200)))
	assert.True(t, acc.PendingAmount.Equal(types.NewMoney(400)))

	assert.True(t, acc.RemoveBill("KP1"))
	err := acc.Recompute()
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientFunds))
}

func TestSellerPayment_Remaining(t *testing.T) {
	sp := NewSellerPayment("S1", "Acme", "tester")
	require.NoError(t, sp.UpsertBilling(entry("KP1", 1000)))
	require.NoError(t, sp.UpsertBilling(entry("KP1", 900)))
	require.NoError(t, sp.AddPayment(entry("PAY1", 100)))
	require.NoError(t, sp.Recompute())

	assert.Len(t, sp.Billings, 1)
	assert.True(t, sp.PaymentRemaining.Equal(types.NewMoney(800)))
}

func TestCustomerAccount_Pending(t *testing.T) {
	ca := NewCustomerAccount("C1", "Jane", "tester")
	require.NoError(t, ca.UpsertBill(entry("INV-1", 1000)))
	require.NoError(t, ca.UpsertPayment(entry("PAY1", 300)))
	require.NoError(t, ca.Recompute())
	assert.True(t, ca.PendingAmount.Equal(types.NewMoney(700)))

	require.NoError(t, ca.UpsertPayment(entry("PAY2", 800)))
	assert.True(t, apperror.HasCode(ca.Recompute(), apperror.CodeInsufficientFunds))
}
