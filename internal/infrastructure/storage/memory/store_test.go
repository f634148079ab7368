package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/entity"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/accounts"
	"tradeledger/internal/domain/ledger"
	"tradeledger/internal/domain/purchase"
	"tradeledger/internal/domain/stock"
)

func TestTable_SaveVersioning(t *testing.T) {
	ctx := context.Background()
	s := New()
	repo := s.Stores().PaymentsAccounts

	acc := accounts.NewPaymentsAccount("Cash", "tester")
	require.NoError(t, repo.Save(ctx, acc))
	assert.Equal(t, 1, acc.GetVersion())

	dup := accounts.NewPaymentsAccount("Cash", "tester")
	err := repo.Save(ctx, dup)
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicate))

	first, err := repo.Get(ctx, "Cash")
	require.NoError(t, err)
	second, err := repo.Get(ctx, "Cash")
	require.NoError(t, err)

	require.NoError(t, first.Credit(ledger.Entry{ReferenceID: "IN1", Amount: types.MustMoney("10")}))
	require.NoError(t, repo.Save(ctx, first))
	assert.Equal(t, 2, first.GetVersion())

	err = repo.Save(ctx, second)
	assert.True(t, apperror.IsConcurrentModification(err))
}

func TestTable_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := New().Stores().PaymentsAccounts

	require.NoError(t, repo.Save(ctx, accounts.NewPaymentsAccount("Bank", "tester")))
	a, err := repo.Get(ctx, "Bank")
	require.NoError(t, err)
	require.NoError(t, a.Credit(ledger.Entry{ReferenceID: "IN1", Amount: types.MustMoney("10")}))

	b, err := repo.Get(ctx, "Bank")
	require.NoError(t, err)
	assert.Empty(t, b.PaymentsIn)
}

func TestTable_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	repo := New().Stores().PaymentsAccounts

	for _, name := range []string{"UPI", "Bank", "Cash"} {
		require.NoError(t, repo.Save(ctx, accounts.NewPaymentsAccount(name, "tester")))
	}
	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Bank", list[0].Name)

	require.NoError(t, repo.Delete(ctx, "UPI"))
	assert.True(t, apperror.IsNotFound(repo.Delete(ctx, "UPI")))
	ok, err := repo.Exists(ctx, "UPI")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	st := s.Stores()
	txm := s.TxManager()

	require.NoError(t, st.PaymentsAccounts.Save(ctx, accounts.NewPaymentsAccount("Cash", "tester")))

	boom := errors.New("boom")
	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		acc, err := st.PaymentsAccounts.Get(ctx, "Cash")
		require.NoError(t, err)
		require.NoError(t, acc.Credit(ledger.Entry{ReferenceID: "IN1", Amount: types.MustMoney("5")}))
		require.NoError(t, st.PaymentsAccounts.Save(ctx, acc))
		require.NoError(t, st.Registry.Append(ctx, stock.Change{ItemID: "P1"}))

		// nested call joins the outer transaction
		return txm.RunInTransaction(ctx, func(context.Context) error { return boom })
	})
	require.ErrorIs(t, err, boom)

	acc, err := st.PaymentsAccounts.Get(ctx, "Cash")
	require.NoError(t, err)
	assert.Empty(t, acc.PaymentsIn)
	assert.Equal(t, 1, acc.GetVersion())

	rows, err := st.Registry.ListByItem(ctx, "P1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestNumberedRepo_MaxSuffix(t *testing.T) {
	ctx := context.Background()
	repo := New().Stores().Purchases

	for _, pid := range []string{"KP3", "KP12", "legacy-7"} {
		p := &purchase.Purchase{BaseDocument: entity.NewBaseDocument("tester"), PurchaseID: pid}
		require.NoError(t, repo.Save(ctx, p))
	}
	max, err := repo.MaxSuffix(ctx, "KP")
	require.NoError(t, err)
	assert.Equal(t, int64(12), max)
}
