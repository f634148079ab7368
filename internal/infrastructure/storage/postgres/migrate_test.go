package postgres

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_CoverEveryRepositoryTable(t *testing.T) {
	var all strings.Builder
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	for _, name := range names {
		body, err := migrationsFS.ReadFile(name)
		require.NoError(t, err)
		all.Write(body)
	}

	for _, table := range []string{
		TablePaymentsAccounts, TableSupplierAccounts, TableSellerPayments, TableCustomerAccounts,
		TableBillings, TableNeeds, TableProducts, TablePurchases, TableReturns,
		TableDailyTransactions, TableCalendarEvents, TableStockRegistry,
		"sys_outbox", "sys_outbox_dlq", "sys_audit",
	} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}
