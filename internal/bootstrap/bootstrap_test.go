package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/config"
)

func TestBuild_Memory(t *testing.T) {
	cfg, err := config.FromEnv(func(key string) string {
		if key == "STORAGE_DRIVER" {
			return config.StorageMemory
		}
		return ""
	})
	require.NoError(t, err)

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Pool)
	assert.Nil(t, app.Redis)
	assert.Empty(t, app.Checks())

	ctx := context.Background()
	_, err = app.Service.OpenPaymentsAccount(ctx, "Cash")
	require.NoError(t, err)
	ok, err := app.Stores.PaymentsAccounts.Exists(ctx, "Cash")
	require.NoError(t, err)
	assert.True(t, ok)
}
