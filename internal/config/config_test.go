package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{"STORAGE_DRIVER": "memory"}))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, int32(25), cfg.DBMaxConns)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.True(t, cfg.IsDevelopment())
}

func TestFromEnv_PostgresRequiresDatabaseURL(t *testing.T) {
	_, err := FromEnv(env(map[string]string{"STORAGE_DRIVER": "postgres"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DatabaseURL")
}

func TestFromEnv_ProductionRequiresJWTSecret(t *testing.T) {
	_, err := FromEnv(env(map[string]string{
		"APP_ENV":        "production",
		"STORAGE_DRIVER": "memory",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWTSecret")
}

func TestFromEnv_PubSubNeedsBothKeys(t *testing.T) {
	_, err := FromEnv(env(map[string]string{
		"STORAGE_DRIVER":    "memory",
		"PUBSUB_PROJECT_ID": "acme",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PubSubTopic")
}

func TestFromEnv_InstanceIDMustBeAlphanumeric(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{"STORAGE_DRIVER": "memory", "INSTANCE_ID": "api2"}))
	require.NoError(t, err)
	assert.Equal(t, "api2", cfg.InstanceID)

	_, err = FromEnv(env(map[string]string{"STORAGE_DRIVER": "memory", "INSTANCE_ID": "api-2"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InstanceID")
}

func TestFromEnv_BadDuration(t *testing.T) {
	_, err := FromEnv(env(map[string]string{
		"STORAGE_DRIVER": "memory",
		"LOCK_TTL":       "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOCK_TTL")
}

func TestFromEnv_Full(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"APP_ENV":              "production",
		"APP_PORT":             "9090",
		"LOG_LEVEL":            "WARN",
		"DATABASE_URL":         "postgres://ledger@localhost/ledger",
		"DB_MAX_CONNS":         "40",
		"TX_STATEMENT_TIMEOUT": "5s",
		"REDIS_ADDRESS":        "localhost:6379",
		"PUBSUB_PROJECT_ID":    "acme",
		"PUBSUB_TOPIC":         "ledger-events",
		"OUTBOX_POLL_INTERVAL": "500ms",
		"JWT_SECRET":           "s3cret",
	}))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, int32(40), cfg.DBMaxConns)
	assert.Equal(t, 5*time.Second, cfg.TxStatementTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.OutboxPollInterval)
	assert.False(t, cfg.IsDevelopment())
}
