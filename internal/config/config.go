// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config is the validated process configuration.
type Config struct {
	Env      string `validate:"required,oneof=development staging production test"`
	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"oneof=debug info warn error"`

	InstanceID string `validate:"omitempty,alphanum,max=16"` // suffix of ledger reference ids

	StorageDriver      string        `validate:"oneof=postgres memory"`
	DatabaseURL        string        `validate:"required_if=StorageDriver postgres"`
	DBMaxConns         int32         `validate:"gte=1,lte=500"`
	TxStatementTimeout time.Duration `validate:"gte=0"`

	RedisAddress string        // empty: in-process locker
	LockTTL      time.Duration `validate:"gt=0"`

	PubSubProjectID       string `validate:"required_with=PubSubTopic"`
	PubSubTopic           string `validate:"required_with=PubSubProjectID"`
	PubSubCredentialsJSON string

	OutboxBatchSize    int           `validate:"gte=1,lte=1000"`
	OutboxPollInterval time.Duration `validate:"gt=0"`

	JWTSecret string `validate:"required_if=Env production"`
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads .env when present, then the environment, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}
	cfg := &Config{
		Env:      r.str("APP_ENV", "development"),
		Port:     r.str("APP_PORT", "8080"),
		LogLevel: strings.ToLower(r.str("LOG_LEVEL", "info")),

		InstanceID: r.str("INSTANCE_ID", ""),

		StorageDriver:      r.str("STORAGE_DRIVER", StoragePostgres),
		DatabaseURL:        r.str("DATABASE_URL", ""),
		DBMaxConns:         int32(r.integer("DB_MAX_CONNS", 25)),
		TxStatementTimeout: r.duration("TX_STATEMENT_TIMEOUT", 30*time.Second),

		RedisAddress: r.str("REDIS_ADDRESS", ""),
		LockTTL:      r.duration("LOCK_TTL", 30*time.Second),

		PubSubProjectID:       r.str("PUBSUB_PROJECT_ID", ""),
		PubSubTopic:           r.str("PUBSUB_TOPIC", ""),
		PubSubCredentialsJSON: r.str("PUBSUB_CREDENTIALS_JSON", ""),

		OutboxBatchSize:    r.integer("OUTBOX_BATCH_SIZE", 100),
		OutboxPollInterval: r.duration("OUTBOX_POLL_INTERVAL", 2*time.Second),

		JWTSecret: r.str("JWT_SECRET", ""),
	}
	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}

	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
			}
			return nil, fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) str(key, fallback string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (r *reader) integer(key string, fallback int) int {
	v := r.getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	v := r.getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
