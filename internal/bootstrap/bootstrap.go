// Package bootstrap wires storage, locking, metrics and the reconcile
// service from a Config. It is shared by the server and the CLI.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tradeledger/internal/config"
	"tradeledger/internal/core/tx"
	"tradeledger/internal/domain/audit"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/domain/ledger"
	"tradeledger/internal/domain/reconcile"
	"tradeledger/internal/infrastructure/http/v1/handlers"
	"tradeledger/internal/infrastructure/lock"
	"tradeledger/internal/infrastructure/metrics"
	"tradeledger/internal/infrastructure/storage/memory"
	"tradeledger/internal/infrastructure/storage/postgres"
	"tradeledger/pkg/logger"
)

// App is a wired reconcile service with the resources it holds.
type App struct {
	Service *reconcile.Service
	Stores  reconcile.Stores
	Metrics *metrics.Metrics

	// Pool is nil with the memory driver.
	Pool  *postgres.Pool
	Audit *postgres.AuditService

	// Redis is nil when locks are in-process.
	Redis *redis.Client

	closers []func()
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Checks returns the readiness probes of the backing services.
func (a *App) Checks() map[string]handlers.Pinger {
	checks := make(map[string]handlers.Pinger)
	if a.Pool != nil {
		checks["database"] = a.Pool
	}
	if a.Redis != nil {
		rdb := a.Redis
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	return checks
}

// Build connects the configured storage and lock backends and creates the service.
func Build(ctx context.Context, cfg *config.Config) (app *App, err error) {
	app = &App{Metrics: metrics.New()}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	var (
		txm       tx.Manager
		publisher events.Publisher
		auditor   audit.Logger
	)

	switch cfg.StorageDriver {
	case config.StorageMemory:
		store := memory.New()
		txm, publisher, auditor = store.TxManager(), store, store
		app.Stores = store.Stores()
		logger.Warn(ctx, "using in-memory storage, data is lost on exit")

	default:
		pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL, cfg.DBMaxConns))
		if err != nil {
			return app, fmt.Errorf("connect database: %w", err)
		}
		app.Pool = pool
		app.closers = append(app.closers, pool.Close)
		app.Metrics.WatchPool(pool)

		if err := postgres.Migrate(ctx, pool); err != nil {
			return app, fmt.Errorf("migrate: %w", err)
		}

		pgTx := postgres.NewTxManager(pool, cfg.TxStatementTimeout)
		auditSvc, err := postgres.NewAuditService(pgTx)
		if err != nil {
			return app, fmt.Errorf("audit service: %w", err)
		}
		app.Audit = auditSvc
		app.Stores = postgres.Stores(pgTx)
		txm, publisher, auditor = pgTx, postgres.NewOutboxPublisher(pgTx), auditSvc
	}

	var locker reconcile.Locker = lock.NewLocal()
	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		app.closers = append(app.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return app, fmt.Errorf("connect redis: %w", err)
		}
		app.Redis = rdb
		locker = lock.NewRedis(rdb, cfg.LockTTL, 0)
		logger.Info(ctx, "using redis locks", "address", cfg.RedisAddress)
	}

	app.Service = reconcile.NewService(reconcile.Config{
		TxManager: txm,
		Stores:    app.Stores,
		Locker:    locker,
		Publisher: publisher,
		Auditor:   auditor,
		Recorder:  app.Metrics,
		Refs:      ledger.NewInstanceRefGenerator(cfg.InstanceID),
	})
	return app, nil
}
