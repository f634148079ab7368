// Package main is the entry point for the tradeledger outbox worker. It
// delivers sys_outbox rows to Pub/Sub (or the log when no topic is set)
// and moves exhausted rows to the dead letter table.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradeledger/internal/config"
	"tradeledger/internal/infrastructure/metrics"
	"tradeledger/internal/infrastructure/notify"
	"tradeledger/internal/infrastructure/storage/postgres"
	"tradeledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Service:     "tradeledger-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	if cfg.StorageDriver != config.StoragePostgres {
		log.Fatalw("the worker requires postgres storage", "storage", cfg.StorageDriver)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting tradeledger outbox worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL, 5))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	var sender notify.Sender = notify.LogSender{}
	if cfg.PubSubProjectID != "" {
		ps, err := notify.NewPubSubSender(ctx, notify.PubSubConfig{
			ProjectID:       cfg.PubSubProjectID,
			Topic:           cfg.PubSubTopic,
			CredentialsJSON: cfg.PubSubCredentialsJSON,
		})
		if err != nil {
			log.Fatalw("failed to connect to pubsub", "error", err)
		}
		defer func() { _ = ps.Close() }()
		sender = ps
	}

	w := &worker{
		relay:    postgres.NewOutboxRelay(pool, cfg.OutboxBatchSize, notify.NewPublisher(sender, notify.DefaultBreakerConfig())),
		metrics:  metrics.New(),
		interval: cfg.OutboxPollInterval,
		wake:     make(chan struct{}, 1),
		log:      log.WithComponent("outbox"),
	}

	listener := postgres.NewListener(pool, postgres.ChannelOutboxPending)
	listener.OnNotification(func(string, string) { w.notify() })
	listener.Start(ctx)
	defer listener.Stop()

	w.run(ctx)
	log.Info("worker stopped")
}

type worker struct {
	relay    *postgres.OutboxRelay
	metrics  *metrics.Metrics
	interval time.Duration
	wake     chan struct{}
	log      *logger.Logger
}

// notify wakes the loop without blocking; pending wake-ups coalesce.
func (w *worker) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	dlqTicker := time.NewTicker(time.Hour)
	defer dlqTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		case <-w.wake:
			w.drain(ctx)
		case <-dlqTicker.C:
			moved, err := w.relay.MoveToDLQ(ctx)
			if err != nil {
				w.log.Errorw("failed to move messages to DLQ", "error", err)
				continue
			}
			if moved > 0 {
				w.log.Warnw("moved failed outbox messages to DLQ", "count", moved)
			}
		}
	}
}

// drain processes batches until one comes back short.
func (w *worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		delivered, failed, err := w.relay.ProcessBatch(ctx)
		w.metrics.ObserveOutbox(delivered, failed)
		if err != nil {
			w.log.Errorw("outbox batch failed", "error", err)
			return
		}
		if delivered > 0 || failed > 0 {
			w.log.Debugw("processed outbox batch", "delivered", delivered, "failed", failed)
		}
		if delivered+failed < w.relay.BatchSize() || failed > 0 {
			return
		}
	}
}
