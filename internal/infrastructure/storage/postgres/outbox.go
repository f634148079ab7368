package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tradeledger/internal/core/id"
	"tradeledger/internal/domain/events"
	"tradeledger/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// maxOutboxRetries is the number of failed deliveries after which a message
// is marked failed and becomes eligible for the dead letter table.
const maxOutboxRetries = 5

// OutboxMessage is a row of sys_outbox.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	AggregateType string       `db:"aggregate_type"` // Billing, SupplierAccount, ...
	AggregateKey  string       `db:"aggregate_key"`  // natural key of the aggregate
	EventType     string       `db:"event_type"`     // BillingPaymentAdded, ...
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

// OutboxPublisher implements events.Publisher on sys_outbox.
type OutboxPublisher struct {
	txm *TxManager
}

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txm: txManager}
}

const insertOutbox = `
	INSERT INTO sys_outbox (id, aggregate_type, aggregate_key, event_type, payload, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

// PublishBatch writes events within the current transaction.
func (p *OutboxPublisher) PublishBatch(ctx context.Context, batch []events.Event) error {
	now := time.Now().UTC()
	stmts := make([]Statement, 0, len(batch))
	for _, ev := range batch {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		stmts = append(stmts, Statement{
			SQL:  insertOutbox,
			Args: []any{id.New(), ev.AggregateType, ev.AggregateKey, ev.EventType, payload, OutboxStatusPending, now},
		})
	}

	if err := p.txm.SendBatch(ctx, stmts); err != nil {
		return fmt.Errorf("insert outbox messages: %w", err)
	}
	return nil
}

// OutboxHandler delivers one message (notification channel).
type OutboxHandler interface {
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxRelay reads pending messages and hands them to the handler.
// Used by the background worker.
type OutboxRelay struct {
	pool      *pgxpool.Pool
	batchSize int
	handler   OutboxHandler
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(pool *Pool, batchSize int, handler OutboxHandler) *OutboxRelay {
	return &OutboxRelay{
		pool:      pool.Pool,
		batchSize: batchSize,
		handler:   handler,
	}
}

// BatchSize is the maximum number of messages one ProcessBatch handles.
func (r *OutboxRelay) BatchSize() int {
	return r.batchSize
}

// ProcessBatch delivers up to batchSize due messages and reports how many
// were delivered and how many failed.
// Rows are claimed with SKIP LOCKED so several workers can run side by side.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (delivered, failed int, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin relay transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_key, event_type, payload, status,
		       retry_count, last_error, next_retry_at, created_at, published_at
		FROM sys_outbox
		WHERE status = $1
		  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, OutboxStatusPending, r.batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch outbox messages: %w", err)
	}

	var messages []*OutboxMessage
	for rows.Next() {
		var msg OutboxMessage
		if err := rows.Scan(
			&msg.ID, &msg.AggregateType, &msg.AggregateKey, &msg.EventType,
			&msg.Payload, &msg.Status, &msg.RetryCount, &msg.LastError,
			&msg.NextRetryAt, &msg.CreatedAt, &msg.PublishedAt,
		); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("scan outbox message: %w", err)
		}
		messages = append(messages, &msg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("iterate outbox messages: %w", err)
	}

	for _, msg := range messages {
		if err := r.handler.Handle(ctx, msg); err != nil {
			logger.Warn(ctx, "outbox delivery failed",
				"message_id", msg.ID, "event_type", msg.EventType, "retry", msg.RetryCount, "error", err)

			// linear backoff, one minute per attempt
			nextRetry := time.Now().Add(time.Duration(msg.RetryCount+1) * time.Minute)
			if _, err := tx.Exec(ctx, `
				UPDATE sys_outbox
				SET retry_count = retry_count + 1,
				    last_error = $1,
				    next_retry_at = $2,
				    status = CASE WHEN retry_count + 1 >= $3 THEN $4 ELSE status END
				WHERE id = $5
			`, err.Error(), nextRetry, maxOutboxRetries, OutboxStatusFailed, msg.ID); err != nil {
				return delivered, failed, fmt.Errorf("update failed message: %w", err)
			}
			failed++
			continue
		}

		if _, err := tx.Exec(ctx,
			`UPDATE sys_outbox SET status = $1, published_at = NOW() WHERE id = $2`,
			OutboxStatusPublished, msg.ID); err != nil {
			return delivered, failed, fmt.Errorf("mark published: %w", err)
		}
		delivered++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit relay transaction: %w", err)
	}
	return delivered, failed, nil
}

// MoveToDLQ moves failed messages to the dead letter table.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		WITH moved AS (
			DELETE FROM sys_outbox
			WHERE status = $1
			RETURNING id, aggregate_type, aggregate_key, event_type, payload, retry_count, last_error, created_at
		)
		INSERT INTO sys_outbox_dlq (id, aggregate_type, aggregate_key, event_type, payload, retry_count, failure_reason, created_at, failed_at)
		SELECT id, aggregate_type, aggregate_key, event_type, payload, retry_count, last_error, created_at, NOW() FROM moved
	`, OutboxStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}
	return result.RowsAffected(), nil
}

// Event decodes the message back into a domain event (payload stays raw JSON).
func (m *OutboxMessage) Event() events.Event {
	return events.Event{
		AggregateType: m.AggregateType,
		AggregateKey:  m.AggregateKey,
		EventType:     m.EventType,
		Payload:       json.RawMessage(m.Payload),
	}
}

var _ events.Publisher = (*OutboxPublisher)(nil)
