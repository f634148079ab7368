// Package notify delivers outbox messages to subscribers. Delivery is
// at-least-once and never blocks a reconciliation commit.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sony/gobreaker"
	"google.golang.org/api/option"

	"tradeledger/internal/infrastructure/storage/postgres"
	"tradeledger/pkg/logger"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("notification channel unavailable")

// Envelope is the message body sent to subscribers.
type Envelope struct {
	MessageID     string          `json:"messageId"`
	AggregateType string          `json:"aggregateType"`
	AggregateKey  string          `json:"aggregateKey"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// Sender transmits one encoded message and returns the broker message id.
type Sender interface {
	Send(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

// BreakerConfig tunes the circuit breaker in front of the sender.
type BreakerConfig struct {
	MaxRequests      uint32        // probes allowed while half-open
	Interval         time.Duration // closed-state window after which counts reset
	Timeout          time.Duration // open -> half-open delay
	FailureThreshold uint32        // consecutive failures that trip the breaker
}

// DefaultBreakerConfig returns the production settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Publisher implements postgres.OutboxHandler.
type Publisher struct {
	sender Sender
	cb     *gobreaker.CircuitBreaker
}

// NewPublisher wraps sender with a circuit breaker.
func NewPublisher(sender Sender, cfg BreakerConfig) *Publisher {
	settings := gobreaker.Settings{
		Name:        "notify",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state changed",
				"name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Publisher{sender: sender, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Handle implements postgres.OutboxHandler.
func (p *Publisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	data, err := json.Marshal(envelopeOf(msg))
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	attrs := map[string]string{
		"eventType":     msg.EventType,
		"aggregateType": msg.AggregateType,
	}

	res, err := p.cb.Execute(func() (interface{}, error) {
		return p.sender.Send(ctx, data, attrs)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return fmt.Errorf("send notification %s: %w", msg.ID, err)
	}

	logger.Debug(ctx, "notification sent", "message_id", msg.ID, "event_type", msg.EventType, "broker_id", res)
	return nil
}

// State reports the breaker state.
func (p *Publisher) State() gobreaker.State {
	return p.cb.State()
}

func envelopeOf(msg *postgres.OutboxMessage) Envelope {
	env := Envelope{
		MessageID:     msg.ID.String(),
		AggregateType: msg.AggregateType,
		AggregateKey:  msg.AggregateKey,
		EventType:     msg.EventType,
		OccurredAt:    msg.CreatedAt,
	}
	if len(msg.Payload) > 0 {
		env.Payload = json.RawMessage(msg.Payload)
	}
	return env
}

// --- Google Cloud Pub/Sub ---

// PubSubConfig locates the topic.
type PubSubConfig struct {
	ProjectID       string
	Topic           string
	CredentialsJSON string // empty: application default credentials
}

// PubSubSender publishes to one topic.
type PubSubSender struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubSender connects and creates the topic when it does not exist.
func NewPubSubSender(ctx context.Context, cfg PubSubConfig) (*PubSubSender, error) {
	if cfg.ProjectID == "" || cfg.Topic == "" {
		return nil, errors.New("pubsub project id and topic are required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.Topic)
	ok, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check topic %q: %w", cfg.Topic, err)
	}
	if !ok {
		if topic, err = client.CreateTopic(ctx, cfg.Topic); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("create topic %q: %w", cfg.Topic, err)
		}
	}

	logger.Info(ctx, "pubsub topic ready", "project_id", cfg.ProjectID, "topic", cfg.Topic)
	return &PubSubSender{client: client, topic: topic}, nil
}

// Send implements Sender and waits for the server-assigned id.
func (s *PubSubSender) Send(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return s.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
}

// Close flushes pending publishes and closes the client.
func (s *PubSubSender) Close() error {
	s.topic.Stop()
	return s.client.Close()
}

// LogSender writes notifications to the log; used when no broker is configured.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	logger.Info(ctx, "notification", "event_type", attrs["eventType"], "body", string(data))
	return "", nil
}

var (
	_ postgres.OutboxHandler = (*Publisher)(nil)
	_ Sender                 = (*PubSubSender)(nil)
	_ Sender                 = LogSender{}
)
