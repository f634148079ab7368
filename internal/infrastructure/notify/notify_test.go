package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/core/id"
	"tradeledger/internal/infrastructure/storage/postgres"
)

type fakeSender struct {
	err   error
	calls int
	data  []byte
	attrs map[string]string
}

func (f *fakeSender) Send(_ context.Context, data []byte, attrs map[string]string) (string, error) {
	f.calls++
	f.data, f.attrs = data, attrs
	if f.err != nil {
		return "", f.err
	}
	return "broker-1", nil
}

func message() *postgres.OutboxMessage {
	return &postgres.OutboxMessage{
		ID:            id.New(),
		AggregateType: "Billing",
		AggregateKey:  "b-1",
		EventType:     "BillingPaymentAdded",
		Payload:       []byte(`{"amount":"50"}`),
		CreatedAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_SendsEnvelope(t *testing.T) {
	sender := &fakeSender{}
	p := NewPublisher(sender, DefaultBreakerConfig())
	msg := message()

	require.NoError(t, p.Handle(context.Background(), msg))

	var env Envelope
	require.NoError(t, json.Unmarshal(sender.data, &env))
	assert.Equal(t, msg.ID.String(), env.MessageID)
	assert.Equal(t, "BillingPaymentAdded", env.EventType)
	assert.Equal(t, "b-1", env.AggregateKey)
	assert.JSONEq(t, `{"amount":"50"}`, string(env.Payload))
	assert.Equal(t, "Billing", sender.attrs["aggregateType"])
}

func TestPublisher_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	sender := &fakeSender{err: errors.New("broker down")}
	cfg := DefaultBreakerConfig()
	cfg.FailureThreshold = 3
	p := NewPublisher(sender, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := p.Handle(ctx, message())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	err := p.Handle(ctx, message())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, sender.calls)
}

func TestLogSender(t *testing.T) {
	_, err := LogSender{}.Send(context.Background(), []byte(`{}`), map[string]string{"eventType": "X"})
	assert.NoError(t, err)
}
