package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"outbox_pending"`, quoteIdent(ChannelOutboxPending))
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}

func TestListenerDispatch_RecoversHandlerPanic(t *testing.T) {
	l := &Listener{}
	var got []string
	l.OnNotification(func(string, string) { panic("boom") })
	l.OnNotification(func(channel, payload string) { got = append(got, channel+":"+payload) })

	assert.NotPanics(t, func() {
		l.dispatch(context.Background(), ChannelOutboxPending, "BillingCreated")
	})
	assert.Equal(t, []string{"outbox_pending:BillingCreated"}, got)
}
