package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tradeledger/pkg/logger"
)

// ChannelOutboxPending is notified by the sys_outbox insert trigger.
const ChannelOutboxPending = "outbox_pending"

// NotificationHandler receives one NOTIFY payload.
type NotificationHandler func(channel, payload string)

// Listener holds a dedicated connection in LISTEN mode and hands every
// notification to the registered handlers. The connection is re-acquired
// after errors.
type Listener struct {
	pool     *pgxpool.Pool
	channels []string

	handlersMu sync.RWMutex
	handlers   []NotificationHandler

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewListener creates a listener for the given channels.
func NewListener(pool *Pool, channels ...string) *Listener {
	return &Listener{pool: pool.Pool, channels: channels}
}

// OnNotification registers a handler. Handlers run on the listen goroutine.
func (l *Listener) OnNotification(h NotificationHandler) {
	l.handlersMu.Lock()
	l.handlers = append(l.handlers, h)
	l.handlersMu.Unlock()
}

// Start launches the listen loop. Calling Start twice is a no-op.
func (l *Listener) Start(ctx context.Context) {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go l.loop(ctx)
}

// Stop ends the loop and waits for it.
func (l *Listener) Stop() {
	l.lifecycleMu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
}

func (l *Listener) loop(ctx context.Context) {
	defer l.wg.Done()

	for ctx.Err() == nil {
		if err := l.listen(ctx); err != nil && ctx.Err() == nil {
			logger.Error(ctx, "listen failed", "channels", l.channels, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	for _, ch := range l.channels {
		if _, err := conn.Exec(ctx, "LISTEN "+quoteIdent(ch)); err != nil {
			return fmt.Errorf("listen %s: %w", ch, err)
		}
	}
	logger.Info(ctx, "listening for notifications", "channels", l.channels)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.dispatch(ctx, n.Channel, n.Payload)
	}
}

func (l *Listener) dispatch(ctx context.Context, channel, payload string) {
	l.handlersMu.RLock()
	defer l.handlersMu.RUnlock()
	for _, h := range l.handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(ctx, "notification handler panic recovered", "channel", channel, "panic", r)
				}
			}()
			h(channel, payload)
		}()
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
