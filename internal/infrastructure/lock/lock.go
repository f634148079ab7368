// Package lock serializes reconciliation of the same aggregates. Keys arrive
// sorted and deduplicated, so acquiring them in order cannot deadlock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/domain/reconcile"
	"tradeledger/pkg/logger"
)

// keyPrefix namespaces lock keys in a shared Redis.
const keyPrefix = "tradeledger:lock:"

// Redis locks keys across processes with bsm/redislock.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedis creates a Redis-backed locker. ttl bounds how long a crashed
// holder keeps a key; wait bounds how long Lock retries a busy key.
func NewRedis(rdb *redis.Client, ttl, wait time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Redis{client: redislock.New(rdb), ttl: ttl, wait: wait}
}

// Lock implements reconcile.Locker.
func (r *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	held := make([]*redislock.Lock, 0, len(keys))
	release := func() {
		// background context: locks must be released after a cancelled request
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logger.Warn(ctx, "release lock failed", "key", held[i].Key(), "error", err)
			}
		}
	}

	backoff := redislock.LimitRetry(redislock.ExponentialBackoff(10*time.Millisecond, 250*time.Millisecond), retries(r.wait))
	for _, key := range keys {
		l, err := r.client.Obtain(ctx, keyPrefix+key, r.ttl, &redislock.Options{RetryStrategy: backoff})
		if err != nil {
			release()
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, apperror.NewConcurrentModification("lock", key)
			}
			return nil, fmt.Errorf("obtain lock %s: %w", key, err)
		}
		held = append(held, l)
	}
	return release, nil
}

// retries approximates how many attempts fit in wait with the backoff above.
func retries(wait time.Duration) int {
	n := int(wait / (250 * time.Millisecond))
	return max(n, 1)
}

// Local locks keys within one process. Lock waits until every key is free
// or ctx is done.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Lock implements reconcile.Locker.
func (l *Local) Lock(ctx context.Context, keys ...string) (func(), error) {
	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}

	for _, key := range keys {
		if err := l.acquire(ctx, key); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}
	return release, nil
}

func (l *Local) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key, s)
		return ctx.Err()
	}
}

func (l *Local) release(key string) {
	l.mu.Lock()
	s := l.slots[key]
	l.mu.Unlock()

	<-s.ch
	l.unref(key, s)
}

func (l *Local) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

var (
	_ reconcile.Locker = (*Redis)(nil)
	_ reconcile.Locker = (*Local)(nil)
)
