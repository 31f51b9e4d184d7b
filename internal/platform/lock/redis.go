// Package lock provides short-lived distributed locks on top of Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when another holder owns the key.
var ErrNotObtained = errors.New("lock: not obtained")

// Locker obtains exclusive keys for a bounded time.
type Locker struct {
	client *redislock.Client
	logger *slog.Logger
}

// New wraps a Redis client. A nil client yields a nil Locker, which callers
// treat as "locking disabled".
func New(rdb *redis.Client, logger *slog.Logger) *Locker {
	if rdb == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{client: redislock.New(rdb), logger: logger}
}

// Obtain acquires key for ttl and returns the release function.
func (l *Locker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	held, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("lock: obtain %s: %w", key, err)
	}
	return func() {
		// release on a detached context so a cancelled request still frees the key
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := held.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("release lock", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}
