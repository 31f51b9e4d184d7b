package uom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	snapshotVersionKey = "uom:graph:version"
	snapshotKeyPrefix  = "uom:graph"
)

// SnapshotCache stores the registry snapshot in Redis under a versioned key.
// Concurrent misses share one loader call.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewSnapshotCache builds the cache. A nil client disables Redis; loads are
// still deduplicated.
func NewSnapshotCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SnapshotCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotCache{client: client, ttl: ttl, logger: logger}
}

// Version returns the current snapshot version, initialising it when missing.
func (c *SnapshotCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, snapshotVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, snapshotVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, snapshotVersionKey).Int64()
	}
	return ver, err
}

// Load returns the cached snapshot or populates it from loader.
func (c *SnapshotCache) Load(ctx context.Context, loader func(context.Context) (Snapshot, error)) (Snapshot, error) {
	if c == nil {
		return loader(ctx)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		c.logger.Warn("uom cache version", slog.Any("error", err))
		ver = 0
	}
	key := fmt.Sprintf("%s:%d", snapshotKeyPrefix, ver)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if snap, ok := c.get(ctx, key); ok {
			return snap, nil
		}
		snap, err := loader(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		c.set(ctx, key, snap)
		return snap, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// Invalidate bumps the version so the next Load reads from the loader.
func (c *SnapshotCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, snapshotVersionKey).Err()
}

func (c *SnapshotCache) get(ctx context.Context, key string) (Snapshot, bool) {
	if c.client == nil {
		return Snapshot{}, false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("uom cache get", slog.String("key", key), slog.Any("error", err))
		}
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.logger.Warn("uom cache decode", slog.String("key", key), slog.Any("error", err))
		return Snapshot{}, false
	}
	return snap, true
}

func (c *SnapshotCache) set(ctx context.Context, key string, snap Snapshot) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("uom cache set", slog.String("key", key), slog.Any("error", err))
	}
}
