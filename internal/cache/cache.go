// Package cache keeps recently converted delivery variants.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tendant/simple-media/internal/format"
)

// Variants stores converted bytes keyed by artifact, target format and width.
type Variants interface {
	Get(ctx context.Context, id string, f format.Format, width int) ([]byte, bool, error)
	Set(ctx context.Context, id string, f format.Format, width int, data []byte) error
	Invalidate(ctx context.Context, id string) error
	Close() error
}

// Key returns the cache key of one variant. Width 0 means the stored width.
func Key(id string, f format.Format, width int) string {
	return fmt.Sprintf("variant:%s:%s:%d", id, f, width)
}

func pattern(id string) string {
	return fmt.Sprintf("variant:%s:*", id)
}

// Nop caches nothing.
type Nop struct{}

func (Nop) Get(context.Context, string, format.Format, int) ([]byte, bool, error) {
	return nil, false, nil
}
func (Nop) Set(context.Context, string, format.Format, int, []byte) error { return nil }
func (Nop) Invalidate(context.Context, string) error                      { return nil }
func (Nop) Close() error                                                  { return nil }

// Redis is a Variants backed by a redis server.
type Redis struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis connects to the server at url (redis://...) and pings it.
func NewRedis(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisClient(rdb, ttl, logger), nil
}

func NewRedisClient(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *Redis) Get(ctx context.Context, id string, f format.Format, width int) ([]byte, bool, error) {
	key := Key(id, f, width)
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("redis GET key not found", "key", key)
		return nil, false, nil
	}
	if err != nil {
		c.logger.Error("redis GET failed", "key", key, "error", err)
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, true, nil
}

func (c *Redis) Set(ctx context.Context, id string, f format.Format, width int, data []byte) error {
	key := Key(id, f, width)
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Error("redis SET failed", "key", key, "error", err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	c.logger.Debug("redis SET", "key", key, "expiry", c.ttl)
	return nil
}

// Invalidate drops every cached variant of id.
func (c *Redis) Invalidate(ctx context.Context, id string) error {
	iter := c.rdb.Scan(ctx, 0, pattern(id), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan variants of %s: %w", id, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Error("redis DEL failed", "keys", keys, "error", err)
		return fmt.Errorf("failed to delete variants of %s: %w", id, err)
	}
	return nil
}

func (c *Redis) Close() error { return c.rdb.Close() }
