// Package cache keeps JSON-encoded lookups in Redis for a fixed TTL and
// collapses concurrent misses for the same key into one load.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Cache is safe for concurrent use. A nil *Cache, or one without a Redis
// client, never hits and never stores.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	flight singleflight.Group
	logger zerolog.Logger
}

// New returns a cache whose keys live under prefix and expire after ttl. A
// nil client gives a cache that always misses.
func New(client redis.UniversalClient, prefix string, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, prefix: prefix, logger: zerolog.Nop()}
}

// WithLogger routes cache read and write failures to logger.
func (c *Cache) WithLogger(logger zerolog.Logger) *Cache {
	c.logger = logger
	return c
}

// Key normalises raw (trimmed, lower-cased) and hashes it under the prefix,
// so "  Jalan Sudirman " and "jalan sudirman" share an entry.
func (c *Cache) Key(raw string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(raw))))
	digest := hex.EncodeToString(sum[:])
	if c == nil || c.prefix == "" {
		return digest
	}
	return c.prefix + ":" + digest
}

func (c *Cache) enabled() bool { return c != nil && c.client != nil }

// GetJSON decodes the entry at key into dst and reports whether it existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.enabled() || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, json.Unmarshal(data, dst)
}

// SetJSON stores v at key. A non-positive TTL disables writes.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if !c.enabled() || key == "" || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Fetch returns the cached value for raw or calls load. Concurrent misses on
// the same key share one load call. Cache errors are logged and treated as
// misses; only load errors are returned, and they are never cached.
func Fetch[T any](ctx context.Context, c *Cache, raw string, load func(context.Context) (T, error)) (T, error) {
	if !c.enabled() {
		return load(ctx)
	}
	key := c.Key(raw)
	var cached T
	hit, err := c.GetJSON(ctx, key, &cached)
	if err != nil {
		c.logger.Warn().Err(err).Str("cache", c.prefix).Msg("cache_read_failed")
	} else if hit {
		return cached, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		val, err := load(ctx)
		if err != nil {
			return val, err
		}
		if err := c.SetJSON(context.WithoutCancel(ctx), key, val); err != nil {
			c.logger.Warn().Err(err).Str("cache", c.prefix).Msg("cache_write_failed")
		}
		return val, nil
	})
	out, _ := v.(T)
	return out, err
}
