package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// keyPrefix namespaces every cache key.
const keyPrefix = "neurobot:"

// Cache stores JSON values with a TTL. A cache without a client is disabled:
// reads miss and writes are dropped.
type Cache struct {
	client rueidis.Client
	group  singleflight.Group
	logger *zap.Logger
}

// NewCache creates a cache over client, which may be nil.
func NewCache(client rueidis.Client, logger *zap.Logger) *Cache {
	return &Cache{
		client: client,
		logger: logger.Named("cache"),
	}
}

// Get decodes the value stored at key into dest. Returns false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c.client == nil {
		return false, nil
	}

	data, err := c.client.Do(ctx, c.client.B().Get().Key(keyPrefix+key).Build()).AsBytes()
	if rueidis.IsRedisNil(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache key %q: %w", key, err)
	}

	if err := sonic.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache key %q: %w", key, err)
	}
	return true, nil
}

// Set stores value at key for ttl.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.client == nil {
		return nil
	}

	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache key %q: %w", key, err)
	}

	cmd := c.client.B().Set().Key(keyPrefix + key).Value(string(data)).Ex(ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set cache key %q: %w", key, err)
	}
	return nil
}

// errNoValue marks a singleflight result that could not be asserted.
var errNoValue = errors.New("cache fetch returned no value")

// Remember returns the cached value at key or loads it with fetch and caches it.
// Concurrent misses for the same key share one fetch. Cache failures are logged
// and never fail the call.
func Remember[T any](
	ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(context.Context) (T, error),
) (T, error) {
	var cached T
	hit, err := c.Get(ctx, key, &cached)
	if err != nil {
		c.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		return cached, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		if err := c.Set(ctx, key, value, ttl); err != nil {
			c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	value, ok := result.(T)
	if !ok {
		var zero T
		return zero, errNoValue
	}
	return value, nil
}
