package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NameCache is the subset of the redis client used for product names.
type NameCache interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CacheStats receives hit and miss counts; it may be nil.
type CacheStats interface {
	CacheHit(n int)
	CacheMiss(n int)
}

// CachedProductNames serves names from redis and falls through to next for
// misses. Redis failures degrade to the uncached path.
type CachedProductNames struct {
	cache  NameCache
	next   ProductNameRepository
	ttl    time.Duration
	stats  CacheStats
	logger *zap.Logger
}

func NewCachedProductNames(cache NameCache, next ProductNameRepository, ttl time.Duration, stats CacheStats, logger *zap.Logger) *CachedProductNames {
	return &CachedProductNames{cache: cache, next: next, ttl: ttl, stats: stats, logger: logger}
}

func productNameKey(id string) string {
	return fmt.Sprintf("product:name:%s", id)
}

func (c *CachedProductNames) ProductNames(ctx context.Context, ids []string) (map[string]string, error) {
	ids = dedupe(ids)
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productNameKey(id)
	}

	missing := ids
	vals, err := c.cache.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("product name cache read failed", zap.Error(err))
	} else {
		missing = missing[:0:0]
		for i, v := range vals {
			if s, ok := v.(string); ok && s != "" {
				names[ids[i]] = s
				continue
			}
			missing = append(missing, ids[i])
		}
	}
	c.record(len(ids)-len(missing), len(missing))

	if len(missing) == 0 {
		return names, nil
	}
	fetched, err := c.next.ProductNames(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, name := range fetched {
		names[id] = name
		if err := c.cache.Set(ctx, productNameKey(id), name, c.ttl).Err(); err != nil {
			c.logger.Warn("product name cache write failed", zap.String("product_id", id), zap.Error(err))
		}
	}
	return names, nil
}

// Evict drops a cached name so the next lookup reads the products table.
func (c *CachedProductNames) Evict(ctx context.Context, productID string) error {
	return c.cache.Del(ctx, productNameKey(productID)).Err()
}

func (c *CachedProductNames) record(hits, misses int) {
	if c.stats == nil {
		return
	}
	if hits > 0 {
		c.stats.CacheHit(hits)
	}
	if misses > 0 {
		c.stats.CacheMiss(misses)
	}
}
