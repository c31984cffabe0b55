package metastore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cached is a read-through permission cache in front of another Metastore.
// Both positive and negative decisions are cached so a flood of requests
// with a bad key does not hammer the metadata store. The cache is read-only
// shared state across all requests; a nil redis client disables caching.
type Cached struct {
	next        Metastore
	redisClient *redis.Client
	ttl         time.Duration
}

func NewCached(next Metastore, redisClient *redis.Client, ttl time.Duration) *Cached {
	return &Cached{
		next:        next,
		redisClient: redisClient,
		ttl:         ttl,
	}
}

func (c *Cached) CheckPermission(ctx context.Context, project string, keyType AccessKeyType, apiKey string) (bool, error) {
	if c.redisClient == nil {
		return c.next.CheckPermission(ctx, project, keyType, apiKey)
	}

	cacheKey := fmt.Sprintf("permission:%s:%s:%s", project, keyType, apiKey)

	val, err := c.redisClient.Get(ctx, cacheKey).Result()
	if err == nil {
		return val == "1", nil
	}

	ok, err := c.next.CheckPermission(ctx, project, keyType, apiKey)
	if err != nil {
		return false, err
	}

	cached := "0"
	if ok {
		cached = "1"
	}
	// Best effort: a failed cache write only costs the next lookup.
	c.redisClient.Set(ctx, cacheKey, cached, c.ttl)

	return ok, nil
}
