package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores successful strategy attempts.
type Cache interface {
	Get(ctx context.Context, key string) (Attempt, bool, error)
	Set(ctx context.Context, key string, att Attempt, ttl time.Duration) error
}

const cacheKeyPrefix = "ocr:attempt:"

func cacheKey(strategy, contentHash string) string {
	return cacheKeyPrefix + strategy + ":" + contentHash
}

// RedisCache keeps attempts as JSON values with a TTL.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Attempt, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Attempt{}, false, nil
	}
	if err != nil {
		return Attempt{}, false, err
	}
	var att Attempt
	if err := json.Unmarshal(raw, &att); err != nil {
		return Attempt{}, false, err
	}
	return att, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, att Attempt, ttl time.Duration) error {
	raw, err := json.Marshal(att)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}
