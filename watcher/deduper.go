package watcher

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const deduperKeyPrefix = "alerts:"

// DefaultSuppression is how long a fired alert stays suppressed.
const DefaultSuppression = 30 * time.Minute

// RedisDeduper records fired alert keys in Redis so the same task/level pair
// is not re-alerted within the suppression window, across all instances.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper with the given suppression TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultSuppression
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

// Add records the key if it is not already suppressed. It returns true when
// the key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, deduperKeyPrefix+key, 1, r.ttl).Result()
}
