package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// RedisStore is a Store backed by Redis. It is best-effort: Redis faults are
// logged and reported as misses so callers recompute instead of failing.
type RedisStore struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisStore wraps a Redis client. The prefix namespaces keys so several
// router instances can share one Redis.
func NewRedisStore(client redis.Cmdable, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(k string) string { return s.keyPrefix + k }

// Get returns the value if present.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Redis get failed, treating as miss")
		return nil, false
	}
	return val, true
}

// Set stores a value with TTL. Failures are logged and dropped.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Redis set failed")
	}
}

// Delete removes a key. Failures are logged and dropped.
func (s *RedisStore) Delete(ctx context.Context, key string) {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Redis delete failed")
	}
}
