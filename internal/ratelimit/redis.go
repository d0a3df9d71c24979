package ratelimit

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "ratelimit:"

// incrScript atomically increments a counter and stamps its window TTL on
// first use, returning the count and the remaining TTL in milliseconds.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RedisStore is a shared counter store for deployments that need exact
// cross-process rate limiting. Window expiry is enforced by redis TTLs,
// so the store never grows unbounded.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store over an existing redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	res, err := incrScript.Run(ctx, s.client, []string{redisKeyPrefix + key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, err
	}
	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, redis.Nil
	}
	count, _ := values[0].(int64)
	ttlMillis, _ := values[1].(int64)
	return int(count), time.Duration(ttlMillis) * time.Millisecond, nil
}

// Peek implements Store.
func (s *RedisStore) Peek(ctx context.Context, key string) (int, time.Duration, error) {
	count, err := s.client.Get(ctx, redisKeyPrefix+key).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	ttl, err := s.client.PTTL(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return 0, 0, err
	}
	if ttl < 0 {
		return 0, 0, nil
	}
	return count, ttl, nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKeyPrefix+key).Err()
}

// ClearAll implements Store.
func (s *RedisStore) ClearAll(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", 500).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
