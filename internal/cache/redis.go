package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache wraps the Redis client with the operations the message core
// needs: plain TTL'd values, prefix enumeration, atomic counters, sorted sets
// and pipelined batches.
type RedisCache struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisCache creates a new Redis cache client
func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ctx: context.Background(),
	}
}

// NewRedisCacheWithClient wraps an existing client (used by tests).
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, ctx: context.Background()}
}

// Get retrieves a value from Redis. A missing key is (nil, nil).
func (c *RedisCache) Get(key string) ([]byte, error) {
	val, err := c.client.Get(c.ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

// Set stores a value in Redis with TTL
func (c *RedisCache) Set(key string, value []byte, ttl time.Duration) error {
	return c.client.Set(c.ctx, key, value, ttl).Err()
}

// Delete removes keys from Redis
func (c *RedisCache) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(c.ctx, keys...).Err()
}

// Exists checks if a key exists
func (c *RedisCache) Exists(key string) (bool, error) {
	count, err := c.client.Exists(c.ctx, key).Result()
	return count > 0, err
}

// Expire refreshes a key's TTL
func (c *RedisCache) Expire(key string, ttl time.Duration) error {
	return c.client.Expire(c.ctx, key, ttl).Err()
}

// ScanKeys enumerates all keys matching a pattern via SCAN.
func (c *RedisCache) ScanKeys(pattern string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(c.ctx, 0, pattern, 0).Iterator()
	for iter.Next(c.ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// Incr atomically increments a counter key
func (c *RedisCache) Incr(key string) (int64, error) {
	return c.client.Incr(c.ctx, key).Result()
}

// ZAdd adds a scored member to a sorted set
func (c *RedisCache) ZAdd(key string, score float64, member interface{}) error {
	return c.client.ZAdd(c.ctx, key, redis.Z{Score: score, Member: member}).Err()
}

// ZRem removes members from a sorted set
func (c *RedisCache) ZRem(key string, members ...interface{}) error {
	return c.client.ZRem(c.ctx, key, members...).Err()
}

// ZRevRange returns members ordered by descending score, [start, stop]
// inclusive by rank.
func (c *RedisCache) ZRevRange(key string, start, stop int64) ([]string, error) {
	return c.client.ZRevRange(c.ctx, key, start, stop).Result()
}

// ZCard returns the number of members in a sorted set
func (c *RedisCache) ZCard(key string) (int64, error) {
	return c.client.ZCard(c.ctx, key).Result()
}

// ZRemRangeByRank removes members by rank range (lowest score = rank 0).
func (c *RedisCache) ZRemRangeByRank(key string, start, stop int64) error {
	return c.client.ZRemRangeByRank(c.ctx, key, start, stop).Err()
}

// Pipeline returns a pipeliner for batched execution. Sub-results must be
// inspected individually: a pipeline gives ordering, not cross-key atomicity.
func (c *RedisCache) Pipeline() redis.Pipeliner {
	return c.client.Pipeline()
}

// TxPipeline returns a MULTI/EXEC pipeliner for batches that must be applied
// atomically (counter + snapshot pairs).
func (c *RedisCache) TxPipeline() redis.Pipeliner {
	return c.client.TxPipeline()
}

// Context returns the context pipelined commands should execute under.
func (c *RedisCache) Context() context.Context {
	return c.ctx
}

// Ping checks if Redis is alive
func (c *RedisCache) Ping() error {
	return c.client.Ping(c.ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
