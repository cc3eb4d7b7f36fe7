package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisScanBatch is the SCAN page size and DEL batch size for scoped flushes.
const redisScanBatch = 100

// RedisCache is the shared middle tier. Expiry is delegated to Redis's
// native TTL, so the sweeper never scans this tier.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an injected client. The client's lifecycle belongs to
// the caller.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set stores an entry under its namespaced key with the TTL remaining at
// write time. Entries already at or past expiry are skipped.
func (r *RedisCache) Set(ctx context.Context, entry *Entry, now time.Time) error {
	ttl := entry.RemainingTTL(now)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if err := r.client.Set(ctx, RedisKey(entry.DataType, entry.Key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get fetches an entry by cache key. Absent keys return ErrNotFound; any
// other failure is a backend fault for the caller to degrade on.
func (r *RedisCache) Get(ctx context.Context, dataType DataType, key string) (*Entry, error) {
	data, err := r.client.Get(ctx, RedisKey(dataType, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode redis entry: %w", err)
	}
	return &entry, nil
}

// Delete removes an entry. Deleting an absent key is a no-op.
func (r *RedisCache) Delete(ctx context.Context, dataType DataType, key string) error {
	if err := r.client.Del(ctx, RedisKey(dataType, key)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// DeleteDataType removes every entry of one data type.
func (r *RedisCache) DeleteDataType(ctx context.Context, dataType DataType) error {
	return r.deleteMatching(ctx, redisNamespace+dataType.String()+":*")
}

// DeleteAll removes every entry in the cache's namespace. The instance is
// shared, so this scans rather than flushing the database.
func (r *RedisCache) DeleteAll(ctx context.Context) error {
	return r.deleteMatching(ctx, redisNamespace+"*")
}

func (r *RedisCache) deleteMatching(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, pattern, redisScanBatch).Iterator()
	batch := make([]string, 0, redisScanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= redisScanBatch {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis scan delete: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis scan delete: %w", err)
		}
	}
	return nil
}

// Ping verifies connectivity.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
