package common

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCacheService implements CacheInterface over Redis, for deployments
// where several indexer replicas share one flight detail cache. Values are
// JSON-serialized on the way in, so readers get back generic JSON shapes
// rather than the original Go types.
type RedisCacheService struct {
	client *redis.Client
	ctx    context.Context
}

var _ CacheInterface = (*RedisCacheService)(nil)

// NewRedisCacheService wraps an already-constructed client. Fails fast when
// the server is unreachable so the caller can fall back to the in-memory
// cache.
func NewRedisCacheService(client *redis.Client) (*RedisCacheService, error) {
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return &RedisCacheService{client: client, ctx: ctx}, nil
}

// Set stores value under key for ttl. Cache writes are best effort; a
// failed write only costs a re-fetch.
func (r *RedisCacheService) Set(key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("[RedisCache] Failed to marshal value for %s: %v", key, err)
		return
	}
	if err := r.client.Set(r.ctx, key, data, ttl).Err(); err != nil {
		log.Printf("[RedisCache] Failed to set %s: %v", key, err)
	}
}

// Get returns the cached value for key, or false on a miss or any error
func (r *RedisCacheService) Get(key string) (interface{}, bool) {
	data, err := r.client.Get(r.ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("[RedisCache] Failed to get %s: %v", key, err)
		return nil, false
	}

	var result interface{}
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		log.Printf("[RedisCache] Failed to unmarshal value for %s: %v", key, err)
		return nil, false
	}
	return result, true
}

// Delete evicts key
func (r *RedisCacheService) Delete(key string) {
	if err := r.client.Del(r.ctx, key).Err(); err != nil {
		log.Printf("[RedisCache] Failed to delete %s: %v", key, err)
	}
}

// Close closes the underlying client
func (r *RedisCacheService) Close() error {
	return r.client.Close()
}
