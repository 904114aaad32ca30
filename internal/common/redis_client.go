package common

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a Redis client for the given address. Connectivity
// is probed once at startup; a failed probe still returns the client since
// the pool reconnects on demand.
func NewRedisClient(addr, password string) *redis.Client {
	log.Printf("[Redis] Initializing client: addr=%s", addr)

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[Redis] ERROR: ping failed: %v", err)
		return client
	}

	log.Printf("[Redis] Connected")
	return client
}
