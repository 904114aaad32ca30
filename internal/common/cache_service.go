package common

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// CacheService is the in-memory flight detail cache, used when no Redis
// address is configured (single-node and local runs)
type CacheService struct {
	cache *cache.Cache
}

var _ CacheInterface = (*CacheService)(nil)

// NewCacheService creates an in-memory cache. defaultTTL applies to entries
// stored with a zero duration; sweepInterval controls expired-entry cleanup.
func NewCacheService(defaultTTL, sweepInterval time.Duration) *CacheService {
	return &CacheService{cache: cache.New(defaultTTL, sweepInterval)}
}

func (cs *CacheService) Set(key string, value interface{}, ttl time.Duration) {
	cs.cache.Set(key, value, ttl)
}

func (cs *CacheService) Get(key string) (interface{}, bool) {
	return cs.cache.Get(key)
}

func (cs *CacheService) Delete(key string) {
	cs.cache.Delete(key)
}

// Close is a no-op for the in-memory cache
func (cs *CacheService) Close() error {
	return nil
}
