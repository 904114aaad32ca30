package common

import "time"

// CacheInterface is the contract the flight detail cache implementations
// satisfy. Values are stored as JSON strings so the in-memory and Redis
// backends are interchangeable.
type CacheInterface interface {
	// Set stores a value under key for at most ttl
	Set(key string, value interface{}, ttl time.Duration)

	// Get returns the cached value and true, or nil and false on a miss
	Get(key string) (interface{}, bool)

	// Delete evicts key
	Delete(key string)

	// Close releases any underlying connections
	Close() error
}
