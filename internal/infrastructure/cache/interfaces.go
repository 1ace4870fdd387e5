package cache

import (
	"context"
	"time"
)

// Cache is the generic key/value layer behind the typed behavior cache.
type Cache interface {
	// Get retrieves a raw value by key
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with a TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key
	Delete(ctx context.Context, key string) error

	// GetJSON retrieves and unmarshals JSON data
	GetJSON(ctx context.Context, key string, dest interface{}) error

	// SetJSON marshals and stores JSON data
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Close closes the cache connection
	Close() error
}

// Key prefixes for consistent cache key naming
const (
	ProfilePrefix = "bte:profile:"
	AnomalyPrefix = "bte:anomalies:"
	RiskPrefix    = "bte:risk:"
)

// TTLs per cached artifact. Profiles change only on re-profiling and live
// longest; risk scores go stale fastest.
const (
	ProfileTTL = 1 * time.Hour
	AnomalyTTL = 30 * time.Minute
	RiskTTL    = 15 * time.Minute
)

// ErrCacheKeyNotFound is returned when a cache key doesn't exist
type ErrCacheKeyNotFound struct {
	Key string
}

func (e ErrCacheKeyNotFound) Error() string {
	return "cache key not found: " + e.Key
}
