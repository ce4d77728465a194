// Package cache provides pluggable byte caching for registry metadata
// and HTTP responses.
//
// Three backends implement the [Cache] interface:
//   - [FileCache]: per-user on-disk cache for CLI runs
//   - [RedisCache]: shared cache for long-lived or multi-host setups
//   - [NullCache]: disabled caching (every lookup is a miss)
//
// Keys are opaque strings; backends hash them (see [Hash]) so callers
// may use arbitrary characters. Entries carry an optional TTL.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values under string keys with optional
// expiration.
type Cache interface {
	// Get retrieves a value. The second return is false on a miss;
	// expired entries are misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value. A ttl of 0 means the entry never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}
