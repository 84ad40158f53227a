// Package cache provides the byte-oriented caches used for dictionary
// search results: an in-process cache and a shared Redis cache.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values under string keys with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
