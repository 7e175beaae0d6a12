// Package cache provides the short-lived key/value store behind reminder
// deduplication, with in-memory, PostgreSQL and Redis backends.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotJSON is returned when a value stored in the postgres backend is not
// valid JSON.
var ErrNotJSON = errors.New("cache value must be valid JSON")

// Cache is a TTL key/value store. Expired keys behave as absent.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only when key is absent or expired and reports
	// whether it did. Concurrent callers on the same key see exactly one true.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// Evict drops expired entries and returns how many were removed.
	Evict(ctx context.Context) (int, error)
}
