// Package cache is the client side of the shared key/value cache and the
// cache-aside protocol built on top of it.
package cache

import (
	"context"
	"time"
)

// Store holds opaque values with a per-entry TTL. An expired entry is
// indistinguishable from a missing one.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Remove(ctx context.Context, keys ...string) error
}

// Counter increments a windowed counter. The window starts with the first
// increment and the remaining window length is returned with the count.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
