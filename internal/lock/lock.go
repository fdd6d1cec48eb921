// Package lock is the client side of the shared lock service used to
// serialize requests touching the same resource.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotHeld is returned by Release when the handle no longer owns its key,
// for example because the lease expired on the lock service.
var ErrNotHeld = errors.New("lock not held")

// Handle represents exclusive ownership of one key.
type Handle interface {
	// Release gives the key back. It is safe to call more than once; only the
	// first call has an effect.
	Release(ctx context.Context) error
}

// Store acquires and releases advisory, time-bounded locks.
type Store interface {
	// TryAcquire blocks up to wait for key. It returns a nil Handle and a nil
	// error when the key stayed busy for the whole wait. Any error means the
	// lock state is unknown and the caller must treat the key as not acquired.
	// The lock service expires handles whose holder disappears, so no lease
	// renewal happens here.
	TryAcquire(ctx context.Context, key string, wait time.Duration) (Handle, error)
}
