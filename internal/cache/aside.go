package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"store-core/internal/apperr"
	"store-core/internal/observability"
)

const (
	// loadTimeout bounds a shared load once it no longer follows any caller.
	loadTimeout = 10 * time.Second
	// invalidateTimeout bounds post-commit invalidation.
	invalidateTimeout = 3 * time.Second
)

// Aside implements read-through-then-source with explicit invalidation.
// Cache failures never fail a request: reads fall back to the loader and
// invalidation failures are logged.
type Aside struct {
	store  Store
	logger *observability.Logger
	group  singleflight.Group

	mu       sync.Mutex
	inflight map[string]*flight
}

// flight tracks one load so an invalidation that lands while it runs keeps
// its result out of the cache.
type flight struct {
	stale bool
}

func NewAside(store Store, logger *observability.Logger) *Aside {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Aside{store: store, logger: logger, inflight: make(map[string]*flight)}
}

// Read returns the cached value under key, or loads it, stores it for ttl
// and returns it. Concurrent misses on one key share a single load, which
// runs detached from any one caller; each caller stops waiting when its own
// context ends.
func Read[T any](ctx context.Context, a *Aside, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if cached, ok := a.lookup(ctx, key); ok {
		var value T
		err := json.Unmarshal(cached, &value)
		if err == nil {
			observability.CacheOperationsTotal.WithLabelValues("get", "hit").Inc()
			return value, nil
		}
		a.logger.Warn("cache_decode_failed", map[string]any{"key": key, "error": err.Error()})
	}
	observability.CacheOperationsTotal.WithLabelValues("get", "miss").Inc()

	results := a.group.DoChan(key, func() (out any, err error) {
		// DoChan re-panics on its own goroutine, where nothing can recover.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("cache: load %s panicked: %v", key, r)
			}
		}()

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		f := a.begin(key)
		defer a.end(key, f)

		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		a.fill(loadCtx, key, f, value, ttl)
		return value, nil
	})

	select {
	case <-ctx.Done():
		return zero, apperr.Canceled(ctx.Err())
	case res := <-results:
		if res.Err != nil {
			return zero, res.Err
		}
		value, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache: unexpected loader result %T for %s", res.Val, key)
		}
		return value, nil
	}
}

// Invalidate removes keys after a committed mutation. It runs even when the
// caller's context has ended and never fails the caller; entries that
// survive a cache outage expire by TTL.
func (a *Aside) Invalidate(ctx context.Context, keys ...string) {
	a.mu.Lock()
	for _, key := range keys {
		if f, ok := a.inflight[key]; ok {
			f.stale = true
		}
		a.group.Forget(key)
	}
	a.mu.Unlock()

	if a.store == nil || len(keys) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()

	if err := a.store.Remove(ctx, keys...); err != nil {
		observability.CacheOperationsTotal.WithLabelValues("remove", "error").Inc()
		a.logger.Warn("cache_invalidate_failed", map[string]any{
			"keys":  keys,
			"error": err.Error(),
		})
		return
	}
	observability.CacheOperationsTotal.WithLabelValues("remove", "ok").Inc()
}

func (a *Aside) begin(key string) *flight {
	f := &flight{}
	a.mu.Lock()
	a.inflight[key] = f
	a.mu.Unlock()
	return f
}

func (a *Aside) end(key string, f *flight) {
	a.mu.Lock()
	if a.inflight[key] == f {
		delete(a.inflight, key)
	}
	a.mu.Unlock()
}

func (a *Aside) isStale(f *flight) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return f.stale
}

// fill stores a loaded value unless an invalidation overlapped the load. An
// invalidation that lands during the write itself is undone by removing the
// key again.
func (a *Aside) fill(ctx context.Context, key string, f *flight, value any, ttl time.Duration) {
	if a.isStale(f) {
		observability.CacheOperationsTotal.WithLabelValues("set", "skipped").Inc()
		return
	}
	if !a.put(ctx, key, value, ttl) || !a.isStale(f) {
		return
	}
	if err := a.store.Remove(ctx, key); err != nil {
		a.logger.Warn("cache_invalidate_failed", map[string]any{"keys": []string{key}, "error": err.Error()})
	}
}

func (a *Aside) lookup(ctx context.Context, key string) ([]byte, bool) {
	if a.store == nil {
		return nil, false
	}

	data, ok, err := a.store.Get(ctx, key)
	if err != nil {
		observability.CacheOperationsTotal.WithLabelValues("get", "error").Inc()
		a.logger.Warn("cache_get_failed", map[string]any{"key": key, "error": err.Error()})
		return nil, false
	}
	return data, ok
}

func (a *Aside) put(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if a.store == nil {
		return false
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		a.logger.Warn("cache_encode_failed", map[string]any{"key": key, "error": err.Error()})
		return false
	}
	if err := a.store.Set(ctx, key, encoded, ttl); err != nil {
		observability.CacheOperationsTotal.WithLabelValues("set", "error").Inc()
		a.logger.Warn("cache_set_failed", map[string]any{"key": key, "error": err.Error()})
		return false
	}
	observability.CacheOperationsTotal.WithLabelValues("set", "ok").Inc()
	return true
}
