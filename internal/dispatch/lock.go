package dispatch

import (
	"context"
	"time"

	"store-core/internal/apperr"
	"store-core/internal/lock"
	"store-core/internal/observability"
)

const busyMessage = "resource is busy, please retry"

type lockBehavior struct {
	store          lock.Store
	defaultWait    time.Duration
	releaseTimeout time.Duration
	logger         *observability.Logger
}

func (b *lockBehavior) Handle(ctx context.Context, req Request, next Next) (any, error) {
	spec := req.Describe().Lock
	if spec == nil {
		return next(ctx)
	}

	if b.store == nil || spec.Key == "" {
		observability.LockAcquisitionsTotal.WithLabelValues("error").Inc()
		return nil, apperr.New(apperr.ResourceBusy, busyMessage)
	}

	wait := spec.Wait
	if wait <= 0 {
		wait = b.defaultWait
	}

	handle, err := b.store.TryAcquire(ctx, spec.Key, wait)
	if err != nil {
		observability.LockAcquisitionsTotal.WithLabelValues("error").Inc()
		b.logger.Warn("lock_acquire_failed", map[string]any{
			"key":   spec.Key,
			"error": err.Error(),
		})
		return nil, apperr.Wrap(apperr.ResourceBusy, busyMessage, err)
	}
	if handle == nil {
		observability.LockAcquisitionsTotal.WithLabelValues("busy").Inc()
		return nil, apperr.New(apperr.ResourceBusy, busyMessage)
	}
	observability.LockAcquisitionsTotal.WithLabelValues("acquired").Inc()

	defer b.release(ctx, spec.Key, handle)

	return next(ctx)
}

// release runs even when ctx is already cancelled; the handle must never
// outlive the invocation that acquired it.
func (b *lockBehavior) release(ctx context.Context, key string, handle lock.Handle) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.releaseTimeout)
	defer cancel()

	if err := handle.Release(releaseCtx); err != nil {
		b.logger.Error("lock_release_failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	}
}
