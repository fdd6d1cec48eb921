package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"store-core/internal/apperr"
	"store-core/internal/lock"
	"store-core/internal/observability"
)

const (
	defaultLockWait       = 5 * time.Second
	defaultReleaseTimeout = 3 * time.Second
)

type Options struct {
	// Locks backs the lock behavior. Without it lockable requests fail
	// closed with ResourceBusy.
	Locks          lock.Store
	DefaultWait    time.Duration
	ReleaseTimeout time.Duration
	Logger         *observability.Logger
}

// BehaviorFactory builds the behavior for one request name, or returns nil
// when the behavior does not apply to it.
type BehaviorFactory func(name string, validators []validatorFn) Behavior

type Dispatcher struct {
	chains map[string]handlerFn
	logger *observability.Logger
	tracer trace.Tracer
}

// Build composes every registered handler with the behavior chain in its
// fixed order and returns a dispatcher.
func (r *Registry) Build(opts Options) (*Dispatcher, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	if opts.DefaultWait <= 0 {
		opts.DefaultWait = defaultLockWait
	}
	if opts.ReleaseTimeout <= 0 {
		opts.ReleaseTimeout = defaultReleaseTimeout
	}

	factories := []BehaviorFactory{
		func(name string, validators []validatorFn) Behavior {
			if len(validators) == 0 {
				return nil
			}
			return &validationBehavior{validators: validators}
		},
		func(name string, validators []validatorFn) Behavior {
			return &lockBehavior{
				store:          opts.Locks,
				defaultWait:    opts.DefaultWait,
				releaseTimeout: opts.ReleaseTimeout,
				logger:         logger,
			}
		},
	}

	chains := make(map[string]handlerFn, len(r.routes))
	for name, rt := range r.routes {
		behaviors := make([]Behavior, 0, len(factories))
		for _, factory := range factories {
			if b := factory(name, r.validators[name]); b != nil {
				behaviors = append(behaviors, b)
			}
		}
		chains[name] = compose(rt.handler, behaviors)
	}

	return &Dispatcher{
		chains: chains,
		logger: logger,
		tracer: otel.Tracer("store-core/dispatch"),
	}, nil
}

// compose wraps handler so that behaviors[0] runs first.
func compose(handler handlerFn, behaviors []Behavior) handlerFn {
	h := handler
	for i := len(behaviors) - 1; i >= 0; i-- {
		b := behaviors[i]
		inner := h
		h = func(ctx context.Context, req Request) (any, error) {
			return b.Handle(ctx, req, once(func(ctx context.Context) (any, error) {
				return inner(ctx, req)
			}))
		}
	}
	return h
}

func once(next Next) Next {
	var called atomic.Bool
	return func(ctx context.Context) (any, error) {
		if !called.CompareAndSwap(false, true) {
			return nil, apperr.New(apperr.InfrastructureError, "behavior invoked next more than once")
		}
		return next(ctx)
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (any, error) {
	if req == nil {
		return nil, apperr.New(apperr.InfrastructureError, "nil request")
	}
	name := req.Describe().Name

	chain, ok := d.chains[name]
	if !ok {
		return nil, apperr.New(apperr.InfrastructureError, fmt.Sprintf("no handler registered for %q", name))
	}

	ctx, span := d.tracer.Start(ctx, "dispatch "+name, trace.WithAttributes(
		attribute.String("request.name", name),
	))
	defer span.End()

	start := time.Now()
	out, err := chain(ctx, req)

	outcome := "success"
	if err != nil {
		kind := apperr.KindOf(err)
		outcome = string(kind)
		span.RecordError(err)
		if !apperr.IsBusiness(kind) {
			span.SetStatus(codes.Error, "dispatch failed")
		}
	}
	observability.DispatchRequestsTotal.WithLabelValues(name, outcome).Inc()
	d.logger.Debug("dispatch_completed", map[string]any{
		"request":     name,
		"outcome":     outcome,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return out, err
}

// Send dispatches req and asserts the result type.
func Send[Res any](ctx context.Context, d *Dispatcher, req Request) (Res, error) {
	var zero Res

	out, err := d.Dispatch(ctx, req)
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}

	res, ok := out.(Res)
	if !ok {
		return zero, apperr.New(apperr.InfrastructureError, fmt.Sprintf("unexpected result type %T", out))
	}
	return res, nil
}
