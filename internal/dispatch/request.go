// Package dispatch routes each request to exactly one handler through an
// ordered chain of behaviors: validation outermost, then locking, then the
// handler itself.
package dispatch

import (
	"context"
	"time"
)

// LockSpec is the lock capability of a request: the resource key to hold
// and how long to wait for it. A zero Wait uses the dispatcher default.
type LockSpec struct {
	Key  string
	Wait time.Duration
}

// Descriptor identifies a request type by Name and carries its optional
// capabilities. Behaviors inspect the descriptor value, never the Go type.
type Descriptor struct {
	Name string
	Lock *LockSpec
}

// Request is implemented by value types. Describe must return the same Name
// for the zero value as for any populated value of the type.
type Request interface {
	Describe() Descriptor
}

// Next invokes the remainder of the chain. It may be called at most once.
type Next func(ctx context.Context) (any, error)

// Behavior wraps request handling with one cross-cutting concern.
type Behavior interface {
	Handle(ctx context.Context, req Request, next Next) (any, error)
}

type BehaviorFunc func(ctx context.Context, req Request, next Next) (any, error)

func (f BehaviorFunc) Handle(ctx context.Context, req Request, next Next) (any, error) {
	return f(ctx, req, next)
}

// HandlerFunc handles one concrete request type.
type HandlerFunc[Req Request, Res any] func(ctx context.Context, req Req) (Res, error)
