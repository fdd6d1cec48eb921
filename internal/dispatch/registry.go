package dispatch

import (
	"context"
	"fmt"
	"sort"

	"store-core/internal/apperr"
)

type handlerFn func(ctx context.Context, req Request) (any, error)

type route struct {
	name    string
	handler handlerFn
}

// Registry collects handlers and validators before the dispatcher is built.
// It is not safe for concurrent use; register everything at startup.
type Registry struct {
	routes     map[string]*route
	validators map[string][]validatorFn
}

func NewRegistry() *Registry {
	return &Registry{
		routes:     make(map[string]*route),
		validators: make(map[string][]validatorFn),
	}
}

// Handle registers the single handler for Req. Registering a second handler
// for the same request name is a configuration error and panics.
func Handle[Req Request, Res any](r *Registry, handler HandlerFunc[Req, Res]) {
	name := requestName[Req]()
	if _, exists := r.routes[name]; exists {
		panic(fmt.Sprintf("dispatch: duplicate handler registration for %q", name))
	}
	if handler == nil {
		panic(fmt.Sprintf("dispatch: nil handler for %q", name))
	}

	r.routes[name] = &route{
		name: name,
		handler: func(ctx context.Context, req Request) (any, error) {
			typed, ok := req.(Req)
			if !ok {
				return nil, apperr.New(apperr.InfrastructureError, fmt.Sprintf("request %q has unexpected type %T", name, req))
			}
			return handler(ctx, typed)
		},
	}
}

// Validate adds validators for Req. They run in addition to any registered earlier.
func Validate[Req Request](r *Registry, validators ...Validator[Req]) {
	name := requestName[Req]()
	for _, v := range validators {
		if v == nil {
			continue
		}
		r.validators[name] = append(r.validators[name], adapt(name, v))
	}
}

// Names lists every request name with a registered handler.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) check() error {
	for name := range r.validators {
		if _, ok := r.routes[name]; !ok {
			return fmt.Errorf("dispatch: validators registered for %q but no handler", name)
		}
	}
	return nil
}

func requestName[Req Request]() string {
	var zero Req
	name := zero.Describe().Name
	if name == "" {
		panic(fmt.Sprintf("dispatch: request type %T has an empty name", zero))
	}
	return name
}
