package resolver

import (
	"context"

	"tagwatch/internal/watch"
)

// Resolver returns the latest identifier for an entity. An empty Observation
// with a nil error means the entity has nothing resolvable yet.
// Errors are *Error values.
type Resolver interface {
	Resolve(ctx context.Context, e watch.Entity) (watch.Observation, error)
}

// Func adapts a function to Resolver.
type Func func(ctx context.Context, e watch.Entity) (watch.Observation, error)

func (f Func) Resolve(ctx context.Context, e watch.Entity) (watch.Observation, error) {
	return f(ctx, e)
}
