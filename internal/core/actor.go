package core

import "context"

// SystemActor is recorded when no actor was attached to the context.
const SystemActor = "system"

type actorKey struct{}

// WithActor returns a context that attributes history entries to actor.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor attached by WithActor, or SystemActor.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}
