package services

import "context"

type actorKey struct{}

// WithActor stores the acting user's id for author stamping.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFrom returns the acting user, or nil for anonymous calls.
func ActorFrom(ctx context.Context) *string {
	id, ok := ctx.Value(actorKey{}).(string)
	if !ok || id == "" {
		return nil
	}
	return &id
}
