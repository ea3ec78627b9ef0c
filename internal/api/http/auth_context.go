package httpapi

import (
	"context"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
)

type authContextKey string

const authActorKey authContextKey = "authActor"

func withActor(ctx context.Context, a engagement.Actor) context.Context {
	return context.WithValue(ctx, authActorKey, a)
}

func actorFromContext(ctx context.Context) (engagement.Actor, bool) {
	a, ok := ctx.Value(authActorKey).(engagement.Actor)
	return a, ok
}
