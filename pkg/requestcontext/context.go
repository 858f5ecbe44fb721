// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services read them. Keeping the package free
// of net/http lets services depend only on context.
package requestcontext

import (
	"context"
	"time"

	id "fundledger/pkg/domain"
)

type (
	tenantIDKey    struct{}
	actorIDKey     struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// WithTenantID stores the tenant the request operates on.
func WithTenantID(ctx context.Context, tenantID id.TenantID) context.Context {
	return context.WithValue(ctx, tenantIDKey{}, tenantID)
}

// TenantID returns the request tenant, or the nil ID when unset.
func TenantID(ctx context.Context) id.TenantID {
	t, _ := ctx.Value(tenantIDKey{}).(id.TenantID)
	return t
}

// WithActorID stores the authenticated actor. Decisions made without an actor
// are recorded as automated (decided_by null).
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey{}, actorID)
}

// ActorID returns the authenticated actor, or "" for automated callers.
func ActorID(ctx context.Context) string {
	a, _ := ctx.Value(actorIDKey{}).(string)
	return a
}

// WithRequestID stores the correlation ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the correlation ID, or "".
func RequestID(ctx context.Context) string {
	r, _ := ctx.Value(requestIDKey{}).(string)
	return r
}

// WithTime injects the request-scoped clock. All timestamps within one request
// (decided_at, event timestamps) read the same instant.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now returns the request-scoped time, falling back to the wall clock when no
// middleware ran (background workers, tests). The fallback is truncated to
// microseconds like the middleware's instant, the resolution TIMESTAMPTZ
// columns preserve.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now().UTC().Truncate(time.Microsecond)
}
