// Package requestcontext provides HTTP-independent accessors for
// request-scoped values. Middleware sets them; services read them without
// importing net/http.
//
// Services read:
//
//	party := requestcontext.Party(ctx)
//	now := requestcontext.Now(ctx)
//
// Middleware and tests write:
//
//	ctx = requestcontext.WithParty(ctx, party)
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "custodia/pkg/domain"
)

type (
	partyKey       struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Party retrieves the authenticated party address from the context. Returns
// the empty PartyID when no identity was established.
func Party(ctx context.Context) id.PartyID {
	if p, ok := ctx.Value(partyKey{}).(id.PartyID); ok {
		return p
	}
	return ""
}

// WithParty injects the authenticated party address into the context.
func WithParty(ctx context.Context, party id.PartyID) context.Context {
	return context.WithValue(ctx, partyKey{}, party)
}

// RequestID retrieves the correlation id assigned by middleware.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a correlation id into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time, falling back to time.Now for
// non-HTTP contexts such as workers and tests that did not pin a clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request-scoped clock. Used by middleware at request entry
// and by tests that need deterministic timestamps.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
