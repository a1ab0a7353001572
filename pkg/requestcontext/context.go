// Package requestcontext carries call-scoped values independently of the transport.
//
// A ledger entry point behaves like a transaction: it has a signer (the caller) and a
// block time. Middleware, the keeper and tests set both; services only read them.
//
//	ctx = requestcontext.WithCaller(ctx, alice)
//	ctx = requestcontext.WithTime(ctx, blockTime)
//	...
//	if requestcontext.Caller(ctx) != sub.Subscriber { ... }
package requestcontext

import (
	"context"
	"time"

	id "agegate/pkg/domain"
)

type key int

const (
	callerKey key = iota
	requestIDKey
	blockTimeKey
)

// Caller returns the authenticated signer of the call, or the zero account.
func Caller(ctx context.Context) id.AccountID {
	caller, _ := ctx.Value(callerKey).(id.AccountID)
	return caller
}

func WithCaller(ctx context.Context, caller id.AccountID) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// RequestID is empty outside an HTTP request.
func RequestID(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey).(string)
	return rid
}

func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey, rid)
}

// Now returns the block time of the call, or the wall clock when nothing pinned one.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(blockTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the block time so one call observes a single "now".
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, blockTimeKey, t)
}
