// Package requesttime pins one block time per request.
// Every read of "now" within a call, from freshness checks to settlement arithmetic,
// observes the same instant.
package requesttime

import (
	"net/http"
	"time"

	"agegate/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return MiddlewareWithClock(time.Now)(next)
}

// MiddlewareWithClock pins the time returned by clock. Tests and simulated ledgers use it
// to drive block time.
func MiddlewareWithClock(clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), clock().UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
