package testutil

import (
	"net/http"
	"time"

	id "agegate/pkg/domain"
	"agegate/pkg/requestcontext"
)

// WithCaller sets the signing account the way the auth middleware would.
func WithCaller(req *http.Request, caller id.AccountID) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}

// WithTime pins the request clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
