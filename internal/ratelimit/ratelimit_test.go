package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "agegate/pkg/domain"
	"agegate/pkg/testutil"
)

func TestInMemoryStoreSlidingWindow(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewInMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for i := range 3 {
		r, err := s.Allow(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, r.Allowed)
		assert.Equal(t, 2-i, r.Remaining)
		now = now.Add(10 * time.Second)
	}

	r, err := s.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 1, 0, 0, time.UTC), r.ResetAt)
	assert.Equal(t, 30, r.RetryAfter(now))

	other, err := s.Allow(ctx, "other", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	// the first hit leaves the window; rejected hits never entered it
	now = time.Date(2024, 3, 1, 12, 1, 0, 1, time.UTC)
	r, err = s.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	assert.Equal(t, 0, r.Remaining)
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("redis down")
}

func TestPerCaller(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var alice, bob id.AccountID
	alice[31], bob[31] = 0x0a, 0x0b

	t.Run("limits each caller separately", func(t *testing.T) {
		h := New(NewInMemoryStore(), WithLimit(2, time.Minute), WithLogger(logger)).PerCaller("register")(ok)
		for range 2 {
			rr := testutil.DoRequest(h, testutil.WithCaller(testutil.NewRequest(t, http.MethodPost, "/"), alice))
			testutil.AssertStatus(t, rr, http.StatusNoContent)
		}
		rr := testutil.DoRequest(h, testutil.WithCaller(testutil.NewRequest(t, http.MethodPost, "/"), alice))
		testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "rate_limit_exceeded")
		assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rr.Header().Get("Retry-After"))

		rr = testutil.DoRequest(h, testutil.WithCaller(testutil.NewRequest(t, http.MethodPost, "/"), bob))
		testutil.AssertStatus(t, rr, http.StatusNoContent)
		assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("unsigned calls are keyed by address", func(t *testing.T) {
		h := New(NewInMemoryStore(), WithLimit(1, time.Minute), WithLogger(logger)).PerCaller("register")(ok)
		req := testutil.NewRequest(t, http.MethodPost, "/")
		req.RemoteAddr = "10.0.0.1:5000"
		testutil.AssertStatus(t, testutil.DoRequest(h, req), http.StatusNoContent)

		req = testutil.NewRequest(t, http.MethodPost, "/")
		req.RemoteAddr = "10.0.0.1:5001"
		testutil.AssertStatus(t, testutil.DoRequest(h, req), http.StatusTooManyRequests)
	})

	t.Run("store failure fails open", func(t *testing.T) {
		h := New(failingStore{}, WithLogger(logger)).PerCaller("register")(ok)
		rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodPost, "/"))
		testutil.AssertStatus(t, rr, http.StatusNoContent)
	})
}
