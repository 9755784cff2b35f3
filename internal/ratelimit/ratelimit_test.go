package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citywalk/pkg/testutil"
)

func TestInMemoryBucketStore_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryBucketStore()
	store.now = func() time.Time { return now }

	for i := range 3 {
		res, err := store.Allow(ctx, "chain:admin-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := store.Allow(ctx, "chain:admin-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 60, res.RetryAfter)

	// other keys are independent
	res, err = store.Allow(ctx, "chain:admin-2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	now = now.Add(61 * time.Second)
	res, err = store.Allow(ctx, "chain:admin-1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestInMemoryBucketStore_DropsExpiredBuckets(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryBucketStore()
	store.now = func() time.Time { return now }

	for _, key := range []string{"ip:10.0.0.1", "ip:10.0.0.2", "ip:10.0.0.3"} {
		_, err := store.Allow(ctx, key, 5, time.Minute)
		require.NoError(t, err)
	}
	assert.Len(t, store.buckets, 3)

	now = now.Add(30 * time.Second)
	_, err := store.Allow(ctx, "ip:10.0.0.4", 5, time.Minute)
	require.NoError(t, err)
	assert.Len(t, store.buckets, 4, "nothing has expired yet")

	now = now.Add(61 * time.Second)
	res, err := store.Allow(ctx, "ip:10.0.0.5", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Len(t, store.buckets, 1)
	assert.Contains(t, store.buckets, "ip:10.0.0.5")
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("redis down")
}

func TestLimiter_PerActor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	request := func(actor string) *http.Request {
		return testutil.WithActor(testutil.NewRequest(t, http.MethodPost, "/admin/seal-ownerships/1/chain"), actor)
	}

	t.Run("throttles after limit", func(t *testing.T) {
		h := NewLimiter(NewInMemoryBucketStore(), 2, time.Minute, logger).PerActor("chain")(ok)

		for range 2 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request("admin-1"))
			assert.Equal(t, http.StatusOK, rec.Code)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("admin-1"))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, request("admin-2"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("fails open", func(t *testing.T) {
		h := NewLimiter(failingStore{}, 1, time.Minute, logger).PerActor("chain")(ok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("admin-1"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("nil limiter passes through", func(t *testing.T) {
		var l *Limiter
		rec := httptest.NewRecorder()
		l.PerActor("chain")(ok).ServeHTTP(rec, request("admin-1"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
