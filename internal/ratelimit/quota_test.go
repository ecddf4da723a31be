package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shopping-optimizer/internal/common"
)

func quotaRequest(user string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/me/cart/optimize", nil)
	req = req.WithContext(common.WithUserID(req.Context(), user))
	return req
}

func TestQuotaRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewQuotaStore(client, "limiter:optimize")
	require.NoError(t, err)
	mw, err := Quota(store, "2-M", UserOrIP("optimize:"), nil)
	require.NoError(t, err)

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, quotaRequest("alice"))
		require.Equal(t, http.StatusNoContent, rec.Code, "request %d", i)
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, quotaRequest("alice"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, quotaRequest("bob"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	assert.Contains(t, keys[0], "limiter:optimize")
}

func TestQuotaMemoryFallback(t *testing.T) {
	store, err := NewQuotaStore(nil, "limiter:optimize")
	require.NoError(t, err)
	mw, err := Quota(store, "1-S", UserOrIP("optimize:"), nil)
	require.NoError(t, err)

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	first := httptest.NewRecorder()
	h.ServeHTTP(first, quotaRequest("carol"))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, quotaRequest("carol"))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestQuotaRejectsBadRate(t *testing.T) {
	store, err := NewQuotaStore(nil, "x")
	require.NoError(t, err)
	_, err = Quota(store, "sixty", UserOrIP(""), nil)
	assert.Error(t, err)
}
