package ratelimit

import (
	"net/http"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/shopping-optimizer/internal/common"
)

// NewQuotaStore returns a Redis-backed fixed-window store, or an in-process
// one when client is nil.
func NewQuotaStore(client redis.UniversalClient, prefix string) (limiter.Store, error) {
	opts := limiter.StoreOptions{Prefix: prefix}
	if client == nil {
		return memory.NewStoreWithOptions(opts), nil
	}
	return limiterredis.NewStoreWithOptions(client, opts)
}

// Quota builds a fixed-window middleware from a formatted rate such as
// "60-M". Requests are keyed by key; store errors answer 503.
func Quota(store limiter.Store, formatted string, key func(*http.Request) string, onError func(error)) (func(http.Handler) http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	mw := stdlib.NewMiddleware(limiter.New(store, rate),
		stdlib.WithKeyGetter(key),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, _ *http.Request) {
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
			if onError != nil {
				onError(err)
			}
			common.JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "rate limiter unavailable", nil)
		}),
	)
	return mw.Handler, nil
}
