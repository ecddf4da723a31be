package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/cartstore"
	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/config"
	"github.com/noah-isme/shopping-optimizer/internal/lock"
	"github.com/noah-isme/shopping-optimizer/internal/optimizer"
	"github.com/noah-isme/shopping-optimizer/internal/pricing"
	"github.com/noah-isme/shopping-optimizer/internal/stores"
)

func testRouter(t *testing.T, optimizeRate string) http.Handler {
	t.Helper()
	cfg := &config.Config{
		AppEnv:            "test",
		CartStore:         config.CartStoreMemory,
		OptimizeRateLimit: optimizeRate,
		GeocodeRateWindow: time.Minute,
		GeocodeRateMax:    10,
		IdempotencyTTL:    time.Minute,
		MaxBodyBytes:      1 << 20,
	}
	catalog := stores.DefaultCatalog()
	cartSvc := &cart.Service{Store: cartstore.NewMemoryStore(), Locker: lock.NewLocal(), Logger: zerolog.Nop()}
	h, err := newRouter(routerDeps{
		Config:   cfg,
		Logger:   zerolog.Nop(),
		Catalog:  catalog,
		Strategy: pricing.StrategyBalanced,
		Cart:     cartSvc,
		Opt: &optimizer.Service{
			Carts:    cartSvc,
			Catalog:  catalog,
			Assigner: stores.NewAssigner(stores.RoundRobin{}),
			Logger:   zerolog.Nop(),
		},
	})
	require.NoError(t, err)
	return h
}

func do(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(common.UserHeader, user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthAndStores(t *testing.T) {
	h := testRouter(t, "100-M")

	rec := do(t, h, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/stores", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fresh-market")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouterCartRequiresUser(t *testing.T) {
	h := testRouter(t, "100-M")

	rec := do(t, h, http.MethodGet, "/api/v1/me/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterSyncThenOptimize(t *testing.T) {
	h := testRouter(t, "100-M")

	items := []cart.LineItem{
		{Name: "Rice", UnitPrice: 60000, Quantity: 1, SourceType: cart.SourceProduct, StoreID: "fresh-market"},
		{Name: "Eggs", UnitPrice: 30000, Quantity: 1, SourceType: cart.SourceProduct, StoreID: "fresh-market"},
	}
	rec := do(t, h, http.MethodPost, "/api/v1/me/cart/sync", "u-1", map[string]any{"items": items})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/me/cart", "u-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rice")

	rec = do(t, h, http.MethodPost, "/api/v1/me/cart/optimize", "u-1", map[string]any{"strategy": "savings"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data optimizer.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Items, 2)
	assert.Equal(t, int64(90000), resp.Data.Totals.StoreSubtotal)
	assert.Equal(t, int64(27000), resp.Data.Totals.StrategyDiscount)
	assert.Equal(t, int64(63000), resp.Data.Totals.FinalTotal)
	assert.Equal(t, int64(73000), resp.Data.Totals.Payable)
	assert.Nil(t, resp.Data.Route)
}

func TestRouterOptimizeQuota(t *testing.T) {
	h := testRouter(t, "1-M")
	body := map[string]any{"items": []cart.LineItem{}}

	rec := do(t, h, http.MethodPost, "/api/v1/optimize", "", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/v1/optimize", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRouterRejectsBadQuota(t *testing.T) {
	cfg := &config.Config{OptimizeRateLimit: "often"}
	_, err := newRouter(routerDeps{Config: cfg, Logger: zerolog.Nop()})
	assert.Error(t, err)
}
