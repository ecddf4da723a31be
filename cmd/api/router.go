package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/config"
	"github.com/noah-isme/shopping-optimizer/internal/delivery"
	"github.com/noah-isme/shopping-optimizer/internal/geocode"
	"github.com/noah-isme/shopping-optimizer/internal/health"
	"github.com/noah-isme/shopping-optimizer/internal/obs"
	"github.com/noah-isme/shopping-optimizer/internal/optimizer"
	"github.com/noah-isme/shopping-optimizer/internal/pricing"
	"github.com/noah-isme/shopping-optimizer/internal/ratelimit"
	"github.com/noah-isme/shopping-optimizer/internal/route"
	"github.com/noah-isme/shopping-optimizer/internal/security"
	"github.com/noah-isme/shopping-optimizer/internal/stores"
)

type routerDeps struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Redis    redis.UniversalClient
	Tracing  bool
	Catalog  *stores.Catalog
	Promos   pricing.PromoResolver
	Strategy pricing.Strategy
	Router   route.Optimizer
	Geocoder geocode.Client
	Cart     *cart.Service
	Opt      *optimizer.Service
	Ready    []health.Dependency
}

func newRouter(d routerDeps) (http.Handler, error) {
	cfg := d.Config

	quotaStore, err := ratelimit.NewQuotaStore(d.Redis, "limiter:optimize")
	if err != nil {
		return nil, err
	}
	onLimiterError := func(err error) {
		d.Logger.Warn().Err(err).Msg("rate_limiter_failed")
	}
	optimizeQuota, err := ratelimit.Quota(quotaStore, cfg.OptimizeRateLimit, ratelimit.UserOrIP("optimize:"), onLimiterError)
	if err != nil {
		return nil, err
	}
	geocodeLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: d.Redis, Prefix: "ratelimit:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ClientIP("geocode:"),
			Window: cfg.GeocodeRateWindow,
			Max:    cfg.GeocodeRateMax,
		},
		OnError: onLimiterError,
	}
	idem := common.Idem{R: d.Redis, TTL: cfg.IdempotencyTTL}

	cartHandler := &cart.Handler{Svc: d.Cart}
	optHandler := &optimizer.Handler{Svc: d.Opt}
	routeHandler := &route.Handler{Optimizer: d.Router, Catalog: d.Catalog}
	pricingHandler := &pricing.Handler{Promos: d.Promos, DefaultStrategy: d.Strategy}
	deliveryHandler := &delivery.Handler{Catalog: d.Catalog}
	storesHandler := &stores.Handler{Catalog: d.Catalog}
	geocodeHandler := &geocode.Handler{Client: d.Geocoder}
	healthHandler := health.Handler{Deps: d.Ready}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if d.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.Obs.MetricsEnabled {
		buckets := obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets)
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, buckets, nil)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", common.UserHeader, "Idempotency-Key"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	r.Use(common.SessionUser)

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/stores", storesHandler.List)
		v.Post("/route", routeHandler.Compute)
		v.Post("/pricing", pricingHandler.Price)
		v.Post("/carts/merge", cartHandler.Merge)
		v.Post("/delivery/evaluate", deliveryHandler.Evaluate)
		v.With(geocodeLimit.Middleware).Get("/geocode", geocodeHandler.Search)
		v.With(optimizeQuota).Post("/optimize", optHandler.Optimize)

		v.Route("/me/cart", func(c chi.Router) {
			c.Use(common.RequireUser)
			c.Get("/", cartHandler.Get)
			c.With(idem.Middleware).Post("/sync", cartHandler.Sync)
			c.Patch("/items", cartHandler.SetQuantity)
			c.Delete("/", cartHandler.Clear)
			c.With(optimizeQuota).Post("/optimize", optHandler.Optimize)
		})
	})

	return r, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
