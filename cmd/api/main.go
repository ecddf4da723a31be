package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/shopping-optimizer/internal/cache"
	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/cartstore"
	"github.com/noah-isme/shopping-optimizer/internal/config"
	"github.com/noah-isme/shopping-optimizer/internal/events"
	"github.com/noah-isme/shopping-optimizer/internal/geocode"
	"github.com/noah-isme/shopping-optimizer/internal/health"
	"github.com/noah-isme/shopping-optimizer/internal/lock"
	"github.com/noah-isme/shopping-optimizer/internal/obs"
	"github.com/noah-isme/shopping-optimizer/internal/optimizer"
	"github.com/noah-isme/shopping-optimizer/internal/pricing"
	"github.com/noah-isme/shopping-optimizer/internal/promo"
	"github.com/noah-isme/shopping-optimizer/internal/quantity"
	"github.com/noah-isme/shopping-optimizer/internal/resilience"
	"github.com/noah-isme/shopping-optimizer/internal/route"
	"github.com/noah-isme/shopping-optimizer/internal/stores"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	if cfg.Obs.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	}

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "shopping-optimizer",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var rdb redis.UniversalClient
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = openRedis(ctx, cfg, logger)
		rdb = redisClient
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	var pool *pgxpool.Pool
	var store cart.Store
	switch cfg.CartStore {
	case config.CartStorePostgres:
		if cfg.RunMigrations {
			if err := cartstore.Migrate(cfg.DatabaseURL); err != nil {
				logger.Fatal().Err(err).Msg("run migrations")
			}
		}
		pool = openPostgres(ctx, cfg, logger)
		defer pool.Close()
		store = cartstore.NewPostgresStore(pool)
	case config.CartStoreMemory:
		store = cartstore.NewMemoryStore()
	default:
		store = &cartstore.RedisStore{R: rdb, TTL: cfg.CartTTL}
	}

	var locker cart.Locker = lock.NewLocal()
	if rdb != nil {
		locker = lock.Locker{R: rdb}
	}

	bus := &events.Bus{}
	if cfg.KafkaBrokers != "" {
		writer := events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error().Err(err).Msg("close kafka writer")
			}
		}()
		bus.Publishers = append(bus.Publishers, &events.KafkaPublisher{Writer: writer})
	}

	cartSvc := &cart.Service{
		Store:   store,
		Locker:  locker,
		LockTTL: cfg.CartLockTTL,
		Timeout: cfg.UpstreamTimeout,
		Logger:  logger,
		Events:  bus,
	}

	catalog := stores.DefaultCatalog()
	if cfg.StoresFile != "" {
		catalog, err = stores.LoadCatalog(cfg.StoresFile)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.StoresFile).Msg("load store catalog")
		}
	}
	policy, err := stores.ParsePolicy(cfg.AssignmentPolicy, catalog.Prices())
	if err != nil {
		logger.Fatal().Err(err).Msg("parse assignment policy")
	}
	promos, err := promo.ParseBook(cfg.PromoCodes)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse promo codes")
	}
	strategy, err := pricing.ParseStrategy(cfg.DefaultStrategy)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse default strategy")
	}
	deposit, err := decimal.NewFromString(cfg.CateringDeposit)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse catering deposit rate")
	}

	geocoder := geocode.NewNominatim(geocode.Config{
		BaseURL:   cfg.GeocoderBaseURL,
		UserAgent: cfg.GeocoderUserAgent,
		RPS:       cfg.GeocoderRPS,
		Timeout:   cfg.UpstreamTimeout,
		Cache:     cache.New(rdb, "geocode", cfg.GeocodeCacheTTL).WithLogger(logger),
		Logger:    logger,
	})

	var qty quantity.Optimizer = quantity.Noop{}
	if cfg.GeminiAPIKey != "" {
		gen, err := quantity.NewGeminiGenerator(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error().Err(err).Msg("initialise gemini client")
		} else {
			defer func() { _ = gen.Close() }()
			qty = quantity.Guarded{
				Next:    quantity.Model{Gen: gen},
				Timeout: cfg.AITimeout,
				Breaker: resilience.NewBreaker(3, 0.5, time.Minute).WithTarget("ai_quantity").WithLogger(logger),
				Logger:  logger,
			}
		}
	}

	router := route.Optimizer{SpeedKmH: cfg.WalkingSpeedKmH}
	optSvc := &optimizer.Service{
		Carts:               cartSvc,
		Catalog:             catalog,
		Assigner:            stores.NewAssigner(policy),
		Quantity:            qty,
		Geocoder:            geocoder,
		Router:              router,
		Promos:              promos,
		DefaultStrategy:     strategy,
		CateringDepositRate: deposit,
		Events:              bus,
		Timeout:             cfg.UpstreamTimeout,
		Logger:              logger,
	}

	handler, err := newRouter(routerDeps{
		Config:   cfg,
		Logger:   logger,
		Redis:    rdb,
		Tracing:  tracingEnabled,
		Catalog:  catalog,
		Promos:   promos,
		Strategy: strategy,
		Router:   router,
		Geocoder: geocoder,
		Cart:     cartSvc,
		Opt:      optSvc,
		Ready:    readinessDeps(redisClient, pool),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("build router")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("cart_store", cfg.CartStore).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	health.SetReady(false)
	logger.Info().Msg("server draining")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
}

func openRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func openPostgres(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "shopping-optimizer"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func readinessDeps(rdb *redis.Client, pool *pgxpool.Pool) []health.Dependency {
	deps := []health.Dependency{{Name: "redis", Timeout: 300 * time.Millisecond}}
	if rdb != nil {
		deps[0].Check = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if pool != nil {
		deps = append(deps, health.Dependency{
			Name:    "postgres",
			Timeout: 500 * time.Millisecond,
			Check:   pool.Ping,
		})
	}
	return deps
}
