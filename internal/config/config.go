package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Cart store backends.
const (
	CartStoreRedis    = "redis"
	CartStorePostgres = "postgres"
	CartStoreMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CartStore          string
	CartTTL            time.Duration
	CartLockTTL        time.Duration
	StoresFile         string
	WalkingSpeedKmH    float64
	DefaultStrategy    string
	AssignmentPolicy   string
	CateringDeposit    string
	PromoCodes         string
	UpstreamTimeout    time.Duration
	AITimeout          time.Duration
	GeminiAPIKey       string
	GeminiModel        string
	GeocoderBaseURL    string
	GeocoderUserAgent  string
	GeocoderRPS        float64
	GeocodeCacheTTL    time.Duration
	GeocodeRateWindow  time.Duration
	GeocodeRateMax     int
	OptimizeRateLimit  string
	IdempotencyTTL     time.Duration
	KafkaBrokers       string
	KafkaTopic         string
	CORSAllowedOrigins []string
	MaxBodyBytes       int64
	RunMigrations      bool
	Obs                ObsConfig
}

// ObsConfig groups the OBS_* observability settings.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CartStore:          strings.ToLower(valueOrDefault(k.String("CART_STORE"), CartStoreRedis)),
		CartTTL:            parseDuration(k.String("CART_TTL"), "0s"),
		CartLockTTL:        parseDuration(k.String("CART_LOCK_TTL"), "10s"),
		StoresFile:         strings.TrimSpace(k.String("STORES_FILE")),
		WalkingSpeedKmH:    parseFloat(k.String("WALKING_SPEED_KMH"), 5),
		DefaultStrategy:    valueOrDefault(k.String("DEFAULT_STRATEGY"), "balanced"),
		AssignmentPolicy:   valueOrDefault(k.String("ASSIGNMENT_POLICY"), "round_robin"),
		CateringDeposit:    valueOrDefault(k.String("CATERING_DEPOSIT_RATE"), "0.30"),
		PromoCodes:         k.String("PROMO_CODES"),
		UpstreamTimeout:    parseDuration(k.String("UPSTREAM_TIMEOUT"), "3s"),
		AITimeout:          parseDuration(k.String("AI_TIMEOUT"), "8s"),
		GeminiAPIKey:       k.String("GEMINI_API_KEY"),
		GeminiModel:        k.String("GEMINI_MODEL"),
		GeocoderBaseURL:    k.String("GEOCODER_BASE_URL"),
		GeocoderUserAgent:  valueOrDefault(k.String("GEOCODER_USER_AGENT"), "shopping-optimizer/1.0"),
		GeocoderRPS:        parseFloat(k.String("GEOCODER_RPS"), 1),
		GeocodeCacheTTL:    parseDuration(k.String("GEOCODE_CACHE_TTL"), "24h"),
		GeocodeRateWindow:  parseDuration(k.String("GEOCODE_RATE_WINDOW"), "1m"),
		GeocodeRateMax:     parseInt(k.String("GEOCODE_RATE_MAX"), 30),
		OptimizeRateLimit:  valueOrDefault(k.String("OPTIMIZE_RATE_LIMIT"), "60-M"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		KafkaBrokers:       strings.TrimSpace(k.String("KAFKA_BROKERS")),
		KafkaTopic:         valueOrDefault(k.String("KAFKA_TOPIC"), "shopping-optimizer.events"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MaxBodyBytes:       int64(parseInt(k.String("MAX_BODY_BYTES"), 256<<10)),
		RunMigrations:      parseBool(valueOrDefault(k.String("RUN_MIGRATIONS"), "true")),
		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:   parseBool(valueOrDefault(k.String("OBS_METRICS_ENABLED"), "true")),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "shopopt"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:   parseBool(k.String("OBS_TRACING_ENABLED")),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     k.String("OBS_OTLP_ENDPOINT"),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.CartStore {
	case CartStoreRedis, CartStoreMemory:
	case CartStorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when CART_STORE=postgres")
		}
	default:
		return fmt.Errorf("CART_STORE %q must be redis, postgres or memory", c.CartStore)
	}
	if c.RedisURL == "" && c.CartStore != CartStoreMemory {
		return errors.New("REDIS_URL is required")
	}
	if c.WalkingSpeedKmH <= 0 {
		return errors.New("WALKING_SPEED_KMH must be positive")
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
