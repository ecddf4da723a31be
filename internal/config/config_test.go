package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shopping-optimizer/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"REDIS_URL":  "redis://localhost:6379/0",
		"CART_STORE": "",
		"PORT":       "",
	})
	require.NoError(t, err)
	require.Equal(t, config.CartStoreRedis, cfg.CartStore)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 5.0, cfg.WalkingSpeedKmH)
	require.Equal(t, 3*time.Second, cfg.UpstreamTimeout)
	require.Equal(t, "60-M", cfg.OptimizeRateLimit)
	require.Equal(t, "shopopt", cfg.Obs.MetricsNamespace)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"REDIS_URL":            "redis://localhost:6379/0",
		"CART_STORE":           "Memory",
		"PORT":                 ":9090",
		"WALKING_SPEED_KMH":    "4.5",
		"AI_TIMEOUT":           "2s",
		"CORS_ALLOWED_ORIGINS": "https://a.example, ,https://b.example",
		"GEOCODE_RATE_MAX":     "7",
	})
	require.NoError(t, err)
	require.Equal(t, config.CartStoreMemory, cfg.CartStore)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, 4.5, cfg.WalkingSpeedKmH)
	require.Equal(t, 2*time.Second, cfg.AITimeout)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.Equal(t, 7, cfg.GeocodeRateMax)
}

func TestLoadValidation(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{"REDIS_URL": "redis://x", "CART_STORE": "postgres", "DATABASE_URL": ""})
	require.ErrorContains(t, err, "DATABASE_URL")

	_, err = config.LoadForTests(map[string]string{"REDIS_URL": "", "CART_STORE": "redis"})
	require.ErrorContains(t, err, "REDIS_URL")

	_, err = config.LoadForTests(map[string]string{"REDIS_URL": "redis://x", "CART_STORE": "mongo"})
	require.ErrorContains(t, err, "CART_STORE")

	_, err = config.LoadForTests(map[string]string{"REDIS_URL": "", "CART_STORE": "memory"})
	require.NoError(t, err)
}
