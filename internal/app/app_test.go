package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bizq-orchestrator/internal/app"
	"github.com/JakeFAU/bizq-orchestrator/internal/config"
	"github.com/JakeFAU/bizq-orchestrator/internal/orchestrator"
)

func baseConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5},
		Logging: config.LoggingConfig{Development: true, Level: "info"},
		Cache: config.CacheConfig{
			Backend:       config.BackendMemory,
			TTLSeconds:    60,
			RecentEntries: 5,
		},
		RateLimit: config.RateLimitConfig{
			Backend:       config.BackendMemory,
			Requests:      3,
			WindowSeconds: 60,
		},
		Provider: config.ProviderConfig{
			Backend:        config.BackendCLI,
			CLIPath:        "/nonexistent/claude",
			TimeoutSeconds: 1,
		},
		Credits: config.CreditsConfig{Cache: 1, Fallback: 5, AI: 10, Generate: 15, BulkPerTarget: 5},
		Bulk:    config.BulkConfig{Concurrency: 2},
		Ledger:  config.LedgerConfig{Backend: config.BackendMemory},
	}
}

func TestNewMemoryStackServesFallback(t *testing.T) {
	a, err := app.New(context.Background(), baseConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	// The CLI binary does not exist, so the service answers with fallback content.
	resp, err := a.Service.Suggest(context.Background(), orchestrator.Request{
		Category: "business_names",
		Keywords: []string{"bakery"},
		Limit:    2,
	})
	require.NoError(t, err)
	require.Equal(t, orchestrator.SourceFallback, resp.Source)

	rec := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestNewSQLiteCache(t *testing.T) {
	cfg := baseConfig()
	cfg.Cache.Backend = config.BackendSQLite
	cfg.Cache.SQLitePath = filepath.Join(t.TempDir(), "cache.db")

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	stats := a.Cache.Stats(context.Background())
	require.Zero(t, stats.Size)
}

func TestNewRedisCacheAndLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.Cache.Backend = config.BackendRedis
	cfg.Cache.RedisAddr = mr.Addr()
	cfg.RateLimit.Backend = config.BackendRedis

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	for i := 0; i < cfg.RateLimit.Requests; i++ {
		ok, err := a.Limiter.Allow(context.Background(), "client-a")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := a.Limiter.Allow(context.Background(), "client-a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewFailsWhenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := baseConfig()
	cfg.Cache.Backend = config.BackendRedis
	cfg.Cache.RedisAddr = addr

	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	cases := map[string]func(*config.Config){
		"cache":    func(c *config.Config) { c.Cache.Backend = "etcd" },
		"provider": func(c *config.Config) { c.Provider.Backend = "llama" },
		"ledger":   func(c *config.Config) { c.Ledger.Backend = "csv" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := baseConfig()
			mutate(&cfg)
			_, err := app.New(context.Background(), cfg, zap.NewNop())
			require.Error(t, err)
		})
	}
}

func TestNewAnthropicRequiresKey(t *testing.T) {
	cfg := baseConfig()
	cfg.Provider.Backend = config.BackendAnthropic

	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "api key")
}

func TestNewWithTracingEnabled(t *testing.T) {
	cfg := baseConfig()
	cfg.Telemetry = config.TelemetryConfig{TracingEnabled: true, ServiceName: "bizq-test", Exporter: config.BackendNone}

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	a.Close()
}
