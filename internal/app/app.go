// Package app initializes and holds long-lived application services, acting as a dependency
// injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/bizq-orchestrator/internal/api"
	"github.com/JakeFAU/bizq-orchestrator/internal/availability"
	"github.com/JakeFAU/bizq-orchestrator/internal/cache"
	"github.com/JakeFAU/bizq-orchestrator/internal/cache/memory"
	rediscache "github.com/JakeFAU/bizq-orchestrator/internal/cache/redis"
	"github.com/JakeFAU/bizq-orchestrator/internal/cache/sqlite"
	"github.com/JakeFAU/bizq-orchestrator/internal/clock"
	"github.com/JakeFAU/bizq-orchestrator/internal/config"
	"github.com/JakeFAU/bizq-orchestrator/internal/dispatcher"
	"github.com/JakeFAU/bizq-orchestrator/internal/id"
	"github.com/JakeFAU/bizq-orchestrator/internal/ledger"
	pgledger "github.com/JakeFAU/bizq-orchestrator/internal/ledger/postgres"
	pubsubledger "github.com/JakeFAU/bizq-orchestrator/internal/ledger/pubsub"
	"github.com/JakeFAU/bizq-orchestrator/internal/metrics"
	"github.com/JakeFAU/bizq-orchestrator/internal/orchestrator"
	"github.com/JakeFAU/bizq-orchestrator/internal/provider"
	"github.com/JakeFAU/bizq-orchestrator/internal/provider/anthropic"
	"github.com/JakeFAU/bizq-orchestrator/internal/provider/cli"
	"github.com/JakeFAU/bizq-orchestrator/internal/ratelimit"
	"github.com/JakeFAU/bizq-orchestrator/internal/telemetry"
)

// App holds the shared, long-lived services built from one Config.
type App struct {
	Logger     *zap.Logger
	Cache      *cache.Store
	Service    *orchestrator.Service
	Dispatcher *dispatcher.Dispatcher
	Server     *api.Server
	Limiter    orchestrator.Limiter

	closers []func() error
}

// New builds every component selected by cfg. It fails fast if a backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Logger: logger}
	if err := a.build(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("cache", cfg.Cache.Backend),
		zap.String("rate_limit", cfg.RateLimit.Backend),
		zap.String("ledger", cfg.Ledger.Backend))
	return a, nil
}

func (a *App) build(ctx context.Context, cfg config.Config) error {
	logger := a.Logger
	metrics.Init()

	if cfg.Telemetry.TracingEnabled {
		opts := telemetry.Options{ServiceName: cfg.Telemetry.ServiceName}
		if cfg.Telemetry.Exporter == config.ExporterStdout {
			opts.Writer = os.Stdout
		}
		tp, err := telemetry.Init(ctx, opts)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		a.closers = append(a.closers, func() error { return tp.Shutdown(context.Background()) })
	}

	clk := clock.New()

	var rdb *redis.Client
	if cfg.Cache.Backend == config.BackendRedis || cfg.RateLimit.Backend == config.BackendRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		a.closers = append(a.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis %s: %w", cfg.Cache.RedisAddr, err)
		}
	}

	backend, err := a.cacheBackend(cfg, rdb, clk)
	if err != nil {
		return err
	}
	a.Cache = cache.New(backend, logger, cache.Options{
		TTL:           cfg.CacheTTL(),
		RecentEntries: cfg.Cache.RecentEntries,
		Clock:         clk,
	})

	a.Limiter = a.limiter(ctx, cfg, rdb, clk)

	completer, err := newCompleter(cfg)
	if err != nil {
		return err
	}
	logger.Info("using provider backend", zap.String("backend", completer.Name()))

	var checker orchestrator.AvailabilityChecker
	if cfg.Availability.Enabled {
		timeout := secondsOr(cfg.Availability.TimeoutSeconds, availability.DefaultTimeout)
		paced := availability.NewPaced(availability.NewWhois(timeout), availability.PacingConfig{
			PerSecond: cfg.Availability.PacingPerSecond,
			Burst:     cfg.Availability.PacingBurst,
		})
		checker = availability.NewFailOpen(paced, logger, timeout)
	}

	charges, err := a.ledger(ctx, cfg)
	if err != nil {
		return err
	}

	a.Service, err = orchestrator.NewService(orchestrator.Options{
		Cache:        a.Cache,
		Limiter:      a.Limiter,
		Generator:    provider.New(completer, cfg.ProviderTimeout()),
		Availability: checker,
		Ledger:       charges,
		Clock:        clk,
		Logger:       logger,
		Credits: orchestrator.Credits{
			Cache:         cfg.Credits.Cache,
			Fallback:      cfg.Credits.Fallback,
			AI:            cfg.Credits.AI,
			Generate:      cfg.Credits.Generate,
			BulkPerTarget: cfg.Credits.BulkPerTarget,
		},
		CacheTTL:                cfg.CacheTTL(),
		AvailabilityConcurrency: cfg.Availability.Concurrency,
	})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	a.Dispatcher = dispatcher.New(a.Service, id.New(), cfg.Bulk.Concurrency, logger)
	a.Server = api.NewServer(a.Service, a.Dispatcher, a.Cache, cfg, logger)
	return nil
}

func (a *App) cacheBackend(cfg config.Config, rdb *redis.Client, clk clock.Clock) (cache.Backend, error) {
	switch cfg.Cache.Backend {
	case config.BackendMemory:
		return memory.New(clk), nil
	case config.BackendRedis:
		return rediscache.NewWithClient(rdb, ""), nil
	case config.BackendSQLite:
		store, err := sqlite.New(cfg.Cache.SQLitePath, clk)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func (a *App) limiter(ctx context.Context, cfg config.Config, rdb *redis.Client, clk clock.Clock) orchestrator.Limiter {
	rl := ratelimit.Config{Limit: cfg.RateLimit.Requests, Window: cfg.RateWindow()}
	if cfg.RateLimit.Backend == config.BackendRedis {
		return ratelimit.NewRedis(rdb, rl, ratelimit.WithClock(clk))
	}
	w := ratelimit.NewWindow(rl, clk)
	if cfg.RateLimit.JanitorSeconds > 0 {
		w.StartJanitor(ctx, secondsOr(cfg.RateLimit.JanitorSeconds, 0))
	}
	return w
}

func (a *App) ledger(ctx context.Context, cfg config.Config) (orchestrator.Ledger, error) {
	switch cfg.Ledger.Backend {
	case config.BackendNone, "":
		return ledger.Nop{}, nil
	case config.BackendMemory:
		return ledger.NewMemory(), nil
	case config.BackendPostgres:
		l, err := pgledger.New(ctx, pgledger.Config{DSN: cfg.Ledger.DSN, Table: cfg.Ledger.Table})
		if err != nil {
			return nil, fmt.Errorf("connect ledger: %w", err)
		}
		a.closers = append(a.closers, func() error { l.Close(); return nil })
		return l, nil
	case config.BackendPubSub:
		p, err := pubsubledger.New(ctx, pubsubledger.Config{ProjectID: cfg.Ledger.ProjectID, Topic: cfg.Ledger.Topic})
		if err != nil {
			return nil, fmt.Errorf("connect ledger: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		return p, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}

func newCompleter(cfg config.Config) (provider.Completer, error) {
	switch cfg.Provider.Backend {
	case config.BackendAnthropic:
		c, err := anthropic.New(anthropic.Config{
			APIKey:      cfg.Provider.APIKey,
			Model:       cfg.Provider.Model,
			MaxTokens:   int64(cfg.Provider.MaxTokens),
			Temperature: cfg.Provider.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("build anthropic provider: %w", err)
		}
		return c, nil
	case config.BackendCLI:
		return cli.New(cli.Config{Path: cfg.Provider.CLIPath, Args: cfg.Provider.CLIArgs}), nil
	default:
		return nil, fmt.Errorf("unknown provider backend %q", cfg.Provider.Backend)
	}
}

// Close releases backend connections in reverse order of creation.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("error closing application services", zap.Error(err))
	}
}

// GetLogger returns the application logger.
func (a *App) GetLogger() *zap.Logger {
	return a.Logger
}

// Handler returns the HTTP router.
func (a *App) Handler() http.Handler {
	return a.Server.Handler()
}

// CacheAdmin exposes cache statistics and reset.
func (a *App) CacheAdmin() api.CacheAdmin {
	return a.Cache
}

// Probe sends the fixed connectivity prompt through the configured provider.
func (a *App) Probe(ctx context.Context) (string, error) {
	return a.Service.Probe(ctx)
}
