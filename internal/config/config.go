// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted by the pluggable components.
const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendSQLite    = "sqlite"
	BackendAnthropic = "anthropic"
	BackendCLI       = "cli"
	BackendNone      = "none"
	BackendPostgres  = "postgres"
	BackendPubSub    = "pubsub"
	ExporterStdout   = "stdout"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Cache        CacheConfig        `mapstructure:"cache"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Provider     ProviderConfig     `mapstructure:"provider"`
	Availability AvailabilityConfig `mapstructure:"availability"`
	Credits      CreditsConfig      `mapstructure:"credits"`
	Bulk         BulkConfig         `mapstructure:"bulk"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CacheConfig selects and tunes the candidate cache backend.
type CacheConfig struct {
	Backend       string `mapstructure:"backend"`
	TTLSeconds    int    `mapstructure:"ttl_seconds"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	RecentEntries int    `mapstructure:"recent_entries"`
}

// RateLimitConfig sets the sliding window.
type RateLimitConfig struct {
	Backend        string `mapstructure:"backend"`
	Requests       int    `mapstructure:"requests"`
	WindowSeconds  int    `mapstructure:"window_seconds"`
	JanitorSeconds int    `mapstructure:"janitor_seconds"`
}

// ProviderConfig selects the generation backend.
type ProviderConfig struct {
	Backend        string   `mapstructure:"backend"`
	APIKey         string   `mapstructure:"api_key"`
	Model          string   `mapstructure:"model"`
	MaxTokens      int      `mapstructure:"max_tokens"`
	Temperature    float64  `mapstructure:"temperature"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	CLIPath        string   `mapstructure:"cli_path"`
	CLIArgs        []string `mapstructure:"cli_args"`
}

// AvailabilityConfig tunes domain lookups.
type AvailabilityConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
	Concurrency    int  `mapstructure:"concurrency"`
	// PacingPerSecond caps WHOIS queries per TLD; zero disables pacing.
	PacingPerSecond float64 `mapstructure:"pacing_per_second"`
	PacingBurst     int     `mapstructure:"pacing_burst"`
}

// TelemetryConfig toggles OpenTelemetry tracing.
type TelemetryConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	ServiceName    string `mapstructure:"service_name"`
	// Exporter is "none" (spans stay in-process for propagation) or "stdout".
	Exporter string `mapstructure:"exporter"`
}

// CreditsConfig is the price list.
type CreditsConfig struct {
	Cache         int `mapstructure:"cache"`
	Fallback      int `mapstructure:"fallback"`
	AI            int `mapstructure:"ai"`
	Generate      int `mapstructure:"generate"`
	BulkPerTarget int `mapstructure:"bulk_per_target"`
}

// BulkConfig bounds fan-out.
type BulkConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// LedgerConfig selects where charges are recorded.
type LedgerConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
	// ProjectID and Topic select the Pub/Sub topic for the pubsub backend.
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BIZQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	_ = v.BindEnv("provider.api_key", "BIZQ_PROVIDER_API_KEY", "ANTHROPIC_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.sqlite_path", "bizq-cache.db")
	v.SetDefault("cache.recent_entries", 10)
	v.SetDefault("rate_limit.backend", BackendMemory)
	v.SetDefault("rate_limit.requests", 50)
	v.SetDefault("rate_limit.window_seconds", 3600)
	v.SetDefault("rate_limit.janitor_seconds", 300)
	v.SetDefault("provider.backend", BackendCLI)
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.model", "claude-sonnet-4-20250514")
	v.SetDefault("provider.max_tokens", 500)
	v.SetDefault("provider.temperature", 0.8)
	v.SetDefault("provider.timeout_seconds", 30)
	v.SetDefault("provider.cli_path", "claude")
	v.SetDefault("provider.cli_args", []string{"--print", "--output-format", "text"})
	v.SetDefault("availability.enabled", true)
	v.SetDefault("availability.timeout_seconds", 5)
	v.SetDefault("availability.concurrency", 4)
	v.SetDefault("availability.pacing_per_second", 2.0)
	v.SetDefault("availability.pacing_burst", 4)
	v.SetDefault("credits.cache", 1)
	v.SetDefault("credits.fallback", 5)
	v.SetDefault("credits.ai", 10)
	v.SetDefault("credits.generate", 15)
	v.SetDefault("credits.bulk_per_target", 5)
	v.SetDefault("bulk.concurrency", 4)
	v.SetDefault("ledger.backend", BackendMemory)
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("ledger.table", "credit_charges")
	v.SetDefault("ledger.project_id", "")
	v.SetDefault("ledger.topic", "bizq-charges")
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.service_name", "bizq-orchestrator")
	v.SetDefault("telemetry.exporter", BackendNone)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := oneOf("cache.backend", c.Cache.Backend, BackendMemory, BackendRedis, BackendSQLite); err != nil {
		return err
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be > 0")
	}
	if c.Cache.Backend == BackendRedis && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache.redis_addr must be set for the redis backend")
	}
	if c.Cache.Backend == BackendSQLite && c.Cache.SQLitePath == "" {
		return fmt.Errorf("cache.sqlite_path must be set for the sqlite backend")
	}
	if err := oneOf("rate_limit.backend", c.RateLimit.Backend, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if c.RateLimit.Backend == BackendRedis && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache.redis_addr must be set for the redis rate limiter")
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("rate_limit.requests must be > 0")
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate_limit.window_seconds must be > 0")
	}
	if err := oneOf("provider.backend", c.Provider.Backend, BackendAnthropic, BackendCLI); err != nil {
		return err
	}
	if c.Provider.Backend == BackendAnthropic && c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key must be set for the anthropic backend")
	}
	if c.Provider.Backend == BackendCLI && c.Provider.CLIPath == "" {
		return fmt.Errorf("provider.cli_path must be set for the cli backend")
	}
	if c.Provider.TimeoutSeconds <= 0 {
		return fmt.Errorf("provider.timeout_seconds must be > 0")
	}
	if c.Availability.Enabled && c.Availability.Concurrency <= 0 {
		return fmt.Errorf("availability.concurrency must be > 0 when availability is enabled")
	}
	cr := c.Credits
	if cr.Cache < 0 || !(cr.Cache < cr.Fallback && cr.Fallback < cr.AI) {
		return fmt.Errorf("credits must satisfy 0 <= cache < fallback < ai (got %d, %d, %d)",
			cr.Cache, cr.Fallback, cr.AI)
	}
	if cr.Generate < 0 || cr.BulkPerTarget < 0 {
		return fmt.Errorf("credits.generate and credits.bulk_per_target must be >= 0")
	}
	if c.Telemetry.TracingEnabled {
		if err := oneOf("telemetry.exporter", c.Telemetry.Exporter, BackendNone, ExporterStdout); err != nil {
			return err
		}
	}
	if c.Bulk.Concurrency <= 0 {
		return fmt.Errorf("bulk.concurrency must be > 0")
	}
	if err := oneOf("ledger.backend", c.Ledger.Backend,
		BackendNone, BackendMemory, BackendPostgres, BackendPubSub); err != nil {
		return err
	}
	if c.Ledger.Backend == BackendPostgres && c.Ledger.DSN == "" {
		return fmt.Errorf("ledger.dsn must be set for the postgres ledger")
	}
	if c.Ledger.Backend == BackendPubSub && (c.Ledger.ProjectID == "" || c.Ledger.Topic == "") {
		return fmt.Errorf("ledger.project_id and ledger.topic must be set for the pubsub ledger")
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s (got %q)", key, strings.Join(allowed, ", "), value)
}

// CacheTTL returns the entry lifetime.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// RateWindow returns the sliding window length.
func (c Config) RateWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

// ProviderTimeout returns the hard limit on one provider call.
func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}

// RequestTimeout returns the per-request HTTP deadline.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
