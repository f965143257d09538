package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/errors"
)

// Cache backends for the durable tier behind the in-memory stores
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// CronParser accepts the six-field (seconds first) expressions the scheduler runs
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Config is the full server configuration. Values are layered: defaults,
// then the optional YAML file, then environment variables.
type Config struct {
	Port           string   `yaml:"port" env:"PORT"`
	DataDir        string   `yaml:"data_dir" env:"DATA_DIR"`
	LogLevel       string   `yaml:"log_level" env:"LOG_LEVEL"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	EnableHSTS     bool     `yaml:"enable_hsts" env:"ENABLE_HSTS"`

	Upstream  UpstreamConfig  `yaml:"upstream" envPrefix:"UPSTREAM_"`
	Cache     CacheConfig     `yaml:"cache" envPrefix:"CACHE_"`
	Refresh   RefreshConfig   `yaml:"refresh" envPrefix:"REFRESH_"`
	History   HistoryConfig   `yaml:"history" envPrefix:"HISTORY_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
}

// UpstreamConfig points at the reputation API
type UpstreamConfig struct {
	BaseURL        string        `yaml:"base_url" env:"BASE_URL"`
	APIKey         string        `yaml:"api_key" env:"API_KEY"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxConnections int           `yaml:"max_connections" env:"MAX_CONNECTIONS"`
}

// CacheConfig sizes the cache stores
type CacheConfig struct {
	Backend       string        `yaml:"backend" env:"BACKEND"`
	ReconciledTTL time.Duration `yaml:"reconciled_ttl" env:"RECONCILED_TTL"`
	AnalysisTTL   time.Duration `yaml:"analysis_ttl" env:"ANALYSIS_TTL"`
	HistoryTTL    time.Duration `yaml:"history_ttl" env:"HISTORY_TTL"`
}

// RefreshConfig controls freshness and the scheduled batch refresh
type RefreshConfig struct {
	FreshnessWindow time.Duration `yaml:"freshness_window" env:"FRESHNESS_WINDOW"`
	Spacing         time.Duration `yaml:"spacing" env:"SPACING"`
	Cron            string        `yaml:"cron" env:"CRON"`
	Enabled         bool          `yaml:"enabled" env:"ENABLED"`
}

// HistoryConfig controls retention of the analysis history. A zero
// Retention keeps rows forever.
type HistoryConfig struct {
	Retention   time.Duration `yaml:"retention" env:"RETENTION"`
	CleanupCron string        `yaml:"cleanup_cron" env:"CLEANUP_CRON"`
}

// RedisConfig is optional; an empty Addr disables Redis
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// RateLimitConfig limits API requests per client IP
type RateLimitConfig struct {
	PerMinute        int `yaml:"per_minute" env:"PER_MINUTE"`
	RefreshPerMinute int `yaml:"refresh_per_minute" env:"REFRESH_PER_MINUTE"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Port:           "8080",
		DataDir:        "./data",
		LogLevel:       "info",
		AllowedOrigins: []string{"http://localhost:3000"},
		Upstream: UpstreamConfig{
			BaseURL:        "https://api.ethos.network",
			Timeout:        10 * time.Second,
			MaxConnections: 20,
		},
		Cache: CacheConfig{
			Backend:       BackendSQLite,
			ReconciledTTL: 7 * 24 * time.Hour,
			AnalysisTTL:   5 * time.Hour,
			HistoryTTL:    5 * time.Minute,
		},
		Refresh: RefreshConfig{
			FreshnessWindow: 5 * time.Hour,
			Spacing:         time.Second,
			Cron:            "0 0 * * * *",
			Enabled:         true,
		},
		History: HistoryConfig{
			Retention:   365 * 24 * time.Hour,
			CleanupCron: "0 30 3 * * *",
		},
		RateLimit: RateLimitConfig{
			PerMinute:        60,
			RefreshPerMinute: 2,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.NewConfigurationError(fmt.Sprintf("read config file %s", path), err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.NewConfigurationError(fmt.Sprintf("parse config file %s", path), err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.NewConfigurationError("parse environment", err)
	}

	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting
func (c Config) Validate() error {
	switch {
	case c.Port == "":
		return errors.NewConfigurationError("port must be set", nil)
	case c.Upstream.BaseURL == "":
		return errors.NewConfigurationError("upstream.base_url must be set", nil)
	case c.Upstream.Timeout <= 0:
		return errors.NewConfigurationError("upstream.timeout must be positive", nil)
	case c.Upstream.MaxConnections <= 0:
		return errors.NewConfigurationError("upstream.max_connections must be positive", nil)
	case c.Refresh.FreshnessWindow <= 0:
		return errors.NewConfigurationError("refresh.freshness_window must be positive", nil)
	case c.Refresh.Spacing < 0:
		return errors.NewConfigurationError("refresh.spacing must not be negative", nil)
	case c.Cache.ReconciledTTL < c.Refresh.FreshnessWindow:
		return errors.NewConfigurationError("cache.reconciled_ttl must be at least refresh.freshness_window", nil)
	case c.Cache.AnalysisTTL <= 0 || c.Cache.HistoryTTL <= 0:
		return errors.NewConfigurationError("cache ttls must be positive", nil)
	case c.RateLimit.PerMinute <= 0:
		return errors.NewConfigurationError("rate_limit.per_minute must be positive", nil)
	}

	switch c.Cache.Backend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.NewConfigurationError("cache.backend redis requires redis.addr", nil)
		}
	default:
		return errors.NewConfigurationError(fmt.Sprintf("unknown cache.backend %q", c.Cache.Backend), nil)
	}

	if c.Refresh.Enabled {
		if _, err := CronParser.Parse(c.Refresh.Cron); err != nil {
			return errors.NewConfigurationError(fmt.Sprintf("invalid refresh.cron %q", c.Refresh.Cron), err)
		}
	}

	if c.History.Retention < 0 {
		return errors.NewConfigurationError("history.retention must not be negative", nil)
	}
	if c.History.Retention > 0 {
		if _, err := CronParser.Parse(c.History.CleanupCron); err != nil {
			return errors.NewConfigurationError(fmt.Sprintf("invalid history.cleanup_cron %q", c.History.CleanupCron), err)
		}
	}

	return nil
}
