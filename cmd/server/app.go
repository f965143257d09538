package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/adapters"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/cache"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/collector"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/config"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/database"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/history"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/middleware"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/monitoring"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/orchestrator"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/ratelimit"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/scheduler"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/security"
)

// app holds every long-lived component the HTTP surface uses
type app struct {
	cfg     config.Config
	logger  *monitoring.Logger
	metrics *monitoring.Metrics

	db           *database.DB
	redis        *ratelimit.RedisClient
	reputation   *adapters.ReputationAPI
	orchestrator *orchestrator.Service
	history      *history.Service
	limiter      *ratelimit.RateLimiter
	scheduler    *scheduler.Scheduler
	security     *security.Middleware
	compression  *middleware.CompressionMiddleware
	cacheBackend string
	startedAt    time.Time
}

func newApp(cfg config.Config, logger *monitoring.Logger, metrics *monitoring.Metrics) (*app, error) {
	db, err := database.NewDB(cfg.DataDir)
	if err != nil {
		return nil, errors.WrapError(err, "failed to initialize database")
	}

	redisClient, err := ratelimit.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		// Redis is optional; the client is disabled and callers fall back
		slog.Warn("Continuing without Redis", "error", err)
	}

	a := &app{
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		db:          db,
		redis:       redisClient,
		security:    security.NewMiddleware(securityConfig(cfg)),
		compression: middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
		startedAt:   time.Now(),
	}

	reconciled := a.newStore(cache.NamespaceReconciled, cfg.Cache.ReconciledTTL)
	records := a.newStore(cache.NamespaceAnalysis, cfg.Cache.AnalysisTTL)

	a.reputation = adapters.NewReputationAPI(adapters.ReputationAPIConfig{
		BaseURL:        cfg.Upstream.BaseURL,
		APIKey:         cfg.Upstream.APIKey,
		Timeout:        cfg.Upstream.Timeout,
		MaxConnections: cfg.Upstream.MaxConnections,
	}, logger, metrics)

	coll := collector.New(a.reputation, reconciled, collector.Config{
		FreshnessWindow: cfg.Refresh.FreshnessWindow,
		RefreshSpacing:  cfg.Refresh.Spacing,
	}, collector.WithLogger(logger), collector.WithMetrics(metrics))

	a.history = history.NewService(db, cfg.Cache.HistoryTTL)

	a.orchestrator = orchestrator.New(coll, a.reputation, reconciled, records,
		orchestrator.WithHistory(a.history),
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(metrics),
	)

	a.limiter = ratelimit.NewRateLimiter(redisClient, ratelimit.Config{
		IPLimit:         cfg.RateLimit.PerMinute,
		CleanupInterval: time.Hour,
	}, metrics)

	a.scheduler = scheduler.New(a.orchestrator, scheduler.WithLogger(logger))
	if err := a.scheduleJobs(); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func securityConfig(cfg config.Config) security.Config {
	sc := security.DefaultConfig()
	sc.EnableHSTS = cfg.EnableHSTS
	return sc
}

// newStore builds a cache store over the configured durable tier
func (a *app) newStore(namespace string, ttl time.Duration) *cache.Store {
	opts := []cache.Option{cache.WithLogger(a.logger), cache.WithMetrics(a.metrics)}

	backend := a.cfg.Cache.Backend
	if backend == config.BackendRedis && !a.redis.IsEnabled() {
		slog.Warn("Redis cache backend unavailable, using sqlite", "namespace", namespace)
		backend = config.BackendSQLite
	}

	switch backend {
	case config.BackendRedis:
		opts = append(opts, cache.WithSecondary(cache.NewRedisTier(a.redis.GetClient(), ttl)))
	case config.BackendSQLite:
		opts = append(opts, cache.WithSecondary(database.NewCacheTier(a.db)))
	}
	a.cacheBackend = backend

	return cache.NewStore(namespace, ttl, opts...)
}

func (a *app) scheduleJobs() error {
	if a.cfg.Refresh.Enabled {
		if _, err := a.scheduler.Schedule(a.cfg.Refresh.Cron); err != nil {
			return errors.NewConfigurationError("failed to schedule refresh", err)
		}
	}

	if retention := a.cfg.History.Retention; retention > 0 {
		_, err := a.scheduler.ScheduleTask(a.cfg.History.CleanupCron, "history_cleanup", func(ctx context.Context) error {
			_, err := a.history.PruneOlderThan(ctx, retention)
			return err
		})
		if err != nil {
			return errors.NewConfigurationError("failed to schedule history cleanup", err)
		}
	}

	return nil
}

// Close releases every resource newApp acquired
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.scheduler.Stop(ctx); err != nil {
		slog.Warn("Scheduler did not stop in time", "error", err)
	}
	a.limiter.Close()
	errors.SafeClose(a.reputation, "reputation api")
	errors.SafeClose(a.redis, "redis client")
	errors.SafeClose(a.db, "database")
}
