package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/monitoring"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/ratelimit"
)

func setupRouter(a *app) *gin.Engine {
	r := gin.New()

	r.Use(errors.RecoveryHandler())
	r.Use(monitoring.TracingMiddleware())
	r.Use(monitoring.MonitoringMiddleware(a.metrics, a.logger))
	r.Use(errors.ErrorHandler())

	r.Use(cors.New(corsConfig(a.cfg.AllowedOrigins)))

	r.Use(a.security.SecurityHeaders)
	r.Use(a.security.RequestTimeout)
	r.Use(a.security.LimitBody)
	r.Use(a.compression.Handler())

	r.GET("/health", a.handleHealth)

	api := r.Group("/api/v1")
	api.Use(a.limiter.IPRateLimitMiddleware())
	{
		api.POST("/analyze", a.security.ValidateContentType, a.security.BindAnalyzeRequest, a.handleAnalyze)
		api.GET("/subjects/:id/data", a.handleSubjectData)
		api.POST("/refresh",
			a.limiter.EndpointRateLimitMiddleware("refresh", ratelimit.Rate{Limit: a.cfg.RateLimit.RefreshPerMinute, Period: time.Minute}),
			a.handleRefresh)
		api.GET("/cache/stats", a.handleCacheStats)
		api.GET("/history/top", a.handleTopRisk)
		api.GET("/history/:id", a.handleSubjectHistory)
		api.GET("/metrics", a.handleMetrics)
		api.GET("/scheduler", a.handleScheduler)
		api.GET("/ratelimit/status", a.limiter.HandleRateLimitStatus())
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Accept-Encoding", "traceparent"},
		ExposeHeaders: []string{"X-Trace-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
