package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/orchestrator"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/security"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/types"
)

const defaultListingLimit = 20

func respondError(c *gin.Context, err error) {
	appErr := errors.ToAppError(err)
	errors.LogError(c, appErr)
	c.JSON(appErr.HTTPStatus, appErr)
}

// subjectFromParam reads a path parameter as a profile id when numeric and as
// a username otherwise
func subjectFromParam(param string) types.SubjectIdentity {
	if id, err := strconv.ParseInt(param, 10, 64); err == nil && id > 0 {
		return types.SubjectIdentity{ID: id}
	}
	return types.SubjectIdentity{Username: security.SanitizeUsername(param)}
}

func limitParam(c *gin.Context) int {
	limit := defaultListingLimit
	if raw := c.Query("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 {
			limit = l
		}
	}
	return limit
}

func (a *app) handleHealth(c *gin.Context) {
	status := "ok"
	if !a.reputation.Available() {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        status,
		"timestamp":     time.Now().Format(time.RFC3339),
		"uptime":        time.Since(a.startedAt).Round(time.Second).String(),
		"upstream":      a.reputation.Health(),
		"cache_backend": a.cacheBackend,
		"redis_enabled": a.redis.IsEnabled(),
	})
}

func (a *app) handleAnalyze(c *gin.Context) {
	req := c.MustGet(security.AnalyzeRequestKey).(types.AnalyzeRequest)

	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}

	record, err := a.orchestrator.Analyze(c.Request.Context(), req.Subject, orchestrator.AnalyzeOptions{UseCache: useCache})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (a *app) handleSubjectData(c *gin.Context) {
	subject := subjectFromParam(c.Param("id"))
	if err := a.security.ValidateSubject(subject); err != nil {
		respondError(c, err)
		return
	}

	data, ok := a.orchestrator.Snapshot(c.Request.Context(), subject.CacheID())
	if !ok {
		respondError(c, errors.NewNotFoundError("subject data", c.Param("id")))
		return
	}

	c.JSON(http.StatusOK, data)
}

func (a *app) handleRefresh(c *gin.Context) {
	report, err := a.orchestrator.RefreshStaleData(c.Request.Context())
	if err != nil && !errors.IsCategory(err, errors.CategoryPartialBatchFailure) {
		respondError(c, err)
		return
	}

	response := gin.H{
		"report":      report,
		"duration_ms": report.Duration.Milliseconds(),
	}
	if err != nil {
		response["partial_failure"] = err.Error()
	}

	c.JSON(http.StatusOK, response)
}

func (a *app) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"analysis": a.orchestrator.CacheStats(),
		"history":  a.history.CacheStats(),
		"backend":  a.cacheBackend,
	})
}

func (a *app) handleTopRisk(c *gin.Context) {
	entries, err := a.history.TopRisk(c.Request.Context(), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

func (a *app) handleSubjectHistory(c *gin.Context) {
	subject := subjectFromParam(c.Param("id"))
	if err := a.security.ValidateSubject(subject); err != nil {
		respondError(c, err)
		return
	}

	entries, err := a.history.ForSubject(c.Request.Context(), subject.Key(), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subject_key": subject.Key(),
		"entries":     entries,
		"count":       len(entries),
	})
}

func (a *app) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":      a.metrics.GetStats(),
		"external_api": a.metrics.GetExternalAPIStats(),
		"pools": gin.H{
			"upstream": a.reputation.GetPoolStats(),
			"database": a.db.GetPoolStats(),
			"redis":    a.redis.GetPoolStats(),
		},
		"compression": a.compression.GetStats(),
		"rate_limit":  a.limiter.GetStats(),
	})
}

func (a *app) handleScheduler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"entries":  a.scheduler.Entries(),
		"last_run": a.scheduler.LastRun(),
	})
}
