package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewLoggerTo_JSONWithTimestamp(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, slog.LevelDebug)

	logger.AnalysisLogger("profileId:42", "high", 75, "estimate", 12*time.Millisecond, false)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Analysis Completed", entry["msg"])
	assert.Equal(t, "profileId:42", entry["subject"])
	assert.Equal(t, "high", entry["risk_level"])
	assert.Contains(t, entry, "timestamp")
	assert.NotContains(t, entry, "time")
}

func TestCacheLogger_ShortIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, slog.LevelDebug)

	assert.NotPanics(t, func() {
		logger.CacheLogger("analysis-record", "get", "7", true, 1)
	})
	assert.Contains(t, buf.String(), `"id":"7"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestMetrics_PipelineCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordAnalysis("high", false)
	m.RecordAnalysis("unknown", true)
	m.RecordAnalysis("high", false)
	m.IncrementEstimation()
	m.RecordRefresh(3, 1)
	m.RecordExternalAPIRequest("reputation", true)
	m.RecordExternalAPIRequest("reputation", false)

	stats := m.GetStats()
	assert.Equal(t, int64(3), stats["analyses"])
	assert.Equal(t, int64(1), stats["degraded_analyses"])
	assert.Equal(t, map[string]int64{"high": 2, "unknown": 1}, stats["analyses_by_level"])
	assert.Equal(t, int64(1), stats["estimations"])
	assert.Equal(t, int64(3), stats["refreshed"])
	assert.Equal(t, int64(1), stats["refresh_failures"])

	api := m.GetExternalAPIStats()["reputation"].(map[string]interface{})
	assert.Equal(t, int64(2), api["requests"])
	assert.Equal(t, 50.0, api["error_rate"])
}

func TestMetrics_Percentiles(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, time.Duration(0), m.GetPercentileResponseTime(50))

	for i := 1; i <= 100; i++ {
		m.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}
	assert.Equal(t, 50*time.Millisecond, m.GetPercentileResponseTime(50))
	assert.Equal(t, 100*time.Millisecond, m.GetPercentileResponseTime(100))
}

func TestMonitoringMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := NewMetrics()

	router := gin.New()
	router.Use(TracingMiddleware(), MonitoringMiddleware(metrics, NopLogger()))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/ok", "/missing", "/ok"} {
		w := httptest.NewRecorder()
		req, err := http.NewRequest(http.MethodGet, path, nil)
		require.NoError(t, err)
		router.ServeHTTP(w, req)
	}

	assert.Equal(t, int64(3), metrics.RequestCount)
	assert.Equal(t, int64(1), metrics.ErrorCount)
	assert.Equal(t, map[int]int64{200: 2, 404: 1}, metrics.GetStatusCodeDistribution())
}

func TestEndSpan(t *testing.T) {
	_, span := noop.NewTracerProvider().Tracer("test").Start(context.Background(), "op")
	assert.NotPanics(t, func() { EndSpan(span, errors.New("boom")) })
	assert.Equal(t, "", TraceID(context.Background()))
}
