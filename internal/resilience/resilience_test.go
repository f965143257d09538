package resilience

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/errors"
)

func fastRetry() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	cfg.JitterEnabled = false
	return cfg
}

func TestCircuitBreaker_Transitions(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var transitions []string

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		SuccessThreshold: 1,
		OnStateChange: func(from, to CircuitBreakerState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	cb.now = func() time.Time { return now }

	boom := stderrors.New("boom")
	assert.Equal(t, boom, cb.Call(func() error { return boom }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, boom, cb.Call(func() error { return boom }))
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	var cbErr *CircuitBreakerError
	require.ErrorAs(t, err, &cbErr)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Second})
	cb.now = func() time.Time { return now }

	cb.Call(func() error { return stderrors.New("x") })
	now = now.Add(2 * time.Second)
	cb.Call(func() error { return stderrors.New("y") })

	assert.Equal(t, StateOpen, cb.State())
	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestRetryWithConfig(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		expectedCalls int
	}{
		{"network errors are retried", errors.NewNetworkError("down", nil), 3},
		{"validation errors are not", errors.NewValidationError("bad"), 1},
		{"plain errors are not", stderrors.New("plain"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryWithConfig(context.Background(), fastRetry(), func() error {
				calls++
				return tt.err
			})
			assert.Equal(t, tt.err, err)
			assert.Equal(t, tt.expectedCalls, calls)
		})
	}
}

func TestRetryWithConfig_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithConfig(ctx, fastRetry(), func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateDelay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(cfg, 0))
	assert.Equal(t, 400*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, time.Second, calculateDelay(cfg, 10))

	cfg.JitterEnabled = true
	d := calculateDelay(cfg, 0)
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.Less(t, d, 110*time.Millisecond)
}

func TestConnectionPool_DoRequest(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	pool := NewConnectionPool(4, 4, time.Minute, 5*time.Second, NewCircuitBreaker(CircuitBreakerConfig{})).WithRetry(fastRetry())
	defer pool.Close()

	resp, err := pool.DoRequest(context.Background(), http.MethodGet, server.URL, map[string]string{"X-API-Key": "secret"})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int64(2), pool.GetStats()["requests"])
}

func TestConnectionPool_ServerErrorsOpenBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})
	pool := NewConnectionPool(2, 2, time.Minute, 5*time.Second, cb).WithRetry(fastRetry())

	_, err := pool.DoRequest(context.Background(), http.MethodGet, server.URL, nil)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, StateOpen, cb.State())

	_, err = pool.DoRequest(context.Background(), http.MethodGet, server.URL, nil)
	var cbErr *CircuitBreakerError
	assert.ErrorAs(t, err, &cbErr)
}

func TestConnectionPool_NotFoundPassesThrough(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	pool := NewConnectionPool(2, 2, time.Minute, 5*time.Second, cb).WithRetry(fastRetry())

	resp, err := pool.DoRequest(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, StateClosed, cb.State())
}

func TestDegradationManager(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	dm := NewDegradationManager(DefaultDegradationConfig())
	dm.now = func() time.Time { return now }
	dm.RegisterService("stats")

	for i := 0; i < 4; i++ {
		dm.RecordRequest("stats", stderrors.New("fail"))
	}
	health, ok := dm.GetServiceHealth("stats")
	require.True(t, ok)
	assert.Equal(t, LevelNormal, health.Level, "below the minimum request count")

	dm.RecordRequest("stats", nil)
	health, _ = dm.GetServiceHealth("stats")
	assert.Equal(t, LevelEmergency, health.Level)
	assert.Equal(t, 0.8, health.ErrorRate)
	assert.False(t, dm.IsServiceAvailable("stats"))

	now = now.Add(10 * time.Minute)
	dm.RecordRequest("stats", nil)
	health, _ = dm.GetServiceHealth("stats")
	assert.Equal(t, int64(1), health.TotalRequests)
	assert.Equal(t, LevelNormal, health.Level)
	assert.True(t, dm.IsServiceAvailable("stats"))

	assert.False(t, dm.IsServiceAvailable("unknown"))
	assert.Len(t, dm.GetAllServiceHealth(), 1)
}
