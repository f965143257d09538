package resilience

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/errors"
)

// ConnectionPool is a shared HTTP transport for one upstream host, guarded by
// a circuit breaker and bounded to maxActive in-flight requests.
type ConnectionPool struct {
	maxIdle     int
	maxActive   int
	idleTimeout time.Duration

	circuitBreaker *CircuitBreaker
	retry          RetryConfig

	slots    chan struct{}
	inFlight atomic.Int64
	requests atomic.Int64

	client    *http.Client
	transport *http.Transport
}

// NewConnectionPool creates a new connection pool with circuit breaker
func NewConnectionPool(maxIdle, maxActive int, idleTimeout, requestTimeout time.Duration, cb *CircuitBreaker) *ConnectionPool {
	transport := &http.Transport{
		MaxIdleConns:          maxIdle,
		MaxConnsPerHost:       maxActive,
		MaxIdleConnsPerHost:   maxIdle / 2,
		IdleConnTimeout:       idleTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: requestTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &ConnectionPool{
		maxIdle:        maxIdle,
		maxActive:      maxActive,
		idleTimeout:    idleTimeout,
		circuitBreaker: cb,
		retry:          DefaultRetryConfig(),
		slots:          make(chan struct{}, maxActive),
		client:         &http.Client{Transport: transport, Timeout: requestTimeout},
		transport:      transport,
	}
}

// WithRetry replaces the retry policy used by DoRequest
func (cp *ConnectionPool) WithRetry(config RetryConfig) *ConnectionPool {
	cp.retry = config
	return cp
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"in_flight":             cp.inFlight.Load(),
		"requests":              cp.requests.Load(),
		"max_idle":              cp.maxIdle,
		"max_active":            cp.maxActive,
		"idle_timeout_ms":       cp.idleTimeout.Milliseconds(),
		"circuit_breaker_state": cp.circuitBreaker.State().String(),
	}
}

// DoRequest executes a GET-style request with retry inside circuit breaker
// protection. 5xx responses that survive the retries count as breaker
// failures; any other status is handed back to the caller, who owns the body.
func (cp *ConnectionPool) DoRequest(ctx context.Context, method, url string, headers map[string]string) (*http.Response, error) {
	var resp *http.Response

	err := cp.circuitBreaker.Call(func() error {
		var err error
		resp, err = RetryHTTP(ctx, cp.retry, func() (*http.Response, error) {
			return cp.do(ctx, method, url, headers)
		})
		if err != nil {
			var httpErr *HTTPError
			if stderrors.As(err, &httpErr) && resp != nil {
				resp.Body.Close()
				resp = nil
			}
			return err
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (cp *ConnectionPool) do(ctx context.Context, method, url string, headers map[string]string) (*http.Response, error) {
	select {
	case cp.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.NewTimeoutError("waiting for a free upstream connection", ctx.Err())
	}
	cp.inFlight.Add(1)
	defer func() {
		cp.inFlight.Add(-1)
		<-cp.slots
	}()
	cp.requests.Add(1)

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := cp.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		slog.Warn("Request failed", "url", url, "error", err, "duration_ms", duration.Milliseconds())
		if ctx.Err() != nil {
			return nil, errors.NewTimeoutError("upstream request timed out", err)
		}
		return nil, errors.NewNetworkError("upstream request failed", err)
	}

	slog.Debug("Request completed", "url", url, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())
	return resp, nil
}

// Close releases idle connections held by the transport
func (cp *ConnectionPool) Close() error {
	cp.transport.CloseIdleConnections()
	slog.Info("Connection pool closed")
	return nil
}
