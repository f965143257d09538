package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/ZanzyTHEbar/trust-signal-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/monitoring"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/resilience"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/types"
)

// APIName identifies the reputation API in logs, metrics and errors
const APIName = "reputation_api"

// Endpoint groups tracked by the degradation manager
const (
	EndpointStats              = "stats"
	EndpointEnhancedStats      = "stats_enhanced"
	EndpointActivities         = "activities"
	EndpointReviewerReputation = "reviewer_reputation"
)

// ReputationAPIConfig configures the upstream reputation API client
type ReputationAPIConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxConnections int
}

// ReputationAPI fetches activity counts and reviewer reputation from the
// upstream reputation service.
type ReputationAPI struct {
	baseURL string
	apiKey  string
	pool    *resilience.ConnectionPool
	breaker *resilience.CircuitBreaker
	health  *resilience.DegradationManager
	logger  *monitoring.Logger
	metrics *monitoring.Metrics
}

type activitiesResponse struct {
	Values []types.Activity `json:"values"`
}

// NewReputationAPI creates a client with a pooled transport and circuit breaker
func NewReputationAPI(cfg ReputationAPIConfig, logger *monitoring.Logger, metrics *monitoring.Metrics) *ReputationAPI {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 10
	}
	if logger == nil {
		logger = monitoring.NopLogger()
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
		OnStateChange: func(from, to resilience.CircuitBreakerState) {
			logger.SystemLogger("circuit_breaker", fmt.Sprintf("%s: %s -> %s", APIName, from, to))
			if metrics == nil {
				return
			}
			switch to {
			case resilience.StateOpen:
				metrics.IncrementCircuitBreakerOpen()
			case resilience.StateClosed:
				metrics.IncrementCircuitBreakerClose()
			}
		},
	})

	health := resilience.NewDegradationManager(resilience.DefaultDegradationConfig())
	for _, endpoint := range []string{EndpointStats, EndpointEnhancedStats, EndpointActivities, EndpointReviewerReputation} {
		health.RegisterService(endpoint)
	}

	return &ReputationAPI{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		pool:    resilience.NewConnectionPool(cfg.MaxConnections, cfg.MaxConnections, 90*time.Second, cfg.Timeout, breaker),
		breaker: breaker,
		health:  health,
		logger:  logger,
		metrics: metrics,
	}
}

// WithRetry overrides the retry policy, mainly for tests
func (a *ReputationAPI) WithRetry(config resilience.RetryConfig) *ReputationAPI {
	a.pool.WithRetry(config)
	return a
}

// Fetch reads basic stats, enhanced stats and recent activities for a subject
func (a *ReputationAPI) Fetch(ctx context.Context, key string) (*types.ActivityPayload, error) {
	basic, err := a.FetchBasicStats(ctx, key)
	if err != nil {
		return nil, err
	}

	payload := &types.ActivityPayload{BasicStats: *basic}

	path := "/api/v2/users/" + url.PathEscape(key)
	if err := a.getRequired(ctx, EndpointEnhancedStats, key, path+"/stats/enhanced", &payload.EnhancedStats); err != nil {
		return nil, err
	}

	var activities activitiesResponse
	if err := a.getRequired(ctx, EndpointActivities, key, path+"/activities", &activities); err != nil {
		return nil, err
	}
	payload.Activities = activities.Values

	return payload, nil
}

// FetchBasicStats reads only the lightweight stats payload
func (a *ReputationAPI) FetchBasicStats(ctx context.Context, key string) (*types.BasicStats, error) {
	var stats types.BasicStats
	if err := a.getRequired(ctx, EndpointStats, key, "/api/v2/users/"+url.PathEscape(key)+"/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// FetchReviewerReputation summarizes who reviewed the subject. A subject the
// upstream has no reviewer data for yields nil, nil.
func (a *ReputationAPI) FetchReviewerReputation(ctx context.Context, id int64) (*types.ReviewerReputation, error) {
	var rep types.ReviewerReputation
	path := fmt.Sprintf("/api/v2/users/%d/reviewers/reputation", id)

	found, err := a.getJSON(ctx, EndpointReviewerReputation, path, &rep)
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailableError(APIName, fmt.Sprintf("profileId:%d", id), err)
	}
	if !found {
		return nil, nil
	}
	return &rep, nil
}

// getRequired is getJSON where a 404 is a failure
func (a *ReputationAPI) getRequired(ctx context.Context, endpoint, key, path string, out interface{}) error {
	found, err := a.getJSON(ctx, endpoint, path, out)
	if err == nil && !found {
		err = apperrors.NewNotFoundError("subject", key)
	}
	if err != nil {
		return apperrors.NewUpstreamUnavailableError(APIName, key, err)
	}
	return nil
}

func (a *ReputationAPI) getJSON(ctx context.Context, endpoint, path string, out interface{}) (bool, error) {
	headers := map[string]string{
		"Accept":     "application/json",
		"User-Agent": "trust-signal-analyzer/1.0",
	}
	if a.apiKey != "" {
		headers["X-API-Key"] = a.apiKey
	}

	start := time.Now()
	resp, err := a.pool.DoRequest(ctx, http.MethodGet, a.baseURL+path, headers)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}

	err = a.decode(resp, err, out)
	found := err == nil && statusCode != http.StatusNotFound
	success := err == nil

	a.health.RecordRequest(endpoint, err)
	a.logger.ExternalAPILogger(APIName, http.MethodGet, endpoint, statusCode, time.Since(start), success)
	if a.metrics != nil {
		a.metrics.RecordExternalAPIRequest(APIName+":"+endpoint, success)
	}

	return found, err
}

func (a *ReputationAPI) decode(resp *http.Response, err error, out interface{}) error {
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s error: status %d, body: %s", APIName, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", APIName, err)
	}
	return nil
}

// Health returns the windowed error rate of each endpoint group
func (a *ReputationAPI) Health() map[string]resilience.ServiceHealth {
	return a.health.GetAllServiceHealth()
}

// Available reports false while the breaker is open or the stats endpoint is
// in emergency state
func (a *ReputationAPI) Available() bool {
	return a.breaker.State() != resilience.StateOpen && a.health.IsServiceAvailable(EndpointStats)
}

// GetPoolStats returns connection pool statistics
func (a *ReputationAPI) GetPoolStats() map[string]interface{} {
	return a.pool.GetStats()
}

// Close closes the connection pool
func (a *ReputationAPI) Close() error {
	return a.pool.Close()
}
