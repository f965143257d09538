// Package collector owns the reconciled per-subject activity snapshots: it
// decides when upstream data is fresh enough to reuse, reconciles the raw
// counts against the review estimator, and refreshes stale snapshots in the
// background.
package collector

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/analysis"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/cache"
	apperrors "github.com/ZanzyTHEbar/trust-signal-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/monitoring"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/types"
)

// Defaults for Config zero values
const (
	DefaultFreshnessWindow = 5 * time.Hour
	DefaultRefreshSpacing  = time.Second

	// EstimationScoreThreshold is the credibility above which a subject with
	// no reported given-reviews is assumed to have reviewed others
	EstimationScoreThreshold = 50
)

// ActivitySource is the upstream the collector reads counts from
type ActivitySource interface {
	Fetch(ctx context.Context, key string) (*types.ActivityPayload, error)
	FetchBasicStats(ctx context.Context, key string) (*types.BasicStats, error)
}

// Config tunes the collector
type Config struct {
	FreshnessWindow time.Duration
	RefreshSpacing  time.Duration
}

// Collector gathers and persists reconciled user data
type Collector struct {
	source  ActivitySource
	store   *cache.Store
	config  Config
	now     func() time.Time
	logger  *monitoring.Logger
	metrics *monitoring.Metrics
	tracer  trace.Tracer
}

// Option configures a Collector
type Option func(*Collector)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// WithLogger sets the collector logger
func WithLogger(logger *monitoring.Logger) Option {
	return func(c *Collector) { c.logger = logger }
}

// WithMetrics reports estimations and refresh runs
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(c *Collector) { c.metrics = metrics }
}

// New creates a collector persisting into store, which should be the
// reconciled-user-data namespace
func New(source ActivitySource, store *cache.Store, config Config, opts ...Option) *Collector {
	if config.FreshnessWindow <= 0 {
		config.FreshnessWindow = DefaultFreshnessWindow
	}
	if config.RefreshSpacing <= 0 {
		config.RefreshSpacing = DefaultRefreshSpacing
	}

	c := &Collector{
		source: source,
		store:  store,
		config: config,
		now:    time.Now,
		logger: monitoring.NopLogger(),
		tracer: monitoring.Tracer("collector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FreshnessWindow returns how long a snapshot is reused without I/O
func (c *Collector) FreshnessWindow() time.Duration {
	return c.config.FreshnessWindow
}

// CollectUserData returns the reconciled snapshot for subject, fetching from
// upstream only when the persisted one is missing or older than the
// freshness window. Upstream failures are returned as UpstreamUnavailable and
// are not retried here.
func (c *Collector) CollectUserData(ctx context.Context, subject types.SubjectIdentity) (data *types.ReconciledUserData, err error) {
	if !subject.Resolvable() {
		return nil, apperrors.NewCollectionFailedError("subject has neither an id nor a username", nil)
	}

	key := subject.Key()
	ctx, span := c.tracer.Start(ctx, "collector.CollectUserData",
		trace.WithAttributes(attribute.String("subject.key", key)))
	defer func() { monitoring.EndSpan(span, err) }()

	if snapshot, ok := c.Snapshot(ctx, subject.CacheID()); ok && c.fresh(snapshot) {
		span.SetAttributes(attribute.Bool("collector.fresh_hit", true))
		return snapshot, nil
	}

	payload, err := c.source.Fetch(ctx, key)
	if err != nil {
		if !apperrors.IsCategory(err, apperrors.CategoryUpstreamUnavailable) {
			err = apperrors.NewUpstreamUnavailableError("activity source", key, err)
		}
		return nil, err
	}

	now := c.now()
	data = &types.ReconciledUserData{
		Subject:     subject,
		Counts:      c.reconcile(payload, subject),
		Activities:  payload.Activities,
		LastUpdated: now,
		NextRefresh: now.Add(c.config.FreshnessWindow),
	}
	span.SetAttributes(
		attribute.String("collector.source", string(data.Counts.Source)),
		attribute.Int("collector.confidence", data.Counts.Confidence),
	)

	if err := c.store.SetJSON(ctx, subject.CacheID(), data); err != nil {
		c.logger.Warn("Failed to persist reconciled user data", "subject", key, "error", err)
	}

	return data, nil
}

// Snapshot returns the persisted snapshot for a cache id regardless of its
// freshness. A corrupt entry is dropped and reported as missing.
func (c *Collector) Snapshot(ctx context.Context, id string) (*types.ReconciledUserData, bool) {
	var snapshot types.ReconciledUserData
	found, err := c.store.GetJSON(ctx, id, &snapshot)
	if err != nil {
		c.logger.Warn("Discarded corrupt reconciled user data", "id", id, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	return &snapshot, true
}

func (c *Collector) fresh(snapshot *types.ReconciledUserData) bool {
	return c.now().Sub(snapshot.LastUpdated) < c.config.FreshnessWindow
}

// reconcile picks the provenance of the given-review count. Received and
// vouch counts always come from the basic stats.
func (c *Collector) reconcile(payload *types.ActivityPayload, subject types.SubjectIdentity) types.ReconciledCounts {
	basic := payload.BasicStats
	counts := types.ReconciledCounts{
		RawActivityCounts: types.RawActivityCounts{
			ReviewsGiven:      payload.EnhancedStats.ReviewsGiven,
			ReviewsReceived:   basic.ReviewsReceived,
			ReceivedBreakdown: basic.ReceivedBreakdown,
			VouchesGiven:      basic.VouchesGiven,
			VouchesReceived:   basic.VouchesReceived,
		},
		Confidence: 100,
	}

	switch {
	case counts.ReviewsGiven > 0:
		counts.Source = types.SourceAPI

	case subject.CredibilityScore > EstimationScoreThreshold || basic.ReviewsReceived > 0:
		est := analysis.EstimateReviewsGiven(subject.CredibilityScore, basic.ReviewsReceived, basic.VouchesGiven, basic.VouchesReceived)
		counts.ReviewsGiven = est.TotalGiven
		counts.GivenBreakdown = types.ReviewBreakdown{Positive: est.Positive, Negative: est.Negative, Neutral: est.Neutral}
		counts.Source = types.SourceEstimate
		counts.Confidence = est.Confidence
		counts.MethodsUsed = est.MethodsUsed
		if c.metrics != nil {
			c.metrics.IncrementEstimation()
		}

	default:
		counts.Source = types.SourceAPIBasic
	}

	return counts
}
