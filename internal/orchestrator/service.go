// Package orchestrator is the entry point of the analysis pipeline. It
// combines collection, metrics, risk and recommendations into a persisted
// AnalysisRecord.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/analysis"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/cache"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/collector"
	apperrors "github.com/ZanzyTHEbar/trust-signal-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/monitoring"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/types"
)

// DegradedReason is the factor message on records built without upstream data
const DegradedReason = "upstream activity data unavailable"

// ReputationSource supplies the reviewer reputation summary for a subject
type ReputationSource interface {
	FetchReviewerReputation(ctx context.Context, id int64) (*types.ReviewerReputation, error)
}

// HistoryRecorder receives every freshly computed, non-degraded record
type HistoryRecorder interface {
	Record(ctx context.Context, record *analysis.AnalysisRecord) error
}

// AnalyzeOptions controls a single Analyze call
type AnalyzeOptions struct {
	UseCache bool
}

// Service runs analyses
type Service struct {
	collector  *collector.Collector
	reputation ReputationSource
	reconciled *cache.Store
	records    *cache.Store
	history    HistoryRecorder

	now     func() time.Time
	newID   func() string
	logger  *monitoring.Logger
	metrics *monitoring.Metrics
	tracer  trace.Tracer
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the record id generator, for tests
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithHistory appends every fresh analysis to recorder
func WithHistory(recorder HistoryRecorder) Option {
	return func(s *Service) { s.history = recorder }
}

// WithLogger sets the service logger
func WithLogger(logger *monitoring.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics counts analyses by level
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

// New creates an analysis service. reconciled must be the store the
// collector writes to; records holds finished analyses. reputation may be nil.
func New(c *collector.Collector, reputation ReputationSource, reconciled, records *cache.Store, opts ...Option) *Service {
	s := &Service{
		collector:  c,
		reputation: reputation,
		reconciled: reconciled,
		records:    records,
		now:        time.Now,
		newID:      uuid.NewString,
		logger:     monitoring.NopLogger(),
		tracer:     monitoring.Tracer("orchestrator"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze produces the analysis record for subject. With UseCache a
// previously persisted record is returned unchanged. When upstream data is
// unavailable a degraded record with level unknown is returned instead of an
// error; only an unresolvable identity fails.
func (s *Service) Analyze(ctx context.Context, subject types.SubjectIdentity, opts AnalyzeOptions) (record *analysis.AnalysisRecord, err error) {
	if !subject.Resolvable() {
		return nil, apperrors.NewCollectionFailedError("subject has neither an id nor a username", nil)
	}

	start := s.now()
	ctx, span := s.tracer.Start(ctx, "orchestrator.Analyze",
		trace.WithAttributes(
			attribute.String("subject.key", subject.Key()),
			attribute.Bool("analysis.use_cache", opts.UseCache),
		))
	defer func() { monitoring.EndSpan(span, err) }()

	if opts.UseCache {
		if cached, ok := s.CachedRecord(ctx, subject); ok {
			span.SetAttributes(attribute.Bool("analysis.cache_hit", true))
			s.logger.AnalysisLogger(subject.Key(), string(cached.RiskAssessment.Level), cached.RiskAssessment.Score,
				string(cached.Source), s.now().Sub(start), true)
			return cached, nil
		}
	}

	data, err := s.collector.CollectUserData(ctx, subject)
	switch {
	case apperrors.IsCategory(err, apperrors.CategoryUpstreamUnavailable):
		s.logger.Warn("Analysis degraded", "subject", subject.Key(), "error", err)
		record = s.degradedRecord(subject)
	case err != nil:
		return nil, err
	default:
		record = s.fullRecord(ctx, subject, data)
		if err := s.records.SetJSON(ctx, subject.CacheID(), record); err != nil {
			s.logger.Warn("Failed to persist analysis record", "subject", subject.Key(), "error", err)
		}
		if s.history != nil {
			if err := s.history.Record(ctx, record); err != nil {
				s.logger.Warn("Failed to record analysis history", "subject", subject.Key(), "error", err)
			}
		}
	}

	span.SetAttributes(
		attribute.String("analysis.level", string(record.RiskAssessment.Level)),
		attribute.Int("analysis.score", record.RiskAssessment.Score),
		attribute.Bool("analysis.degraded", record.Degraded),
	)
	if s.metrics != nil {
		s.metrics.RecordAnalysis(string(record.RiskAssessment.Level), record.Degraded)
	}
	s.logger.AnalysisLogger(subject.Key(), string(record.RiskAssessment.Level), record.RiskAssessment.Score,
		string(record.Source), s.now().Sub(start), false)

	return record, nil
}

func (s *Service) fullRecord(ctx context.Context, subject types.SubjectIdentity, data *types.ReconciledUserData) *analysis.AnalysisRecord {
	metrics := analysis.CalculateMetrics(data.Counts, subject)
	rep := s.reviewerReputation(ctx, subject)
	assessment := analysis.EvaluateRisk(metrics, rep, subject)

	now := s.now()
	return &analysis.AnalysisRecord{
		ID:              s.newID(),
		Timestamp:       now,
		Subject:         subject,
		Metrics:         metrics,
		RiskAssessment:  assessment,
		Recommendations: analysis.GenerateRecommendations(metrics, assessment, rep),
		Source:          data.Counts.Source,
		CacheInfo: types.CacheInfo{
			LastUpdated: data.LastUpdated,
			NextRefresh: data.NextRefresh,
			AgeMs:       now.Sub(data.LastUpdated).Milliseconds(),
		},
	}
}

func (s *Service) degradedRecord(subject types.SubjectIdentity) *analysis.AnalysisRecord {
	metrics := analysis.CalculateReducedMetrics(subject)
	assessment := analysis.UnknownAssessment(DegradedReason)

	now := s.now()
	return &analysis.AnalysisRecord{
		ID:              s.newID(),
		Timestamp:       now,
		Subject:         subject,
		Metrics:         metrics,
		RiskAssessment:  assessment,
		Recommendations: analysis.GenerateRecommendations(metrics, assessment, nil),
		Source:          types.SourceSubject,
		CacheInfo:       types.CacheInfo{LastUpdated: now, NextRefresh: now},
		Degraded:        true,
	}
}

// reviewerReputation is best effort; failures leave the assessment without it
func (s *Service) reviewerReputation(ctx context.Context, subject types.SubjectIdentity) *types.ReviewerReputation {
	if s.reputation == nil || subject.ID <= 0 {
		return nil
	}

	rep, err := s.reputation.FetchReviewerReputation(ctx, subject.ID)
	if err != nil {
		s.logger.Warn("Reviewer reputation unavailable", "subject", subject.Key(), "error", err)
		return nil
	}
	return rep
}

// CachedRecord returns the persisted analysis record for subject, if any
func (s *Service) CachedRecord(ctx context.Context, subject types.SubjectIdentity) (*analysis.AnalysisRecord, bool) {
	var record analysis.AnalysisRecord
	found, err := s.records.GetJSON(ctx, subject.CacheID(), &record)
	if err != nil {
		s.logger.Warn("Discarded corrupt analysis record", "subject", subject.Key(), "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	return &record, true
}

// CollectUserData exposes the collector for callers that only need counts
func (s *Service) CollectUserData(ctx context.Context, subject types.SubjectIdentity) (*types.ReconciledUserData, error) {
	return s.collector.CollectUserData(ctx, subject)
}

// Snapshot returns the persisted reconciled data for a cache id without any I/O
func (s *Service) Snapshot(ctx context.Context, id string) (*types.ReconciledUserData, bool) {
	return s.collector.Snapshot(ctx, id)
}

// RefreshStaleData runs one batch refresh of stale reconciled data
func (s *Service) RefreshStaleData(ctx context.Context) (collector.RefreshReport, error) {
	return s.collector.RefreshStaleData(ctx)
}

// CacheStats reports both stores together
func (s *Service) CacheStats() cache.Stats {
	return cache.CombinedStats(s.reconciled, s.records)
}

// ClearCache empties both stores
func (s *Service) ClearCache(ctx context.Context) error {
	if err := s.reconciled.Clear(ctx); err != nil {
		return err
	}
	return s.records.Clear(ctx)
}
