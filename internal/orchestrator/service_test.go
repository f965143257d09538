package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/analysis"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/cache"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/collector"
	apperrors "github.com/ZanzyTHEbar/trust-signal-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/monitoring"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSource struct {
	mu      sync.Mutex
	payload *types.ActivityPayload
	err     error
	fetches int
}

func (s *fakeSource) Fetch(ctx context.Context, key string) (*types.ActivityPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	p := *s.payload
	return &p, nil
}

func (s *fakeSource) FetchBasicStats(ctx context.Context, key string) (*types.BasicStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	stats := s.payload.BasicStats
	return &stats, nil
}

type fakeReputation struct {
	rep *types.ReviewerReputation
	err error
}

func (r *fakeReputation) FetchReviewerReputation(ctx context.Context, id int64) (*types.ReviewerReputation, error) {
	return r.rep, r.err
}

type fakeHistory struct {
	records []*analysis.AnalysisRecord
}

func (h *fakeHistory) Record(ctx context.Context, record *analysis.AnalysisRecord) error {
	h.records = append(h.records, record)
	return nil
}

type fixture struct {
	clock      *fakeClock
	source     *fakeSource
	reputation *fakeReputation
	history    *fakeHistory
	metrics    *monitoring.Metrics
	service    *Service
}

func newFixture() *fixture {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	source := &fakeSource{payload: &types.ActivityPayload{
		BasicStats: types.BasicStats{
			ReviewsReceived:   30,
			ReceivedBreakdown: types.ReviewBreakdown{Positive: 24, Negative: 3, Neutral: 3},
			VouchesGiven:      5,
			VouchesReceived:   8,
		},
		EnhancedStats: types.EnhancedStats{ReviewsGiven: 20, ReviewsReceived: 30},
	}}
	reputation := &fakeReputation{}
	history := &fakeHistory{}
	metrics := monitoring.NewMetrics()

	reconciled := cache.NewStore(cache.NamespaceReconciled, 7*24*time.Hour, cache.WithClock(clock.Now))
	records := cache.NewStore(cache.NamespaceAnalysis, 24*time.Hour, cache.WithClock(clock.Now))
	c := collector.New(source, reconciled, collector.Config{}, collector.WithClock(clock.Now))

	ids := 0
	service := New(c, reputation, reconciled, records,
		WithClock(clock.Now),
		WithIDGenerator(func() string { ids++; return fmt.Sprintf("rec-%d", ids) }),
		WithHistory(history),
		WithMetrics(metrics),
	)

	return &fixture{clock: clock, source: source, reputation: reputation, history: history, metrics: metrics, service: service}
}

func steadySubject() types.SubjectIdentity {
	return types.SubjectIdentity{ID: 101, Username: "steady", CredibilityScore: 300, XPTotal: 20000}
}

func TestAnalyze_FullRecord(t *testing.T) {
	f := newFixture()
	subject := steadySubject()

	record, err := f.service.Analyze(context.Background(), subject, AnalyzeOptions{})
	require.NoError(t, err)

	assert.Equal(t, "rec-1", record.ID)
	assert.Equal(t, f.clock.Now(), record.Timestamp)
	assert.Equal(t, subject, record.Subject)
	assert.Equal(t, types.SourceAPI, record.Source)
	assert.False(t, record.Degraded)
	require.NotNil(t, record.Metrics.Basic)
	assert.Equal(t, 20, record.Metrics.Basic.ReviewsGiven)
	assert.Equal(t, analysis.RiskLow, record.RiskAssessment.Level)
	assert.NotEmpty(t, record.Recommendations)
	assert.Equal(t, types.CacheInfo{
		LastUpdated: f.clock.Now(),
		NextRefresh: f.clock.Now().Add(collector.DefaultFreshnessWindow),
	}, record.CacheInfo)

	require.Len(t, f.history.records, 1)
	assert.Equal(t, record, f.history.records[0])

	cached, ok := f.service.CachedRecord(context.Background(), subject)
	require.True(t, ok)
	assert.Equal(t, record, cached)

	stats := f.service.CacheStats()
	assert.Equal(t, map[string]int{cache.NamespaceReconciled: 1, cache.NamespaceAnalysis: 1}, stats.Sizes)
	assert.Equal(t, int64(1), f.metrics.GetStats()["analyses"])
}

func TestAnalyze_UseCacheReturnsIdenticalRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	subject := steadySubject()

	first, err := f.service.Analyze(ctx, subject, AnalyzeOptions{UseCache: true})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	f.source.payload.EnhancedStats.ReviewsGiven = 500

	second, err := f.service.Analyze(ctx, subject, AnalyzeOptions{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.source.fetches)
	assert.Len(t, f.history.records, 1)

	third, err := f.service.Analyze(ctx, subject, AnalyzeOptions{UseCache: false})
	require.NoError(t, err)
	assert.Equal(t, "rec-2", third.ID)
	assert.Equal(t, 1, f.source.fetches, "reconciled data is still fresh")
	assert.Equal(t, int64(time.Hour/time.Millisecond), third.CacheInfo.AgeMs)
	assert.Equal(t, first.RiskAssessment, third.RiskAssessment)
}

func TestAnalyze_DegradesWhenUpstreamUnavailable(t *testing.T) {
	f := newFixture()
	f.source.err = stderrors.New("connection refused")
	subject := steadySubject()

	record, err := f.service.Analyze(context.Background(), subject, AnalyzeOptions{UseCache: true})
	require.NoError(t, err)

	assert.True(t, record.Degraded)
	assert.Equal(t, types.SourceSubject, record.Source)
	assert.Equal(t, analysis.RiskUnknown, record.RiskAssessment.Level)
	assert.Equal(t, 50, record.RiskAssessment.Score)
	require.Len(t, record.RiskAssessment.Factors, 1)
	assert.Equal(t, DegradedReason, record.RiskAssessment.Factors[0].Message)
	require.NotNil(t, record.Metrics.Basic)
	assert.Equal(t, 0, record.Metrics.Basic.ReviewsGiven)
	assert.Equal(t, 300, record.Metrics.Basic.Credibility)
	assert.NotEmpty(t, record.Recommendations)

	_, cached := f.service.CachedRecord(context.Background(), subject)
	assert.False(t, cached, "degraded records are not persisted")
	assert.Empty(t, f.history.records)
	assert.Equal(t, int64(1), f.metrics.GetStats()["degraded_analyses"])
}

func TestAnalyze_UnresolvableSubject(t *testing.T) {
	f := newFixture()

	_, err := f.service.Analyze(context.Background(), types.SubjectIdentity{CredibilityScore: 10}, AnalyzeOptions{})

	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryCollectionFailed))
	assert.Equal(t, 0, f.source.fetches)
}

func TestAnalyze_ReviewerReputation(t *testing.T) {
	tests := []struct {
		name          string
		reputation    fakeReputation
		expectedRules []string
	}{
		{
			name:          "low reputation reviewers raise the score",
			reputation:    fakeReputation{rep: &types.ReviewerReputation{ReviewerCount: 10, AverageReviewerCredibility: 50, LowRepPercentage: 60}},
			expectedRules: []string{"low_reputation_reviewers", "weak_reviewer_base"},
		},
		{
			name:          "failures are tolerated",
			reputation:    fakeReputation{err: stderrors.New("reputation service down")},
			expectedRules: []string{"established_profile"},
		},
		{
			name:          "no reviewer data",
			reputation:    fakeReputation{},
			expectedRules: []string{"established_profile"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			*f.reputation = tt.reputation

			record, err := f.service.Analyze(context.Background(), steadySubject(), AnalyzeOptions{})
			require.NoError(t, err)

			rules := make([]string, 0, len(record.RiskAssessment.Factors))
			for _, factor := range record.RiskAssessment.Factors {
				rules = append(rules, factor.Rule)
			}
			assert.Equal(t, tt.expectedRules, rules)
		})
	}
}

func TestService_RefreshAndClear(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	subject := steadySubject()

	_, err := f.service.Analyze(ctx, subject, AnalyzeOptions{})
	require.NoError(t, err)

	f.clock.Advance(collector.DefaultFreshnessWindow)
	report, err := f.service.RefreshStaleData(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Refreshed)

	snapshot, ok := f.service.Snapshot(ctx, subject.CacheID())
	require.True(t, ok)
	assert.Equal(t, f.clock.Now(), snapshot.LastUpdated)

	require.NoError(t, f.service.ClearCache(ctx))
	assert.Equal(t, map[string]int{cache.NamespaceReconciled: 0, cache.NamespaceAnalysis: 0}, f.service.CacheStats().Sizes)
}
