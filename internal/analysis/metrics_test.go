package analysis

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/types"
)

func reconciled(given, received, vouchGiven, vouchReceived int, breakdown types.ReviewBreakdown) types.ReconciledCounts {
	return types.ReconciledCounts{
		RawActivityCounts: types.RawActivityCounts{
			ReviewsGiven:      given,
			ReviewsReceived:   received,
			ReceivedBreakdown: breakdown,
			VouchesGiven:      vouchGiven,
			VouchesReceived:   vouchReceived,
		},
		Source:     types.SourceAPI,
		Confidence: 100,
	}
}

func advancedValues(m DerivedMetrics) map[string]float64 {
	a := m.Advanced
	return map[string]float64{
		"r4r_risk_score":           a.R4RRiskScore,
		"artificiality_index":      a.ArtificialityIndex,
		"coordination_score":       a.CoordinationScore,
		"centrality_risk":          a.CentralityRisk,
		"inflation_detector":       a.InflationDetector,
		"consistency_score":        a.ConsistencyScore,
		"organic_growth_indicator": a.OrganicGrowthIndicator,
		"authenticity_score":       a.AuthenticityScore,
		"sustainability_index":     a.SustainabilityIndex,
	}
}

func floatValues(m DerivedMetrics) map[string]float64 {
	out := advancedValues(m)
	out["reciprocity_ratio"] = m.Ratios.ReciprocityRatio
	out["vouch_reciprocity_ratio"] = m.Ratios.VouchReciprocityRatio
	out["vouch_to_review_ratio"] = m.Ratios.VouchToReviewRatio
	out["positive_percentage"] = m.Ratios.PositivePercentage
	out["negative_percentage"] = m.Ratios.NegativePercentage
	out["neutral_percentage"] = m.Ratios.NeutralPercentage
	out["give_receive_balance"] = m.Ratios.GiveReceiveBalance
	out["mutual_engagement_ratio"] = m.Ratios.MutualEngagementRatio
	out["activity_concentration"] = m.Ratios.ActivityConcentration
	out["credibility_per_review"] = m.Quality.CredibilityPerReview
	out["xp_per_review"] = m.Quality.XPPerReview
	out["credibility_to_xp_ratio"] = m.Quality.CredibilityToXPRatio
	out["review_efficiency"] = m.Quality.ReviewEfficiency
	out["engagement_quality"] = m.Quality.EngagementQuality
	out["reputation_velocity"] = m.Quality.ReputationVelocity
	out["network_value"] = m.Quality.NetworkValue
	out["symmetry_index"] = m.Balance.SymmetryIndex
	out["diversity_score"] = m.Balance.DiversityScore
	out["engagement_depth"] = m.Balance.EngagementDepth
	return out
}

func TestRatio(t *testing.T) {
	tests := []struct {
		name     string
		a, b     float64
		expected float64
	}{
		{"positive over zero", 5, 0, RatioSentinel},
		{"large over zero", 1e9, 0, RatioSentinel},
		{"zero over zero", 0, 0, 0},
		{"rounds to three decimals", 24, 127, 0.189},
		{"exact", 10, 10, 1},
		{"finite quotient above the sentinel is kept", 2000, 1, 2000},
		{"large finite quotient", 1e7, 1, 1e7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Ratio(tt.a, tt.b))
		})
	}
}

func TestGuardedDiv_Sentinels(t *testing.T) {
	assert.Equal(t, 999.9, guardedDiv(10, 0, perReviewSentinel, 1))
	assert.Equal(t, 0.0, guardedDiv(0, 0, perReviewSentinel, 1))
	assert.Equal(t, 999.99, guardedDiv(10, 0, perXPSentinel, 2))
	assert.Equal(t, 33.3, guardedDiv(100, 3, perReviewSentinel, 1))
}

func TestCalculateMetrics_AllZero(t *testing.T) {
	m := CalculateMetrics(types.ReconciledCounts{}, types.SubjectIdentity{})

	require.NotNil(t, m.Basic)
	assert.Equal(t, RatioMetrics{}, m.Ratios)
	assert.Equal(t, 0, m.Balance.TotalActivity)
	assert.Equal(t, 0.0, m.Balance.SymmetryIndex)
	assert.Equal(t, 0.0, m.Balance.DiversityScore)
	assert.Equal(t, 0.0, m.Quality.CredibilityPerReview)
	assert.Equal(t, 0.0, m.Quality.CredibilityToXPRatio)
	assert.Equal(t, 0.0, m.Quality.EngagementQuality)
}

func TestCalculateMetrics_EstimatedScenario(t *testing.T) {
	est := EstimateReviewsGiven(1517, 24, 0, 16)
	require.Equal(t, 127, est.TotalGiven)

	counts := reconciled(est.TotalGiven, 24, 0, 16, types.ReviewBreakdown{Positive: 20, Negative: 2, Neutral: 2})
	counts.Source = types.SourceEstimate
	subject := types.SubjectIdentity{ID: 7, CredibilityScore: 1517, XPTotal: 50000}

	m := CalculateMetrics(counts, subject)

	assert.Equal(t, 0.189, m.Ratios.ReciprocityRatio)
	assert.Equal(t, RatioSentinel, m.Ratios.VouchReciprocityRatio)
	assert.Equal(t, 167, m.Balance.TotalActivity)
	assert.Equal(t, 103, m.Balance.ReviewBalance)
	assert.Equal(t, 24, m.Balance.MutualReviewCount)
	assert.Equal(t, 63.2, m.Quality.CredibilityPerReview)
	assert.Equal(t, 30.34, m.Quality.CredibilityToXPRatio)
	assert.Equal(t, 83.3, m.Ratios.PositivePercentage)
}

func TestCalculateMetrics_SymmetryIndex(t *testing.T) {
	tests := []struct {
		name     string
		counts   types.ReconciledCounts
		expected float64
	}{
		{"perfect symmetry", reconciled(10, 10, 5, 5, types.ReviewBreakdown{}), 1},
		{"reviews only one way", reconciled(10, 0, 0, 0, types.ReviewBreakdown{}), 0},
		{"weighted by activity share", reconciled(30, 10, 10, 10, types.ReviewBreakdown{}), 0.667},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := CalculateMetrics(tt.counts, types.SubjectIdentity{})
			assert.Equal(t, tt.expected, m.Balance.SymmetryIndex)
		})
	}
}

func TestCalculateMetrics_Idempotent(t *testing.T) {
	counts := reconciled(40, 38, 12, 11, types.ReviewBreakdown{Positive: 30, Negative: 5, Neutral: 3})
	subject := types.SubjectIdentity{ID: 3, CredibilityScore: 820, XPTotal: 15000}

	first := CalculateMetrics(counts, subject)
	second := CalculateMetrics(counts, subject)
	assert.Equal(t, first, second)
}

func TestCalculateMetrics_BoundedUnderFuzzing(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		received := rng.Intn(1_000_000)
		positive := rng.Intn(received + 1)
		negative := rng.Intn(received - positive + 1)
		counts := reconciled(
			rng.Intn(1_000_000), received, rng.Intn(1_000_000), rng.Intn(1_000_000),
			types.ReviewBreakdown{Positive: positive, Negative: negative, Neutral: received - positive - negative},
		)
		subject := types.SubjectIdentity{CredibilityScore: rng.Intn(10_000_000), XPTotal: rng.Intn(100_000_000)}
		if i%5 == 0 {
			counts = reconciled(rng.Intn(3), rng.Intn(3), 0, rng.Intn(3), types.ReviewBreakdown{})
		}

		m := CalculateMetrics(counts, subject)
		for name, v := range advancedValues(m) {
			assert.GreaterOrEqual(t, v, 0.0, name)
			assert.LessOrEqual(t, v, 100.0, name)
		}
		for name, v := range floatValues(m) {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), name)
			assert.GreaterOrEqual(t, v, 0.0, name)
		}
	}
}

func TestCalculateReducedMetrics(t *testing.T) {
	m := CalculateReducedMetrics(types.SubjectIdentity{ID: 9, CredibilityScore: 300, XPTotal: 0})

	require.NotNil(t, m.Basic)
	assert.Equal(t, 0, m.Basic.ReviewsGiven)
	assert.Equal(t, 300, m.Basic.Credibility)
	assert.Equal(t, perReviewSentinel, m.Quality.CredibilityPerReview)
	assert.Equal(t, perXPSentinel, m.Quality.CredibilityToXPRatio)
}

func TestIndexTables_Boundaries(t *testing.T) {
	tests := []struct {
		name      string
		counts    types.ReconciledCounts
		index     string
		rule      string
		shouldHit bool
	}{
		{
			name:      "given of exactly ten is not near-perfect",
			counts:    reconciled(10, 10, 10, 10, types.ReviewBreakdown{Positive: 10}),
			index:     "r4r_risk_score",
			rule:      "near_perfect_reciprocity",
			shouldHit: false,
		},
		{
			name:      "given of exactly ten is close reciprocity",
			counts:    reconciled(10, 10, 10, 10, types.ReviewBreakdown{Positive: 10}),
			index:     "r4r_risk_score",
			rule:      "close_reciprocity",
			shouldHit: true,
		},
		{
			name:      "given of eleven is near-perfect",
			counts:    reconciled(11, 11, 0, 0, types.ReviewBreakdown{Positive: 11}),
			index:     "r4r_risk_score",
			rule:      "near_perfect_reciprocity",
			shouldHit: true,
		},
		{
			name:      "activity of exactly five is enough",
			counts:    reconciled(2, 2, 1, 0, types.ReviewBreakdown{Positive: 2}),
			index:     "organic_growth_indicator",
			rule:      "too_little_activity",
			shouldHit: false,
		},
		{
			name:      "activity of four is too little",
			counts:    reconciled(2, 2, 0, 0, types.ReviewBreakdown{Positive: 2}),
			index:     "organic_growth_indicator",
			rule:      "too_little_activity",
			shouldHit: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fired := ExplainIndices(tt.counts, types.SubjectIdentity{CredibilityScore: 50})
			if tt.shouldHit {
				assert.Contains(t, fired[tt.index], tt.rule)
			} else {
				assert.NotContains(t, fired[tt.index], tt.rule)
			}
		})
	}
}

func TestIndexTables_FarmingProfile(t *testing.T) {
	counts := reconciled(300, 300, 300, 300, types.ReviewBreakdown{Positive: 300})
	m := CalculateMetrics(counts, types.SubjectIdentity{CredibilityScore: 5000})

	assert.Equal(t, 100.0, m.Advanced.R4RRiskScore)
	assert.Equal(t, 95.0, m.Advanced.CoordinationScore)
	assert.Equal(t, 1.0, m.Balance.SymmetryIndex)
	assert.Equal(t, 100.0, m.Balance.DiversityScore)
}
