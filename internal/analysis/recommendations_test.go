package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/types"
)

func TestGenerateRecommendations_Unknown(t *testing.T) {
	got := GenerateRecommendations(DerivedMetrics{}, UnknownAssessment("insufficient data"), nil)

	require.Len(t, got, 1)
	assert.Contains(t, got[0], "Not enough activity data")
}

func TestGenerateRecommendations_EstablishedProfile(t *testing.T) {
	counts, subject := establishedProfile()
	metrics := CalculateMetrics(counts, subject)
	assessment := EvaluateRisk(metrics, nil, subject)

	got := GenerateRecommendations(metrics, assessment, nil)

	expected := append([]string{}, levelRecommendations[RiskLow]...)
	expected = append(expected, "Reputation growth looks organic", "Activity passes authenticity checks")
	assert.Equal(t, expected, got)
}

func TestGenerateRecommendations_FarmingProfile(t *testing.T) {
	counts, subject := farmingProfile()
	metrics := CalculateMetrics(counts, subject)
	assessment := EvaluateRisk(metrics, nil, subject)

	got := GenerateRecommendations(metrics, assessment, nil)

	require.Greater(t, len(got), len(levelRecommendations[RiskCritical]))
	assert.Equal(t, levelRecommendations[RiskCritical], got[:3])
	assert.Contains(t, got, "Review exchanges are nearly one-for-one; verify that reviews reflect genuine interactions")
	assert.Contains(t, got, "Every received review is positive; an all-positive record at this volume is uncommon")
}

func TestGenerateRecommendations_ReviewerReputation(t *testing.T) {
	counts, subject := establishedProfile()
	metrics := CalculateMetrics(counts, subject)

	tests := []struct {
		name     string
		rep      *types.ReviewerReputation
		contains string
	}{
		{
			name:     "low reputation reviewers",
			rep:      &types.ReviewerReputation{ReviewerCount: 8, LowRepPercentage: 75},
			contains: "75% of reviewers have low reputation; weigh their reviews accordingly",
		},
		{
			name:     "strong reviewer base",
			rep:      &types.ReviewerReputation{ReviewerCount: 8, AverageReviewerCredibility: 1500},
			contains: "Reviewed by a well-established set of reviewers, which supports the profile's reputation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assessment := EvaluateRisk(metrics, tt.rep, subject)
			assert.Contains(t, GenerateRecommendations(metrics, assessment, tt.rep), tt.contains)
		})
	}
}

func TestGenerateRecommendations_DegradedRecord(t *testing.T) {
	subject := types.SubjectIdentity{ID: 4, CredibilityScore: 900}
	metrics := CalculateReducedMetrics(subject)

	got := GenerateRecommendations(metrics, UnknownAssessment("upstream unavailable"), nil)

	require.NotEmpty(t, got)
	assert.Contains(t, got[0], "Not enough activity data")
}

func TestGenerateRecommendations_RuleOrder(t *testing.T) {
	counts := reconciled(0, 40, 0, 0, types.ReviewBreakdown{Positive: 20, Negative: 20})
	subject := types.SubjectIdentity{ID: 8, CredibilityScore: 800, XPTotal: 100}
	metrics := CalculateMetrics(counts, subject)
	assessment := RiskAssessment{Level: RiskMedium, Score: 50}

	got := GenerateRecommendations(metrics, assessment, nil)

	never := indexOf(got, "Has received 40 reviews without giving any; confirm this is a passive account")
	negative := indexOf(got, "50.0% of received reviews are negative; read them before engaging")
	require.NotEqual(t, -1, never)
	require.NotEqual(t, -1, negative)
	assert.Less(t, never, negative)
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return -1
}
