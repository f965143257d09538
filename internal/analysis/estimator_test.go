package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateReviewsGiven(t *testing.T) {
	tests := []struct {
		name            string
		score           int
		reviewsReceived int
		vouchesGiven    int
		vouchesReceived int
		expected        Estimate
	}{
		{
			name:            "blends all three methods",
			score:           1517,
			reviewsReceived: 24,
			vouchesReceived: 16,
			expected: Estimate{
				TotalGiven:  127,
				Positive:    89,
				Negative:    19,
				Neutral:     19,
				Confidence:  MaxEstimateConfidence,
				MethodsUsed: []string{MethodCredibility, MethodReciprocity, MethodVouch},
			},
		},
		{
			name:            "reciprocity only",
			reviewsReceived: 17,
			expected: Estimate{
				TotalGiven:  20,
				Positive:    14,
				Negative:    3,
				Neutral:     3,
				Confidence:  70,
				MethodsUsed: []string{MethodReciprocity},
			},
		},
		{
			name:            "raises credible subjects to the active baseline",
			score:           101,
			reviewsReceived: 1,
			vouchesGiven:    1,
			expected: Estimate{
				TotalGiven:  ActiveBaselineReviews,
				Positive:    7,
				Negative:    2,
				Neutral:     1,
				Confidence:  MaxEstimateConfidence,
				MethodsUsed: []string{MethodCredibility, MethodReciprocity, MethodVouch},
			},
		},
		{
			name:     "no signals",
			expected: Estimate{Confidence: 50, MethodsUsed: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateReviewsGiven(tt.score, tt.reviewsReceived, tt.vouchesGiven, tt.vouchesReceived)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, got.TotalGiven, got.Positive+got.Negative+got.Neutral)
		})
	}
}

func TestEstimateReviewsGiven_Deterministic(t *testing.T) {
	for score := 0; score <= 2000; score += 97 {
		for received := 0; received <= 300; received += 31 {
			first := EstimateReviewsGiven(score, received, received/3, received/2)
			second := EstimateReviewsGiven(score, received, received/3, received/2)
			assert.Equal(t, first, second)
			assert.GreaterOrEqual(t, first.Confidence, 0)
			assert.LessOrEqual(t, first.Confidence, MaxEstimateConfidence)
			assert.GreaterOrEqual(t, first.Neutral, 0)
		}
	}
}

func TestEstimateConfidence(t *testing.T) {
	tests := []struct {
		name            string
		score           int
		reviewsReceived int
		methods         int
		expected        int
	}{
		{"baseline", 0, 0, 0, 50},
		{"mid score", 150, 0, 1, 65},
		{"high score", 600, 0, 1, 75},
		{"received reviews", 0, 5, 1, 70},
		{"capped", 600, 5, 3, MaxEstimateConfidence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, estimateConfidence(tt.score, tt.reviewsReceived, tt.methods))
		})
	}
}
