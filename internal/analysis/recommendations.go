package analysis

import (
	"fmt"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/types"
)

// levelRecommendations is emitted first, keyed by risk level. Unknown has no set.
var levelRecommendations = map[RiskLevel][]string{
	RiskLow: {
		"Activity pattern looks organic; standard due diligence is sufficient",
		"Continue to monitor for sudden changes in review volume",
	},
	RiskMedium: {
		"Some signals warrant caution; review recent activity before relying on this profile",
		"Cross-check reviewers and vouchers for overlap with this profile's own network",
	},
	RiskHigh: {
		"Multiple manipulation signals detected; treat reputation metrics with skepticism",
		"Manually inspect reciprocal review and vouch pairs",
		"Avoid high-stakes interactions until the pattern is explained",
	},
	RiskCritical: {
		"Strong evidence of reputation farming; do not rely on this profile's reputation",
		"Flag the profile for manual investigation",
		"Examine the counterparties involved in reciprocal exchanges for coordinated behavior",
	},
}

// recInput is what every conditional recommendation sees. Basic may be nil
// only for the insufficient-data rule, which is the only rule evaluated then.
type recInput struct {
	m          DerivedMetrics
	b          BasicMetrics
	assessment RiskAssessment
	rep        *types.ReviewerReputation
}

type recommendationRule struct {
	name    string
	when    func(in recInput) bool
	message func(in recInput) string
}

var insufficientDataRule = recommendationRule{
	name: "insufficient_data",
	when: func(in recInput) bool { return in.assessment.Level == RiskUnknown },
	message: func(recInput) string {
		return "Not enough activity data to assess this profile; re-run the analysis once upstream data is available"
	},
}

// recommendationRules is evaluated in order and every eligible message is kept.
var recommendationRules = []recommendationRule{
	insufficientDataRule,
	{
		name: "extreme_reciprocity",
		when: func(in recInput) bool {
			return in.b.ReviewsReceived > 10 && in.m.Ratios.ReciprocityRatio >= 10
		},
		message: func(in recInput) string {
			return fmt.Sprintf("Receives %.1fx more reviews than given; check whether received reviews come from a small group",
				in.m.Ratios.ReciprocityRatio)
		},
	},
	{
		name: "balanced_reciprocity",
		when: func(in recInput) bool {
			return in.b.ReviewsGiven > 10 && between(in.m.Ratios.ReciprocityRatio, 0.9, 1.1)
		},
		message: func(recInput) string {
			return "Review exchanges are nearly one-for-one; verify that reviews reflect genuine interactions"
		},
	},
	{
		name: "never_reviews_others",
		when: func(in recInput) bool { return in.b.ReviewsGiven == 0 && in.b.ReviewsReceived > 20 },
		message: func(in recInput) string {
			return fmt.Sprintf("Has received %d reviews without giving any; confirm this is a passive account", in.b.ReviewsReceived)
		},
	},
	{
		name: "credibility_outpaces_xp",
		when: func(in recInput) bool { return in.m.Quality.CredibilityToXPRatio > 50 },
		message: func(recInput) string {
			return "Credibility is high relative to XP; reputation may have been accumulated faster than engagement"
		},
	},
	{
		name: "low_xp_for_credibility",
		when: func(in recInput) bool { return in.b.Credibility > 500 && in.b.XP < 1000 },
		message: func(in recInput) string {
			return fmt.Sprintf("Only %d XP behind %d credibility; look for a recent reputation spike", in.b.XP, in.b.Credibility)
		},
	},
	{
		name: "low_reputation_reviewers",
		when: func(in recInput) bool { return in.rep != nil && in.rep.LowRepPercentage > 50 },
		message: func(in recInput) string {
			return fmt.Sprintf("%.0f%% of reviewers have low reputation; weigh their reviews accordingly", in.rep.LowRepPercentage)
		},
	},
	{
		name: "strong_reviewer_base",
		when: func(in recInput) bool {
			return in.rep != nil && in.rep.ReviewerCount >= 5 && in.rep.AverageReviewerCredibility >= 1000
		},
		message: func(recInput) string {
			return "Reviewed by a well-established set of reviewers, which supports the profile's reputation"
		},
	},
	{
		name: "organic_growth",
		when: func(in recInput) bool {
			return in.m.Advanced.OrganicGrowthIndicator >= 80 && in.m.Balance.TotalActivity >= 5
		},
		message: func(recInput) string { return "Reputation growth looks organic" },
	},
	{
		name: "authentic_activity",
		when: func(in recInput) bool {
			return in.m.Advanced.AuthenticityScore >= 80 && in.m.Balance.TotalActivity >= 5
		},
		message: func(recInput) string { return "Activity passes authenticity checks" },
	},
	{
		name: "unsustainable_reputation",
		when: func(in recInput) bool { return in.m.Advanced.SustainabilityIndex < 30 },
		message: func(recInput) string {
			return "Reputation rests on little sustained engagement; expect it to be volatile"
		},
	},
	{
		name: "extreme_volume",
		when: func(in recInput) bool { return in.m.Balance.TotalActivity > 1000 },
		message: func(in recInput) string {
			return fmt.Sprintf("Activity volume of %d is unusually high; sample individual reviews for quality", in.m.Balance.TotalActivity)
		},
	},
	{
		name: "all_positive",
		when: func(in recInput) bool {
			return in.b.ReviewsReceived > 10 && in.m.Ratios.PositivePercentage == 100
		},
		message: func(recInput) string {
			return "Every received review is positive; an all-positive record at this volume is uncommon"
		},
	},
	{
		name: "negative_heavy",
		when: func(in recInput) bool { return in.m.Ratios.NegativePercentage > 30 },
		message: func(in recInput) string {
			return fmt.Sprintf("%.1f%% of received reviews are negative; read them before engaging", in.m.Ratios.NegativePercentage)
		},
	},
}

// GenerateRecommendations returns the level's fixed guidance followed by every
// conditional message whose rule holds, in rule order.
func GenerateRecommendations(metrics DerivedMetrics, assessment RiskAssessment, rep *types.ReviewerReputation) []string {
	out := append([]string{}, levelRecommendations[assessment.Level]...)

	in := recInput{m: metrics, assessment: assessment, rep: rep}
	if metrics.Basic == nil {
		if insufficientDataRule.when(in) {
			out = append(out, insufficientDataRule.message(in))
		}
		return out
	}
	in.b = *metrics.Basic

	for _, r := range recommendationRules {
		if r.when(in) {
			out = append(out, r.message(in))
		}
	}
	return out
}
