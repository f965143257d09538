package analysis

import (
	"fmt"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/types"
)

// Risk level thresholds on the clamped score
const (
	CriticalRiskThreshold = 100
	HighRiskThreshold     = 70
	MediumRiskThreshold   = 40

	// positiveAdjustment is subtracted when nothing fired for an established subject
	positiveAdjustment = 20

	unknownRiskScore = 50
)

// riskInput is what every risk rule sees. Basic is guaranteed non-nil.
type riskInput struct {
	m       DerivedMetrics
	b       BasicMetrics
	rep     *types.ReviewerReputation
	subject types.SubjectIdentity
}

func (in riskInput) reviews() int { return in.b.ReviewsGiven + in.b.ReviewsReceived }

type riskRule struct {
	name     string
	points   int
	severity Severity
	when     func(in riskInput) bool
	message  func(in riskInput) string
}

func staticMessage(msg string) func(riskInput) string {
	return func(riskInput) string { return msg }
}

// riskRules is evaluated in order; every rule is independent and additive.
var riskRules = []riskRule{
	{
		name: "reciprocity_closeness", points: 30, severity: SeverityHigh,
		when: func(in riskInput) bool {
			return in.b.ReviewsGiven > 10 && between(in.m.Ratios.ReciprocityRatio, 0.9, 1.1)
		},
		message: func(in riskInput) string {
			return fmt.Sprintf("Near-perfect review reciprocity (%.3f) across %d reviews given",
				in.m.Ratios.ReciprocityRatio, in.b.ReviewsGiven)
		},
	},
	{
		name: "vouch_reciprocity", points: 20, severity: SeverityHigh,
		when: func(in riskInput) bool {
			return in.b.VouchesGiven > 5 && between(in.m.Ratios.VouchReciprocityRatio, 0.9, 1.1)
		},
		message: func(in riskInput) string {
			return fmt.Sprintf("Vouches are exchanged almost one-for-one (%.3f)", in.m.Ratios.VouchReciprocityRatio)
		},
	},
	{
		name: "credibility_xp_mismatch", points: 20, severity: SeverityHigh,
		when: func(in riskInput) bool {
			return in.b.Credibility > 0 && in.m.Quality.CredibilityToXPRatio > 50
		},
		message: func(in riskInput) string {
			return fmt.Sprintf("Credibility is out of proportion to XP (%.2f per 1000 XP)", in.m.Quality.CredibilityToXPRatio)
		},
	},
	{
		name: "credibility_per_review_outlier", points: 15, severity: SeverityMedium,
		when: func(in riskInput) bool {
			return in.b.ReviewsReceived > 0 && in.m.Quality.CredibilityPerReview > 100
		},
		message: func(in riskInput) string {
			return fmt.Sprintf("Unusually high credibility per review received (%.1f)", in.m.Quality.CredibilityPerReview)
		},
	},
	{
		name: "low_quality_per_review", points: 15, severity: SeverityMedium,
		when: func(in riskInput) bool {
			return in.b.ReviewsReceived > 50 && in.m.Quality.CredibilityPerReview < 2
		},
		message: staticMessage("Many reviews received but very little credibility earned from them"),
	},
	{
		name: "activity_symmetry", points: 15, severity: SeverityMedium,
		when: func(in riskInput) bool {
			return in.m.Balance.SymmetryIndex > 0.95 && in.m.Balance.TotalActivity > 40
		},
		message: func(in riskInput) string {
			return fmt.Sprintf("Given and received activity mirror each other (symmetry %.3f)", in.m.Balance.SymmetryIndex)
		},
	},
	{
		name: "coordination", points: 20, severity: SeverityHigh,
		when:    func(in riskInput) bool { return in.m.Advanced.CoordinationScore >= 50 },
		message: staticMessage("Activity pattern is consistent with coordinated exchanges"),
	},
	{
		name: "centrality", points: 15, severity: SeverityMedium,
		when:    func(in riskInput) bool { return in.m.Advanced.CentralityRisk >= 50 },
		message: staticMessage("Profile sits at the center of a lopsided activity network"),
	},
	{
		name: "artificiality", points: 20, severity: SeverityHigh,
		when:    func(in riskInput) bool { return in.m.Advanced.ArtificialityIndex >= 50 },
		message: staticMessage("Activity looks artificially uniform"),
	},
	{
		name: "inflation", points: 20, severity: SeverityHigh,
		when:    func(in riskInput) bool { return in.m.Advanced.InflationDetector >= 50 },
		message: staticMessage("Credibility appears inflated relative to underlying activity"),
	},
	{
		name: "r4r_pattern", points: 25, severity: SeverityCritical,
		when: func(in riskInput) bool { return in.m.Advanced.R4RRiskScore >= 70 },
		message: func(in riskInput) string {
			return fmt.Sprintf("Strong review-for-review farming signature (R4R score %.0f)", in.m.Advanced.R4RRiskScore)
		},
	},
	{
		name: "low_reputation_reviewers", points: 20, severity: SeverityHigh,
		when: func(in riskInput) bool {
			return in.rep != nil && in.rep.ReviewerCount > 0 && in.rep.LowRepPercentage > 50
		},
		message: func(in riskInput) string {
			return fmt.Sprintf("%.0f%% of reviewers have low reputation", in.rep.LowRepPercentage)
		},
	},
	{
		name: "weak_reviewer_base", points: 10, severity: SeverityMedium,
		when: func(in riskInput) bool {
			return in.rep != nil && in.rep.ReviewerCount >= 5 && in.rep.AverageReviewerCredibility < 100
		},
		message: func(in riskInput) string {
			return fmt.Sprintf("Average reviewer credibility is only %.0f", in.rep.AverageReviewerCredibility)
		},
	},
	{
		name: "zero_negative_reviews", points: 10, severity: SeverityMedium,
		when: func(in riskInput) bool {
			return in.b.ReviewsReceived > 20 && in.b.NegativeReviews == 0
		},
		message: func(in riskInput) string {
			return fmt.Sprintf("No negative reviews among %d received", in.b.ReviewsReceived)
		},
	},
	{
		name: "extreme_activity_volume", points: 20, severity: SeverityHigh,
		when: func(in riskInput) bool { return in.m.Balance.TotalActivity > 1000 },
		message: func(in riskInput) string {
			return fmt.Sprintf("Extreme activity volume (%d interactions)", in.m.Balance.TotalActivity)
		},
	},
	{
		name: "high_activity_volume", points: 10, severity: SeverityMedium,
		when: func(in riskInput) bool {
			return in.m.Balance.TotalActivity > 500 && in.m.Balance.TotalActivity <= 1000
		},
		message: func(in riskInput) string {
			return fmt.Sprintf("High activity volume (%d interactions)", in.m.Balance.TotalActivity)
		},
	},
	{
		name: "quality_dilution", points: 10, severity: SeverityMedium,
		when: func(in riskInput) bool {
			return in.reviews() > 50 && in.m.Quality.XPPerReview < 5
		},
		message: staticMessage("Review volume is high relative to platform engagement"),
	},
	{
		name: "organic_growth_shortfall", points: 15, severity: SeverityMedium,
		when:    func(in riskInput) bool { return in.m.Advanced.OrganicGrowthIndicator < 40 },
		message: staticMessage("Reputation growth does not look organic"),
	},
	{
		name: "authenticity_shortfall", points: 15, severity: SeverityMedium,
		when:    func(in riskInput) bool { return in.m.Advanced.AuthenticityScore < 40 },
		message: staticMessage("Several authenticity checks failed"),
	},
	{
		name: "sustainability_shortfall", points: 10, severity: SeverityMedium,
		when:    func(in riskInput) bool { return in.m.Advanced.SustainabilityIndex < 30 },
		message: staticMessage("Reputation rests on a thin activity base"),
	},
	{
		name: "one_sided_bias", points: 10, severity: SeverityMedium,
		when: func(in riskInput) bool {
			return in.reviews() > 20 && in.m.Ratios.GiveReceiveBalance > 0.9
		},
		message: func(in riskInput) string {
			if in.b.ReviewsGiven > in.b.ReviewsReceived {
				return "Gives reviews almost exclusively without receiving any back"
			}
			return "Receives reviews almost exclusively without giving any back"
		},
	},
	{
		name: "mutual_engagement_extreme", points: 10, severity: SeverityMedium,
		when: func(in riskInput) bool {
			return in.reviews() > 30 && in.m.Ratios.MutualEngagementRatio > 0.98
		},
		message: func(in riskInput) string {
			return fmt.Sprintf("Mutual engagement is nearly total (%.3f)", in.m.Ratios.MutualEngagementRatio)
		},
	},
	{
		name: "network_value_exploitation", points: 15, severity: SeverityHigh,
		when: func(in riskInput) bool {
			return in.m.Quality.NetworkValue > 70 && in.m.Advanced.OrganicGrowthIndicator < 50
		},
		message: staticMessage("High network value built on non-organic growth"),
	},
}

// UnknownAssessment is returned whenever the subject cannot be measured
func UnknownAssessment(reason string) RiskAssessment {
	return RiskAssessment{
		Level: RiskUnknown,
		Score: unknownRiskScore,
		Factors: []RiskFactor{
			{Rule: "insufficient_data", Message: reason, Severity: SeverityInfo},
		},
	}
}

// EvaluateRisk scores metrics against the rule table and maps the clamped
// score to a risk level.
func EvaluateRisk(metrics DerivedMetrics, rep *types.ReviewerReputation, subject types.SubjectIdentity) RiskAssessment {
	if metrics.Basic == nil {
		return UnknownAssessment("insufficient data")
	}

	in := riskInput{m: metrics, b: *metrics.Basic, rep: rep, subject: subject}
	score := 0
	factors := make([]RiskFactor, 0, 4)
	for _, r := range riskRules {
		if !r.when(in) {
			continue
		}
		score += r.points
		factors = append(factors, RiskFactor{
			Rule:     r.name,
			Message:  r.message(in),
			Severity: r.severity,
			Points:   r.points,
		})
	}
	score = int(clip(float64(score), 0, 100))

	if len(factors) == 0 && subject.CredibilityScore > 100 && in.b.ReviewsReceived > 5 {
		score -= positiveAdjustment
		if score < 0 {
			score = 0
		}
		factors = append(factors, RiskFactor{
			Rule:     "established_profile",
			Message:  fmt.Sprintf("Established profile: credibility %d with %d reviews received and no risk signals", subject.CredibilityScore, in.b.ReviewsReceived),
			Severity: SeverityInfo,
			Points:   -positiveAdjustment,
		})
	}

	return RiskAssessment{Level: levelForScore(score), Score: score, Factors: factors}
}

func levelForScore(score int) RiskLevel {
	switch {
	case score >= CriticalRiskThreshold:
		return RiskCritical
	case score >= HighRiskThreshold:
		return RiskHigh
	case score >= MediumRiskThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}
