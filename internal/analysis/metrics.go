package analysis

import (
	"math"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/types"
)

// Sentinels for quotients whose denominator is zero, at the precision the
// metric is reported with.
const (
	perReviewSentinel  = 999.9
	perXPSentinel      = 999.99
	xpScale            = 1000.0
	velocityXPBaseline = 1000.0
)

// signals is the flattened view of one subject that the index tables and the
// risk rules read from.
type signals struct {
	given, received           float64
	vouchGiven, vouchReceived float64
	credibility, xp           float64
	positive, negative        float64
	neutral                   float64
	total                     float64

	reciprocity      float64
	vouchReciprocity float64
	giveBalance      float64
	vouchImbalance   float64
	mutual           float64
	concentration    float64
	symmetry         float64
	positivePct      float64
	negativePct      float64
	neutralPct       float64
	credPerReview    float64
	xpPerReview      float64
	credToXP         float64
	mutualReviews    float64
}

func newSignals(counts types.ReconciledCounts, subject types.SubjectIdentity) signals {
	s := signals{
		given:         float64(counts.ReviewsGiven),
		received:      float64(counts.ReviewsReceived),
		vouchGiven:    float64(counts.VouchesGiven),
		vouchReceived: float64(counts.VouchesReceived),
		credibility:   float64(subject.CredibilityScore),
		xp:            float64(subject.XPTotal),
		positive:      float64(counts.ReceivedBreakdown.Positive),
		negative:      float64(counts.ReceivedBreakdown.Negative),
		neutral:       float64(counts.ReceivedBreakdown.Neutral),
	}
	s.total = s.given + s.received + s.vouchGiven + s.vouchReceived

	reviews := s.given + s.received
	sentiments := s.positive + s.negative + s.neutral

	s.reciprocity = Ratio(s.received, s.given)
	s.vouchReciprocity = Ratio(s.vouchReceived, s.vouchGiven)
	s.giveBalance = round(share(math.Abs(s.given-s.received), reviews), 3)
	s.vouchImbalance = round(share(math.Abs(s.vouchGiven-s.vouchReceived), s.vouchGiven+s.vouchReceived), 3)
	s.mutual = round(share(2*math.Min(s.given, s.received), reviews), 3)
	s.concentration = round(share(math.Max(math.Max(s.given, s.received), math.Max(s.vouchGiven, s.vouchReceived)), s.total), 3)
	s.symmetry = symmetryIndex(s)
	s.positivePct = round(share(s.positive, sentiments)*100, 1)
	s.negativePct = round(share(s.negative, sentiments)*100, 1)
	s.neutralPct = round(share(s.neutral, sentiments)*100, 1)
	s.credPerReview = guardedDiv(s.credibility, s.received, perReviewSentinel, 1)
	s.xpPerReview = guardedDiv(s.xp, reviews, perReviewSentinel, 1)
	s.credToXP = guardedDiv(s.credibility, s.xp/xpScale, perXPSentinel, 2)
	s.mutualReviews = math.Min(s.given, s.received)
	return s
}

// pairSymmetry is 1 for identical counts and approaches 0 as they diverge
func pairSymmetry(a, b float64) float64 {
	if a+b == 0 {
		return 0
	}
	return 1 - math.Abs(a-b)/(a+b)
}

// symmetryIndex weights review and vouch symmetry by each pair's share of activity
func symmetryIndex(s signals) float64 {
	if s.total == 0 {
		return 0
	}
	reviews := s.given + s.received
	vouches := s.vouchGiven + s.vouchReceived
	v := reviews/s.total*pairSymmetry(s.given, s.received) +
		vouches/s.total*pairSymmetry(s.vouchGiven, s.vouchReceived)
	return round(v, 3)
}

// diversityScore is the normalized Shannon entropy of the four activity channels
func diversityScore(s signals) float64 {
	if s.total == 0 {
		return 0
	}
	h := 0.0
	for _, c := range []float64{s.given, s.received, s.vouchGiven, s.vouchReceived} {
		if c == 0 {
			continue
		}
		p := c / s.total
		h -= p * math.Log(p)
	}
	return round(clip(h/math.Log(4)*100, 0, 100), 1)
}

func engagementQuality(s signals) float64 {
	if s.received == 0 {
		return 0
	}
	v := 0.5*s.positivePct + 30*s.mutual + 20*math.Min(1, share(s.vouchReceived, s.received))
	return round(clip(v, 0, 100), 1)
}

func networkValue(s signals) float64 {
	v := 10*math.Log10(1+s.credibility) +
		15*math.Log10(1+s.vouchReceived) +
		10*math.Log10(1+s.received)
	return round(clip(v, 0, 100), 1)
}

// CalculateMetrics derives the full metric set from reconciled counts. It is
// pure and total: every division is guarded and every value is finite.
func CalculateMetrics(counts types.ReconciledCounts, subject types.SubjectIdentity) DerivedMetrics {
	s := newSignals(counts, subject)
	return DerivedMetrics{
		Basic: &BasicMetrics{
			ReviewsGiven:    counts.ReviewsGiven,
			ReviewsReceived: counts.ReviewsReceived,
			VouchesGiven:    counts.VouchesGiven,
			VouchesReceived: counts.VouchesReceived,
			PositiveReviews: counts.ReceivedBreakdown.Positive,
			NegativeReviews: counts.ReceivedBreakdown.Negative,
			NeutralReviews:  counts.ReceivedBreakdown.Neutral,
			Credibility:     subject.CredibilityScore,
			XP:              subject.XPTotal,
		},
		Ratios: RatioMetrics{
			ReciprocityRatio:      s.reciprocity,
			VouchReciprocityRatio: s.vouchReciprocity,
			VouchToReviewRatio:    Ratio(s.vouchGiven+s.vouchReceived, s.given+s.received),
			PositivePercentage:    s.positivePct,
			NegativePercentage:    s.negativePct,
			NeutralPercentage:     s.neutralPct,
			GiveReceiveBalance:    s.giveBalance,
			MutualEngagementRatio: s.mutual,
			ActivityConcentration: s.concentration,
		},
		Quality: QualityMetrics{
			CredibilityPerReview: s.credPerReview,
			XPPerReview:          s.xpPerReview,
			CredibilityToXPRatio: s.credToXP,
			ReviewEfficiency:     guardedDiv(s.credibility, s.total, perReviewSentinel, 1),
			EngagementQuality:    engagementQuality(s),
			ReputationVelocity:   round(s.credibility*velocityXPBaseline/(s.xp+velocityXPBaseline), 2),
			NetworkValue:         networkValue(s),
		},
		Balance: BalanceMetrics{
			ReviewBalance:     counts.ReviewsGiven - counts.ReviewsReceived,
			VouchBalance:      counts.VouchesGiven - counts.VouchesReceived,
			MutualReviewCount: minInt(counts.ReviewsGiven, counts.ReviewsReceived),
			TotalActivity:     counts.ReviewsGiven + counts.ReviewsReceived + counts.VouchesGiven + counts.VouchesReceived,
			SymmetryIndex:     s.symmetry,
			DiversityScore:    diversityScore(s),
			EngagementDepth:   round(clip(25*math.Log10(1+s.total), 0, 100), 1),
		},
		Advanced: AdvancedMetrics{
			R4RRiskScore:           r4rRiskTable.score(s),
			ArtificialityIndex:     artificialityTable.score(s),
			CoordinationScore:      coordinationTable.score(s),
			CentralityRisk:         centralityTable.score(s),
			InflationDetector:      inflationTable.score(s),
			ConsistencyScore:       consistencyTable.score(s),
			OrganicGrowthIndicator: organicGrowthTable.score(s),
			AuthenticityScore:      authenticityTable.score(s),
			SustainabilityIndex:    sustainabilityTable.score(s),
		},
	}
}

// CalculateReducedMetrics is the degraded variant used when upstream counts are
// unavailable: only the subject's own score and XP are known, and every
// activity count is assumed to be zero.
func CalculateReducedMetrics(subject types.SubjectIdentity) DerivedMetrics {
	return CalculateMetrics(types.ReconciledCounts{Source: types.SourceAPIBasic}, subject)
}
