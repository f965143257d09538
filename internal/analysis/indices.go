package analysis

import "github.com/ZanzyTHEbar/trust-signal-analyzer/internal/types"

// indexRule adds points to an index when its predicate holds. Deductions use
// negative points.
type indexRule struct {
	name   string
	points float64
	when   func(s signals) bool
}

// indexTable is one advanced index: a starting value plus independent point
// rules, clamped to [0,100].
type indexTable struct {
	base  float64
	rules []indexRule
}

func (t indexTable) score(s signals) float64 {
	v := t.base
	for _, r := range t.rules {
		if r.when(s) {
			v += r.points
		}
	}
	return clip(v, 0, 100)
}

// fired lists the rules that apply to s, in table order
func (t indexTable) fired(s signals) []string {
	var names []string
	for _, r := range t.rules {
		if r.when(s) {
			names = append(names, r.name)
		}
	}
	return names
}

const (
	riskBase    = 0
	qualityBase = 100
)

func nearPerfectReciprocity(s signals) bool {
	return s.given > 10 && between(s.reciprocity, 0.9, 1.1)
}

func nearPerfectVouchReciprocity(s signals, minGiven float64) bool {
	return s.vouchGiven > minGiven && between(s.vouchReciprocity, 0.9, 1.1)
}

var r4rRiskTable = indexTable{
	base: riskBase,
	rules: []indexRule{
		{"near_perfect_reciprocity", 40, nearPerfectReciprocity},
		{"close_reciprocity", 20, func(s signals) bool {
			return s.given > 5 && between(s.reciprocity, 0.8, 1.2) && !nearPerfectReciprocity(s)
		}},
		{"vouch_reciprocity", 20, func(s signals) bool { return nearPerfectVouchReciprocity(s, 5) }},
		{"volume_extreme", 20, func(s signals) bool { return s.total > 500 }},
		{"volume_high", 10, func(s signals) bool { return s.total > 200 && s.total <= 500 }},
		{"volume_elevated", 5, func(s signals) bool { return s.total > 100 && s.total <= 200 }},
		{"low_credibility_per_review", 15, func(s signals) bool { return s.received > 50 && s.credPerReview < 2 }},
		{"mutual_engagement", 10, func(s signals) bool { return s.mutual > 0.95 && s.given+s.received > 40 }},
		{"no_negative_reviews", 10, func(s signals) bool { return s.received > 20 && s.negative == 0 }},
	},
}

var artificialityTable = indexTable{
	base: riskBase,
	rules: []indexRule{
		{"symmetric_activity", 30, func(s signals) bool { return s.symmetry > 0.95 && s.total > 40 }},
		{"sentiment_uniformity", 20, func(s signals) bool {
			return s.received > 15 && s.negative == 0 && s.neutral == 0
		}},
		{"credibility_outpaces_xp", 20, func(s signals) bool { return s.xp > 0 && s.credToXP > 50 }},
		{"low_xp_per_review", 15, func(s signals) bool { return s.given+s.received > 30 && s.xpPerReview < 10 }},
		{"uniform_channels", 15, func(s signals) bool { return s.total > 80 && s.concentration < 0.3 }},
	},
}

var coordinationTable = indexTable{
	base: riskBase,
	rules: []indexRule{
		{"near_perfect_reciprocity", 30, nearPerfectReciprocity},
		{"vouch_reciprocity", 25, func(s signals) bool { return nearPerfectVouchReciprocity(s, 3) }},
		{"lockstep_reviews_vouches", 15, func(s signals) bool {
			return s.given > 10 && s.given-s.vouchGiven <= 2 && s.vouchGiven-s.given <= 2
		}},
		{"mutual_reviews_extreme", 25, func(s signals) bool { return s.mutualReviews > 50 }},
		{"mutual_reviews_high", 15, func(s signals) bool { return s.mutualReviews > 20 && s.mutualReviews <= 50 }},
	},
}

var centralityTable = indexTable{
	base: riskBase,
	rules: []indexRule{
		{"receiving_hub", 30, func(s signals) bool { return s.received > 100 && s.given < 10 }},
		{"vouch_magnet_extreme", 25, func(s signals) bool { return s.vouchReceived > 50 }},
		{"vouch_magnet_high", 10, func(s signals) bool { return s.vouchReceived > 20 && s.vouchReceived <= 50 }},
		{"concentrated_activity", 20, func(s signals) bool { return s.total > 20 && s.concentration > 0.8 }},
		{"broadcasting_hub", 20, func(s signals) bool { return s.given > 100 && s.received < 10 }},
	},
}

var inflationTable = indexTable{
	base: riskBase,
	rules: []indexRule{
		{"credibility_per_review_extreme", 30, func(s signals) bool { return s.received > 0 && s.credPerReview > 100 }},
		{"credibility_per_review_high", 15, func(s signals) bool {
			return s.received > 0 && s.credPerReview > 50 && s.credPerReview <= 100
		}},
		{"credibility_to_xp_extreme", 25, func(s signals) bool { return s.xp > 0 && s.credToXP > 100 }},
		{"credibility_to_xp_high", 10, func(s signals) bool { return s.xp > 0 && s.credToXP > 20 && s.credToXP <= 100 }},
		{"all_positive", 20, func(s signals) bool { return s.received > 10 && s.positivePct == 100 }},
		{"credibility_without_activity", 25, func(s signals) bool { return s.credibility > 1000 && s.total < 20 }},
	},
}

var consistencyTable = indexTable{
	base: qualityBase,
	rules: []indexRule{
		{"review_imbalance_extreme", -30, func(s signals) bool { return s.given+s.received > 10 && s.giveBalance > 0.8 }},
		{"review_imbalance_high", -15, func(s signals) bool {
			return s.given+s.received > 10 && s.giveBalance > 0.5 && s.giveBalance <= 0.8
		}},
		{"vouch_imbalance", -20, func(s signals) bool { return s.vouchGiven+s.vouchReceived > 5 && s.vouchImbalance > 0.8 }},
		{"credibility_xp_mismatch", -20, func(s signals) bool {
			return s.credibility > 0 && (s.xp == 0 || s.credToXP > 50)
		}},
		{"negative_heavy", -15, func(s signals) bool { return s.negativePct > 30 }},
	},
}

var organicGrowthTable = indexTable{
	base: qualityBase,
	rules: []indexRule{
		{"near_perfect_reciprocity", -25, nearPerfectReciprocity},
		{"vouch_reciprocity", -15, func(s signals) bool { return nearPerfectVouchReciprocity(s, 5) }},
		{"credibility_without_xp", -20, func(s signals) bool { return s.credibility > 500 && s.xp < 1000 }},
		{"sentiment_uniformity", -15, func(s signals) bool {
			return s.received > 10 && s.negative == 0 && s.neutral == 0
		}},
		{"volume_high", -10, func(s signals) bool { return s.total > 300 }},
		{"too_little_activity", -10, func(s signals) bool { return s.total < 5 }},
	},
}

var authenticityTable = indexTable{
	base: qualityBase,
	rules: []indexRule{
		{"credibility_without_xp", -30, func(s signals) bool { return s.credibility > 0 && s.xp == 0 }},
		{"credibility_outpaces_xp", -20, func(s signals) bool { return s.xp > 0 && s.credToXP > 50 }},
		{"no_negative_reviews", -15, func(s signals) bool { return s.received > 20 && s.negative == 0 }},
		{"never_reviews_others", -15, func(s signals) bool { return s.given == 0 && s.received > 20 }},
		{"reciprocal_review_block", -20, func(s signals) bool {
			return s.mutualReviews > 30 && between(s.reciprocity, 0.9, 1.1)
		}},
	},
}

var sustainabilityTable = indexTable{
	base: qualityBase,
	rules: []indexRule{
		{"xp_very_low", -25, func(s signals) bool { return s.xp < 500 }},
		{"xp_low", -10, func(s signals) bool { return s.xp >= 500 && s.xp < 2000 }},
		{"never_reviews_others", -20, func(s signals) bool { return s.given == 0 }},
		{"unvouched_credibility", -15, func(s signals) bool { return s.vouchReceived == 0 && s.credibility > 100 }},
		{"few_reviews_received", -15, func(s signals) bool { return s.received < 3 }},
		{"volume_extreme", -15, func(s signals) bool { return s.total > 500 }},
	},
}

// advancedTables names each index table, in AdvancedMetrics field order
var advancedTables = []struct {
	name  string
	table indexTable
}{
	{"r4r_risk_score", r4rRiskTable},
	{"artificiality_index", artificialityTable},
	{"coordination_score", coordinationTable},
	{"centrality_risk", centralityTable},
	{"inflation_detector", inflationTable},
	{"consistency_score", consistencyTable},
	{"organic_growth_indicator", organicGrowthTable},
	{"authenticity_score", authenticityTable},
	{"sustainability_index", sustainabilityTable},
}

// ExplainIndices lists, per advanced index, the point rules that applied to
// the given counts. It backs the metrics debug endpoint.
func ExplainIndices(counts types.ReconciledCounts, subject types.SubjectIdentity) map[string][]string {
	s := newSignals(counts, subject)
	out := make(map[string][]string, len(advancedTables))
	for _, t := range advancedTables {
		out[t.name] = t.table.fired(s)
	}
	return out
}
