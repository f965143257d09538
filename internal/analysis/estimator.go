package analysis

import "math"

// Estimation constants. These are empirical and have not been calibrated
// against labeled data.
const (
	CredibilityToReviewRatio = 0.15
	ReciprocityFactor        = 0.85
	VouchToReviewMultiplier  = 1.5

	CredibilityMethodWeight = 0.5
	ReciprocityMethodWeight = 0.3
	VouchMethodWeight       = 0.2

	// ActiveBaselineReviews is the floor applied to credible subjects whose
	// combined estimate comes out implausibly low.
	ActiveBaselineReviews = 10

	EstimatePositiveShare = 0.70
	EstimateNegativeShare = 0.15

	MaxEstimateConfidence = 85
)

const (
	MethodCredibility = "credibility"
	MethodReciprocity = "reciprocity"
	MethodVouch       = "vouch"
)

// Estimate is an estimated count of reviews given by a subject
type Estimate struct {
	TotalGiven  int      `json:"total_given"`
	Positive    int      `json:"positive"`
	Negative    int      `json:"negative"`
	Neutral     int      `json:"neutral"`
	Confidence  int      `json:"confidence"`
	MethodsUsed []string `json:"methods_used"`
}

type subEstimate struct {
	method string
	value  float64
	weight float64
}

// EstimateReviewsGiven estimates how many reviews a subject has given when the
// upstream reports none. It blends up to three weak signals, each only used
// when its input is nonzero.
func EstimateReviewsGiven(score, reviewsReceived, vouchesGiven, vouchesReceived int) Estimate {
	subs := make([]subEstimate, 0, 3)
	if score > 0 {
		subs = append(subs, subEstimate{
			method: MethodCredibility,
			value:  math.Round(float64(score) * CredibilityToReviewRatio),
			weight: CredibilityMethodWeight,
		})
	}
	if reviewsReceived > 0 {
		subs = append(subs, subEstimate{
			method: MethodReciprocity,
			value:  math.Round(float64(reviewsReceived) / ReciprocityFactor),
			weight: ReciprocityMethodWeight,
		})
	}
	if vouches := vouchesGiven + vouchesReceived; vouches > 0 {
		subs = append(subs, subEstimate{
			method: MethodVouch,
			value:  math.Round(float64(vouches) * VouchToReviewMultiplier),
			weight: VouchMethodWeight,
		})
	}

	var weighted, weights float64
	methods := make([]string, 0, len(subs))
	for _, s := range subs {
		weighted += s.value * s.weight
		weights += s.weight
		methods = append(methods, s.method)
	}

	total := 0
	if weights > 0 {
		total = int(math.Round(weighted / weights))
	}
	if score > 100 && total < ActiveBaselineReviews {
		total = ActiveBaselineReviews
	}

	positive := int(math.Round(float64(total) * EstimatePositiveShare))
	negative := int(math.Round(float64(total) * EstimateNegativeShare))
	neutral := total - positive - negative
	if neutral < 0 {
		negative += neutral
		neutral = 0
	}

	return Estimate{
		TotalGiven:  total,
		Positive:    positive,
		Negative:    negative,
		Neutral:     neutral,
		Confidence:  estimateConfidence(score, reviewsReceived, len(methods)),
		MethodsUsed: methods,
	}
}

func estimateConfidence(score, reviewsReceived, methods int) int {
	confidence := 50
	switch {
	case score > 500:
		confidence += 20
	case score > 100:
		confidence += 10
	}
	if reviewsReceived > 0 {
		confidence += 15
	}
	confidence += methods * 5
	if confidence > MaxEstimateConfidence {
		confidence = MaxEstimateConfidence
	}
	return confidence
}
