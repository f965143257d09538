package analysis

import (
	"time"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/types"
)

type BasicMetrics struct {
	ReviewsGiven    int `json:"reviews_given"`
	ReviewsReceived int `json:"reviews_received"`
	VouchesGiven    int `json:"vouches_given"`
	VouchesReceived int `json:"vouches_received"`
	PositiveReviews int `json:"positive_reviews"`
	NegativeReviews int `json:"negative_reviews"`
	NeutralReviews  int `json:"neutral_reviews"`
	Credibility     int `json:"credibility"`
	XP              int `json:"xp"`
}

type RatioMetrics struct {
	ReciprocityRatio      float64 `json:"reciprocity_ratio"`
	VouchReciprocityRatio float64 `json:"vouch_reciprocity_ratio"`
	VouchToReviewRatio    float64 `json:"vouch_to_review_ratio"`
	PositivePercentage    float64 `json:"positive_percentage"`
	NegativePercentage    float64 `json:"negative_percentage"`
	NeutralPercentage     float64 `json:"neutral_percentage"`
	GiveReceiveBalance    float64 `json:"give_receive_balance"`
	MutualEngagementRatio float64 `json:"mutual_engagement_ratio"`
	ActivityConcentration float64 `json:"activity_concentration"`
}

type QualityMetrics struct {
	CredibilityPerReview float64 `json:"credibility_per_review"`
	XPPerReview          float64 `json:"xp_per_review"`
	CredibilityToXPRatio float64 `json:"credibility_to_xp_ratio"`
	ReviewEfficiency     float64 `json:"review_efficiency"`
	EngagementQuality    float64 `json:"engagement_quality"`
	ReputationVelocity   float64 `json:"reputation_velocity"`
	NetworkValue         float64 `json:"network_value"`
}

type BalanceMetrics struct {
	ReviewBalance     int     `json:"review_balance"`
	VouchBalance      int     `json:"vouch_balance"`
	MutualReviewCount int     `json:"mutual_review_count"`
	TotalActivity     int     `json:"total_activity"`
	SymmetryIndex     float64 `json:"symmetry_index"`
	DiversityScore    float64 `json:"diversity_score"`
	EngagementDepth   float64 `json:"engagement_depth"`
}

// AdvancedMetrics holds the point-table indices, each clamped to [0,100].
// Risk indices start at 0 and accumulate; quality indices start at 100 and deduct.
type AdvancedMetrics struct {
	R4RRiskScore           float64 `json:"r4r_risk_score"`
	ArtificialityIndex     float64 `json:"artificiality_index"`
	CoordinationScore      float64 `json:"coordination_score"`
	CentralityRisk         float64 `json:"centrality_risk"`
	InflationDetector      float64 `json:"inflation_detector"`
	ConsistencyScore       float64 `json:"consistency_score"`
	OrganicGrowthIndicator float64 `json:"organic_growth_indicator"`
	AuthenticityScore      float64 `json:"authenticity_score"`
	SustainabilityIndex    float64 `json:"sustainability_index"`
}

// DerivedMetrics is the full metric set for one subject. A nil Basic group
// means the subject could not be measured.
type DerivedMetrics struct {
	Basic    *BasicMetrics   `json:"basic,omitempty"`
	Ratios   RatioMetrics    `json:"ratios"`
	Quality  QualityMetrics  `json:"quality"`
	Balance  BalanceMetrics  `json:"balance"`
	Advanced AdvancedMetrics `json:"advanced"`
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
	RiskUnknown  RiskLevel = "unknown"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type RiskFactor struct {
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Points   int      `json:"points"`
}

type RiskAssessment struct {
	Level   RiskLevel    `json:"level"`
	Score   int          `json:"score"`
	Factors []RiskFactor `json:"factors"`
}

// AnalysisRecord is the persisted result of one analysis run
type AnalysisRecord struct {
	ID              string                `json:"id"`
	Timestamp       time.Time             `json:"timestamp"`
	Subject         types.SubjectIdentity `json:"subject"`
	Metrics         DerivedMetrics        `json:"metrics"`
	RiskAssessment  RiskAssessment        `json:"risk_assessment"`
	Recommendations []string              `json:"recommendations"`
	Source          types.Source          `json:"source"`
	CacheInfo       types.CacheInfo       `json:"cache_info"`
	Degraded        bool                  `json:"degraded,omitempty"`
}
