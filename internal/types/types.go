package types

import (
	"fmt"
	"time"
)

// Source tags where a subject's reconciled counts came from
type Source string

const (
	SourceAPI      Source = "api"
	SourceEstimate Source = "estimate"
	SourceAPIBasic Source = "api_basic"

	// SourceSubject marks a degraded record built from the subject alone
	SourceSubject Source = "subject"
)

// SubjectIdentity identifies the profile being analyzed
type SubjectIdentity struct {
	ID               int64  `json:"id"`
	Username         string `json:"username"`
	DisplayName      string `json:"display_name"`
	CredibilityScore int    `json:"credibility_score"`
	XPTotal          int    `json:"xp_total"`
}

// Resolvable reports whether the identity carries enough to look it up upstream
func (s SubjectIdentity) Resolvable() bool {
	return s.ID > 0 || s.Username != ""
}

// Key returns the upstream lookup key for the subject
func (s SubjectIdentity) Key() string {
	if s.ID > 0 {
		return fmt.Sprintf("profileId:%d", s.ID)
	}
	return "username:" + s.Username
}

// CacheID returns the identifier used for cache entries owned by this subject
func (s SubjectIdentity) CacheID() string {
	if s.ID > 0 {
		return fmt.Sprintf("%d", s.ID)
	}
	return "u:" + s.Username
}

// ReviewBreakdown splits a review count by sentiment
type ReviewBreakdown struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// Total returns the sum of all sentiments
func (b ReviewBreakdown) Total() int {
	return b.Positive + b.Negative + b.Neutral
}

// RawActivityCounts are the counts as reported upstream
type RawActivityCounts struct {
	ReviewsGiven      int             `json:"reviews_given"`
	ReviewsReceived   int             `json:"reviews_received"`
	ReceivedBreakdown ReviewBreakdown `json:"received_breakdown"`
	VouchesGiven      int             `json:"vouches_given"`
	VouchesReceived   int             `json:"vouches_received"`
}

// ReconciledCounts are raw counts possibly overwritten by an estimate
type ReconciledCounts struct {
	RawActivityCounts
	GivenBreakdown ReviewBreakdown `json:"given_breakdown"`
	Source         Source          `json:"source"`
	Confidence     int             `json:"confidence"`
	MethodsUsed    []string        `json:"methods_used,omitempty"`
}

// BasicStats is the lightweight upstream stats payload
type BasicStats struct {
	ReviewsReceived   int             `json:"reviews_received"`
	ReceivedBreakdown ReviewBreakdown `json:"received_breakdown"`
	VouchesGiven      int             `json:"vouches_given"`
	VouchesReceived   int             `json:"vouches_received"`
}

// EnhancedStats is the detailed upstream stats payload
type EnhancedStats struct {
	ReviewsGiven    int `json:"reviews_given"`
	ReviewsReceived int `json:"reviews_received"`
	VouchesGiven    int `json:"vouches_given"`
	VouchesReceived int `json:"vouches_received"`
}

// Activity is a single upstream activity item
type Activity struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Sentiment string    `json:"sentiment,omitempty"`
}

// ActivityPayload is everything one upstream fetch returns for a subject
type ActivityPayload struct {
	BasicStats    BasicStats    `json:"basic_stats"`
	EnhancedStats EnhancedStats `json:"enhanced_stats"`
	Activities    []Activity    `json:"activities"`
}

// ReviewerReputation summarizes the reputation of the people reviewing a subject
type ReviewerReputation struct {
	ReviewerCount              int     `json:"reviewer_count"`
	AverageReviewerCredibility float64 `json:"average_reviewer_credibility"`
	LowRepPercentage           float64 `json:"low_rep_percentage"`
	HighRepPercentage          float64 `json:"high_rep_percentage"`
	NewAccountPercentage       float64 `json:"new_account_percentage"`
}

// ReconciledUserData is the persisted snapshot owned by the collector
type ReconciledUserData struct {
	Subject     SubjectIdentity  `json:"subject"`
	Counts      ReconciledCounts `json:"counts"`
	Activities  []Activity       `json:"activities,omitempty"`
	LastUpdated time.Time        `json:"last_updated"`
	NextRefresh time.Time        `json:"next_refresh"`
}

// CacheInfo describes how fresh an analysis record's inputs are
type CacheInfo struct {
	LastUpdated time.Time `json:"last_updated"`
	NextRefresh time.Time `json:"next_refresh"`
	AgeMs       int64     `json:"age_ms"`
}

// AnalyzeRequest represents the request structure for the analyze endpoint
type AnalyzeRequest struct {
	Subject  SubjectIdentity `json:"subject" binding:"required"`
	UseCache *bool           `json:"use_cache"`
}
