package model

import "time"

// Theme is one recurring topic across qualified replies
type Theme struct {
	Name       string   `json:"name" bson:"name"`
	Meaning    string   `json:"meaning,omitempty" bson:"meaning,omitempty"`
	ReplyCount int      `json:"replyCount,omitempty" bson:"replyCount,omitempty"`
	Evidence   []string `json:"evidence,omitempty" bson:"evidence,omitempty"`
}

// SentimentBreakdown splits qualified replies by overall stance
type SentimentBreakdown struct {
	Positive int `json:"positive" bson:"positive"`
	Neutral  int `json:"neutral" bson:"neutral"`
	Negative int `json:"negative" bson:"negative"`
}

// Summary is the synthesized final report. ExecutiveSummary is the only
// required section; everything else degrades to empty when the qualified
// reply list is thin.
type Summary struct {
	ExecutiveSummary string              `json:"executiveSummary" bson:"executiveSummary"`
	Themes           []Theme             `json:"themes,omitempty" bson:"themes,omitempty"`
	TopInsights      []string            `json:"topInsights,omitempty" bson:"topInsights,omitempty"`
	ActionItems      []string            `json:"actionItems,omitempty" bson:"actionItems,omitempty"`
	Sentiment        *SentimentBreakdown `json:"sentiment,omitempty" bson:"sentiment,omitempty"`
	MinorityInsights []string            `json:"minorityInsights,omitempty" bson:"minorityInsights,omitempty"`
	DissentingTakes  []string            `json:"dissentingTakes,omitempty" bson:"dissentingTakes,omitempty"`
	QualityCaveat    string              `json:"qualityCaveat,omitempty" bson:"qualityCaveat,omitempty"`
	ReplyCount       int                 `json:"replyCount" bson:"replyCount"`
	GeneratedAt      time.Time           `json:"generatedAt" bson:"generatedAt"`
}

// PlaceholderSummary is the terminal output for a report whose monitoring
// window closed with zero qualified replies. No synthesis call is made.
func PlaceholderSummary(now time.Time) *Summary {
	return &Summary{
		ExecutiveSummary: "Not enough signal: the monitoring window closed before any qualified replies were collected.",
		QualityCaveat:    "No replies met the qualification bar, so no synthesis was performed.",
		GeneratedAt:      now,
	}
}
