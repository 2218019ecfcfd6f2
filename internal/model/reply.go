package model

import "time"

// EvalStatus is the evaluation state of a single reply
type EvalStatus string

const (
	EvalPending    EvalStatus = "pending"
	EvalEvaluating EvalStatus = "evaluating"
	EvalEvaluated  EvalStatus = "evaluated"
)

// Author holds the reply author's attributes as the provider reports them
type Author struct {
	ID            string `json:"id" bson:"id"`
	Handle        string `json:"handle" bson:"handle"`
	Verified      bool   `json:"verified" bson:"verified"`
	FollowerCount int    `json:"followerCount" bson:"followerCount"`
	AvatarURL     string `json:"avatarUrl,omitempty" bson:"avatarUrl,omitempty"`
}

// Evaluation is the scoring sub-record attached to a reply once scored.
// Re-running evaluation overwrites it with an equivalent result.
type Evaluation struct {
	GoalRelevance    int       `json:"goalRelevance" bson:"goalRelevance"` // 0-100 multiplier gate
	Actionability    int       `json:"actionability" bson:"actionability"`
	Specificity      int       `json:"specificity" bson:"specificity"`
	Substantiveness  int       `json:"substantiveness" bson:"substantiveness"`
	Constructiveness int       `json:"constructiveness" bson:"constructiveness"`
	WeightedScore    int       `json:"weightedScore" bson:"weightedScore"`
	Tags             []string  `json:"tags,omitempty" bson:"tags,omitempty"`
	Summary          string    `json:"summary,omitempty" bson:"summary,omitempty"`
	Included         bool      `json:"included" bson:"included"`
	EvaluatedAt      time.Time `json:"evaluatedAt" bson:"evaluatedAt"`
}

// Reply is one ingested item under a report, keyed by (reportId, replyId).
// The same external item may belong to multiple reports.
type Reply struct {
	ReportID   string      `json:"reportId" bson:"reportId"`
	ReplyID    string      `json:"replyId" bson:"replyId"` // external item id
	Author     Author      `json:"author" bson:"author"`
	Text       string      `json:"text" bson:"text"`
	PostedAt   time.Time   `json:"postedAt" bson:"postedAt"`
	EvalStatus EvalStatus  `json:"evalStatus" bson:"evalStatus"`
	Evaluation *Evaluation `json:"evaluation,omitempty" bson:"evaluation,omitempty"`
	IngestedAt time.Time   `json:"ingestedAt" bson:"ingestedAt"`
}
