package model

import (
	"errors"
	"time"
)

// ReportStatus is the scraping lifecycle state of a report
type ReportStatus string

const (
	ReportSettingUp ReportStatus = "setting_up" // fetching the root post
	ReportPending   ReportStatus = "pending"    // waiting for the first scrape tick
	ReportScraping  ReportStatus = "scraping"   // steady state: ingest + evaluate loop
	ReportCompleted ReportStatus = "completed"
	ReportFailed    ReportStatus = "failed"
)

// SummaryStatus tracks summary generation independently of scraping
type SummaryStatus string

const (
	SummaryPending    SummaryStatus = "pending"
	SummaryGenerating SummaryStatus = "generating"
	SummaryCompleted  SummaryStatus = "completed"
	SummaryFailed     SummaryStatus = "failed"
)

// ScrapePhase selects which cursor drives the next page fetch
type ScrapePhase string

const (
	PhaseBackwards ScrapePhase = "backwards" // historical backfill, self-chains
	PhaseForward   ScrapePhase = "forward"   // incremental, one page per tick
)

const (
	MaxThreshold = 250
	MaxScore     = 100
)

var (
	ErrInvalidThreshold  = errors.New("threshold must be between 1 and 250")
	ErrInvalidWeights    = errors.New("weights must be non-negative with a positive sum")
	ErrInvalidRelevance  = errors.New("minimum relevance must be between 0 and 100")
	ErrInvalidMinLength  = errors.New("minimum length must not be negative")
	ErrInvalidFollowers  = errors.New("minimum followers must not be negative")
	ErrMissingGoal       = errors.New("goal is required")
	ErrMissingConversation = errors.New("conversation id is required")
)

// EvalWeights are the four quality-dimension weights plus the relevance floor
type EvalWeights struct {
	Actionability    int `json:"actionability" bson:"actionability"`
	Specificity      int `json:"specificity" bson:"specificity"`
	Substantiveness  int `json:"substantiveness" bson:"substantiveness"`
	Constructiveness int `json:"constructiveness" bson:"constructiveness"`
	MinRelevance     int `json:"minRelevance" bson:"minRelevance"` // replies below this are never included
}

// Sum returns the total dimension weight
func (w EvalWeights) Sum() int {
	return w.Actionability + w.Specificity + w.Substantiveness + w.Constructiveness
}

// DefaultWeights weighs all four dimensions equally with a 35-point relevance floor
func DefaultWeights() EvalWeights {
	return EvalWeights{
		Actionability:    25,
		Specificity:      25,
		Substantiveness:  25,
		Constructiveness: 25,
		MinRelevance:     35,
	}
}

// ReportConfig is the per-report collection and scoring configuration
type ReportConfig struct {
	Threshold    int         `json:"threshold" bson:"threshold"`       // qualified replies needed, 1..250
	MinLength    int         `json:"minLength" bson:"minLength"`       // meaningful text length
	VerifiedOnly bool        `json:"verifiedOnly" bson:"verifiedOnly"`
	MinFollowers int         `json:"minFollowers" bson:"minFollowers"`
	Weights      EvalWeights `json:"weights" bson:"weights"`
	AudienceHint string      `json:"audienceHint,omitempty" bson:"audienceHint,omitempty"`
}

// Validate rejects malformed configuration before it enters the pipeline
func (c ReportConfig) Validate() error {
	if c.Threshold < 1 || c.Threshold > MaxThreshold {
		return ErrInvalidThreshold
	}
	w := c.Weights
	if w.Actionability < 0 || w.Specificity < 0 || w.Substantiveness < 0 || w.Constructiveness < 0 || w.Sum() <= 0 {
		return ErrInvalidWeights
	}
	if w.MinRelevance < 0 || w.MinRelevance > MaxScore {
		return ErrInvalidRelevance
	}
	if c.MinLength < 0 {
		return ErrInvalidMinLength
	}
	if c.MinFollowers < 0 {
		return ErrInvalidFollowers
	}
	return nil
}

// Report is one monitored post and its collection/evaluation job
type Report struct {
	ID             string       `json:"id" bson:"_id"`
	OwnerID        string       `json:"ownerId" bson:"ownerId"`
	ConversationID string       `json:"conversationId" bson:"conversationId"` // external post id
	Goal           string       `json:"goal" bson:"goal"`
	PostText       string       `json:"postText,omitempty" bson:"postText,omitempty"`
	PostAuthor     string       `json:"postAuthor,omitempty" bson:"postAuthor,omitempty"`
	Status         ReportStatus `json:"status" bson:"status"`
	SummaryStatus  SummaryStatus `json:"summaryStatus" bson:"summaryStatus"`
	Phase          ScrapePhase  `json:"phase" bson:"phase"`

	// Pagination cursors. oldestSeenAt only ever decreases, newestSeenAt
	// only ever increases; nil until the first batch lands.
	OldestSeenAt *time.Time `json:"oldestSeenAt,omitempty" bson:"oldestSeenAt,omitempty"`
	NewestSeenAt *time.Time `json:"newestSeenAt,omitempty" bson:"newestSeenAt,omitempty"`

	// Display counters. The authority for qualifiedCount is re-counting
	// qualified reply rows, never this field.
	ScrapedCount   int `json:"scrapedCount" bson:"scrapedCount"`
	QualifiedCount int `json:"qualifiedCount" bson:"qualifiedCount"`

	Config  ReportConfig `json:"config" bson:"config"`
	Summary *Summary     `json:"summary,omitempty" bson:"summary,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Age returns wall-clock time since report creation
func (r *Report) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}
