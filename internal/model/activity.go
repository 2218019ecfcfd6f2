package model

import "time"

// Activity event keys emitted by the pipeline
const (
	ActivitySetupDone        = "setup_done"
	ActivityScrapeTick       = "scrape_tick"
	ActivityRepliesIngested  = "replies_ingested"
	ActivityBackfillDone     = "backfill_done"
	ActivityBatchScored      = "batch_scored"
	ActivityThresholdReached = "threshold_reached"
	ActivityWindowClosed     = "window_closed"
	ActivitySummaryReady     = "summary_ready"
	ActivitySummaryFailed    = "summary_failed"
	ActivityReportFailed     = "report_failed"
	ActivityPublished        = "published"
	ActivityPublishFailed    = "publish_failed"
	ActivityTaskExhausted    = "task_exhausted"
)

// ActivityEvent is one append-only, human-readable progress entry for a
// report. Purely observability: written best-effort, never authoritative.
type ActivityEvent struct {
	ID        string                 `json:"id" bson:"_id"`
	ReportID  string                 `json:"reportId" bson:"reportId"`
	Key       string                 `json:"key" bson:"key"`
	Message   string                 `json:"message" bson:"message"`
	Payload   map[string]interface{} `json:"payload,omitempty" bson:"payload,omitempty"`
	CreatedAt time.Time              `json:"createdAt" bson:"createdAt"`
}
