package service

import (
	"context"
	"log"
	"time"

	"replypulse/internal/model"
	"replypulse/internal/repository"

	"github.com/google/uuid"
)

// Activity records the per-report progress log and pushes each entry to
// live viewers. Every write is fire-and-forget: a failed activity write
// must never fail or slow the pipeline step it describes.
type Activity struct {
	repo        repository.ActivityRepo
	broadcaster Broadcaster
}

// NewActivity creates a new activity recorder
func NewActivity(repo repository.ActivityRepo) *Activity {
	return &Activity{repo: repo}
}

// SetBroadcaster injects the WebSocket hub
func (a *Activity) SetBroadcaster(b Broadcaster) {
	a.broadcaster = b
}

// Record appends one progress entry, best effort
func (a *Activity) Record(ctx context.Context, reportID, key, message string, payload map[string]interface{}) {
	event := &model.ActivityEvent{
		ID:        uuid.New().String(),
		ReportID:  reportID,
		Key:       key,
		Message:   message,
		Payload:   payload,
		CreatedAt: time.Now(),
	}

	if a.repo != nil {
		if err := a.repo.Append(ctx, event); err != nil {
			log.Printf("[Activity] dropped event %s for report %s: %v", key, reportID, err)
		}
	}

	if a.broadcaster != nil {
		a.broadcaster.BroadcastToReport(reportID, "activity", event)
	}
}

// ReportUpdated notifies live viewers that report state changed
func (a *Activity) ReportUpdated(report *model.Report) {
	if a.broadcaster != nil {
		a.broadcaster.BroadcastToReport(report.ID, "report_updated", report)
	}
}
