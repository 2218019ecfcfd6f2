package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"replypulse/internal/metrics"
	"replypulse/internal/model"
	"replypulse/internal/repository"
	"replypulse/internal/util"
)

// knownBotHandles are authors whose replies are always discarded
var knownBotHandles = map[string]bool{
	"threadreaderapp": true,
	"grok":            true,
	"readwiseio":      true,
	"savetovideo":     true,
}

// IngestResult is the outcome of ingesting one raw provider batch
type IngestResult struct {
	Inserted int // rows that actually landed
	RawCount int // all items in the batch, placeholders included

	// Cursor extrema over the full raw batch, not just survivors:
	// pagination must advance even when every item was filtered out.
	Oldest *time.Time
	Newest *time.Time
}

// IngestService turns a raw provider batch into inserted reply rows:
// placeholder and bot filtering, defensive re-application of the provider
// filters, meaningful-length check, dedup, then insert-ignore-conflict.
type IngestService struct {
	replyRepo repository.ReplyRepo
}

// NewIngestService creates a new ingest service
func NewIngestService(replyRepo repository.ReplyRepo) *IngestService {
	return &IngestService{replyRepo: replyRepo}
}

// Ingest processes one raw batch for a report. Safe to re-run with the same
// batch: already-present rows are skipped, not errors.
func (s *IngestService) Ingest(ctx context.Context, report *model.Report, batch []ProviderItem) (*IngestResult, error) {
	res := &IngestResult{RawCount: len(batch)}

	candidates := make([]*model.Reply, 0, len(batch))
	seen := make(map[string]bool, len(batch))
	ids := make([]string, 0, len(batch))

	for _, item := range batch {
		// Cursor extrema come from every raw item with a real timestamp
		if !item.CreatedAt.IsZero() {
			t := item.CreatedAt
			if res.Oldest == nil || t.Before(*res.Oldest) {
				res.Oldest = &t
			}
			if res.Newest == nil || t.After(*res.Newest) {
				res.Newest = &t
			}
		}

		if isPlaceholder(item) {
			continue
		}
		if knownBotHandles[item.Author.Handle] {
			continue
		}

		// Provider-side filters re-checked here; pushdown is best effort
		if report.Config.VerifiedOnly && !item.Author.Verified {
			continue
		}
		if item.Author.FollowerCount < report.Config.MinFollowers {
			continue
		}
		if util.MeaningfulLength(item.Text) < report.Config.MinLength {
			continue
		}

		// In-batch dedup: providers repeat items across page boundaries
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true

		candidates = append(candidates, &model.Reply{
			ReportID:   report.ID,
			ReplyID:    item.ID,
			Author:     item.Author,
			Text:       item.Text,
			PostedAt:   item.CreatedAt,
			EvalStatus: model.EvalPending,
		})
		ids = append(ids, item.ID)
	}

	if len(candidates) == 0 {
		return res, nil
	}

	// Cheap pre-pass to shrink the insert; the unique index is what
	// actually guarantees no duplicates under concurrency.
	existing, err := s.replyRepo.ExistingIDs(ctx, report.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("existing-id check failed: %w", err)
	}

	fresh := candidates[:0]
	for _, c := range candidates {
		if !existing[c.ReplyID] {
			fresh = append(fresh, c)
		}
	}

	if len(fresh) == 0 {
		return res, nil
	}

	inserted, err := s.replyRepo.InsertIgnoreDuplicates(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("insert failed: %w", err)
	}

	res.Inserted = inserted
	metrics.RepliesIngested.Add(float64(inserted))
	log.Printf("[Ingest] report %s: %d raw -> %d inserted", report.ID, res.RawCount, inserted)
	return res, nil
}

// isPlaceholder spots provider-injected non-content rows
func isPlaceholder(item ProviderItem) bool {
	if item.ID == "" || item.Text == "" {
		return true
	}
	return item.Type != "" && item.Type != "reply"
}
