package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"replypulse/internal/cache"
	"replypulse/internal/metrics"
	"replypulse/internal/model"
	"replypulse/internal/repository"
	"replypulse/internal/worker"
)

const scrapeLeaseTTL = 2 * time.Minute

// ScrapeService drives the two-phase pagination against the provider.
// Backwards phase pages through history older than oldestSeenAt and
// self-chains while pages come back full; forward phase pages newer than
// newestSeenAt, one page per supervisor tick.
type ScrapeService struct {
	reportRepo repository.ReportRepo
	replyRepo  repository.ReplyRepo
	ingest     *IngestService
	provider   ScrapeProvider
	lease      cache.LeaseCache
	queue      TaskQueue
	activity   *Activity
	pageSize   int
}

// NewScrapeService creates a new scrape service
func NewScrapeService(
	reportRepo repository.ReportRepo,
	replyRepo repository.ReplyRepo,
	ingest *IngestService,
	provider ScrapeProvider,
	lease cache.LeaseCache,
	queue TaskQueue,
	activity *Activity,
	pageSize int,
) *ScrapeService {
	return &ScrapeService{
		reportRepo: reportRepo,
		replyRepo:  replyRepo,
		ingest:     ingest,
		provider:   provider,
		lease:      lease,
		queue:      queue,
		activity:   activity,
		pageSize:   pageSize,
	}
}

// Run fetches and ingests one page for a report. Re-runnable: every guard
// re-checks current truth, so duplicate ticks and retries are harmless.
func (s *ScrapeService) Run(ctx context.Context, reportID string) error {
	start := time.Now()

	report, err := s.reportRepo.GetByID(ctx, reportID)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	if report == nil {
		return nil
	}

	// First tick moves the report into its steady state
	if report.Status == model.ReportPending {
		ok, err := s.reportRepo.TransitionStatus(ctx, reportID, model.ReportScraping, model.ReportPending)
		if err != nil {
			return err
		}
		if ok {
			report.Status = model.ReportScraping
		}
	}

	// Pre-flight: evaluation may have crossed the threshold, or the
	// supervisor may have closed the window, between scheduling and now.
	if report.Status != model.ReportScraping {
		return nil
	}
	qualified, err := s.replyRepo.CountQualified(ctx, reportID)
	if err != nil {
		return err
	}
	if qualified >= report.Config.Threshold {
		return nil
	}

	// One in-flight scrape per report
	got, err := s.lease.Acquire(ctx, reportID, scrapeLeaseTTL)
	if err != nil {
		log.Printf("[Scrape] lease check failed for report %s, proceeding: %v", reportID, err)
	} else if !got {
		return nil
	} else {
		defer s.lease.Release(context.WithoutCancel(ctx), reportID)
	}

	query := ReplyQuery{
		ConversationID: report.ConversationID,
		PageSize:       s.pageSize,
		VerifiedOnly:   report.Config.VerifiedOnly,
		MinFollowers:   report.Config.MinFollowers,
	}
	switch report.Phase {
	case model.PhaseBackwards:
		query.Until = report.OldestSeenAt
	default:
		query.Since = report.NewestSeenAt
	}

	batch, err := s.provider.ListReplies(ctx, query)
	if err != nil {
		if errors.Is(err, ErrConversationRejected) {
			return s.failReport(ctx, report, err)
		}
		return fmt.Errorf("provider fetch: %w", err)
	}
	metrics.ScrapePages.Inc()

	res, err := s.ingest.Ingest(ctx, report, batch)
	if err != nil {
		return err
	}

	if res.Oldest != nil && res.Newest != nil {
		if err := s.reportRepo.AdvanceCursors(ctx, reportID, *res.Oldest, *res.Newest); err != nil {
			return fmt.Errorf("advance cursors: %w", err)
		}
	}

	total, err := s.replyRepo.CountByReport(ctx, reportID)
	if err == nil {
		s.reportRepo.SetCounts(ctx, reportID, total, qualified)
	}

	if report.Phase == model.PhaseBackwards {
		if res.RawCount < s.pageSize {
			// History exhausted: one-way flip to incremental polling
			flipped, err := s.reportRepo.FlipToForward(ctx, reportID)
			if err != nil {
				return err
			}
			if flipped {
				s.activity.Record(ctx, reportID, model.ActivityBackfillDone,
					"Historical backfill complete, switching to live polling", nil)
			}
		} else if res.Inserted > 0 {
			// Full page with fresh rows: keep backfilling without waiting
			// for the next tick
			s.queue.Enqueue(worker.Task{Kind: worker.TaskScrape, ReportID: reportID})
		}
	}

	if res.Inserted > 0 {
		s.activity.Record(ctx, reportID, model.ActivityRepliesIngested,
			fmt.Sprintf("Collected %d new replies", res.Inserted),
			map[string]interface{}{"inserted": res.Inserted, "raw": res.RawCount})
		s.queue.Enqueue(worker.Task{Kind: worker.TaskEvaluate, ReportID: reportID})
	}

	metrics.ObserveScrapeDuration(start)
	return nil
}

// failReport marks a report terminally failed after a permanent provider
// rejection. Detailed cause goes to the activity log, not the user.
func (s *ScrapeService) failReport(ctx context.Context, report *model.Report, cause error) error {
	ok, err := s.reportRepo.TransitionStatus(ctx, report.ID, model.ReportFailed,
		model.ReportScraping, model.ReportPending, model.ReportSettingUp)
	if err != nil {
		return err
	}
	if ok {
		log.Printf("[Scrape] report %s failed permanently: %v", report.ID, cause)
		s.activity.Record(ctx, report.ID, model.ActivityReportFailed,
			"The conversation can no longer be scraped",
			map[string]interface{}{"cause": cause.Error()})
	}
	return nil
}
