package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"replypulse/internal/cache"
	"replypulse/internal/metrics"
	"replypulse/internal/model"
	"replypulse/internal/repository"
	"replypulse/internal/worker"
)

// SynthesisService owns the threshold-to-summary handoff and the summary
// generation itself. The compare-and-set on report status is what makes the
// handoff exactly-once: any number of evaluation batches can observe the
// crossing, only one wins the transition.
type SynthesisService struct {
	reportRepo repository.ReportRepo
	replyRepo  repository.ReplyRepo
	scorer     Scorer
	budget     cache.BudgetCache
	publisher  Publisher
	queue      TaskQueue
	activity   *Activity

	budgetPerMinute int
}

// NewSynthesisService creates a new synthesis service
func NewSynthesisService(
	reportRepo repository.ReportRepo,
	replyRepo repository.ReplyRepo,
	scorer Scorer,
	budget cache.BudgetCache,
	publisher Publisher,
	queue TaskQueue,
	activity *Activity,
	budgetPerMinute int,
) *SynthesisService {
	return &SynthesisService{
		reportRepo:      reportRepo,
		replyRepo:       replyRepo,
		scorer:          scorer,
		budget:          budget,
		publisher:       publisher,
		queue:           queue,
		activity:        activity,
		budgetPerMinute: budgetPerMinute,
	}
}

// TriggerIfQualified ends scraping and requests synthesis once the report
// has enough qualified replies. Returns true only for the single caller
// that wins the status transition; every other concurrent observer sees an
// already-completed report and no-ops.
func (s *SynthesisService) TriggerIfQualified(ctx context.Context, reportID string) (bool, error) {
	report, err := s.reportRepo.GetByID(ctx, reportID)
	if err != nil {
		return false, err
	}
	if report == nil || report.Status != model.ReportScraping {
		return false, nil
	}

	qualified, err := s.replyRepo.CountQualified(ctx, reportID)
	if err != nil {
		return false, err
	}
	if qualified < report.Config.Threshold {
		return false, nil
	}

	won, err := s.reportRepo.TransitionStatus(ctx, reportID, model.ReportCompleted, model.ReportScraping)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	log.Printf("[Synthesis] report %s reached threshold (%d qualified)", reportID, qualified)
	s.activity.Record(ctx, reportID, model.ActivityThresholdReached,
		fmt.Sprintf("Collected %d qualified replies, generating report", qualified),
		map[string]interface{}{"qualified": qualified})

	s.queue.Enqueue(worker.Task{Kind: worker.TaskSynthesize, ReportID: reportID})
	return true, nil
}

// Run generates the summary for a completed report. Re-runnable: a summary
// that already completed is left alone, and a crashed generating attempt is
// picked up again by the retry layer.
func (s *SynthesisService) Run(ctx context.Context, reportID string) error {
	report, err := s.reportRepo.GetByID(ctx, reportID)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	if report == nil || report.SummaryStatus == model.SummaryCompleted {
		return nil
	}

	// generating is included so a retried task can resume its own claim
	ok, err := s.reportRepo.TransitionSummaryStatus(ctx, reportID, model.SummaryGenerating,
		model.SummaryPending, model.SummaryFailed, model.SummaryGenerating)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	qualified, err := s.replyRepo.ListQualified(ctx, reportID)
	if err != nil {
		return s.markFailed(ctx, reportID, err)
	}

	// No signal: degrade to the minimal placeholder without a service call
	if len(qualified) == 0 {
		if err := s.reportRepo.SaveSummary(ctx, reportID, model.PlaceholderSummary(time.Now())); err != nil {
			return s.markFailed(ctx, reportID, err)
		}
		s.reportRepo.TransitionSummaryStatus(ctx, reportID, model.SummaryCompleted, model.SummaryGenerating)
		s.activity.Record(ctx, reportID, model.ActivitySummaryReady,
			"Report closed without enough signal for a full summary", nil)
		return nil
	}

	req := model.SynthesisRequest{
		PostText:     report.PostText,
		Goal:         report.Goal,
		AudienceHint: report.Config.AudienceHint,
		Replies:      make([]model.QualifiedReply, 0, len(qualified)),
	}
	for _, r := range qualified {
		qr := model.QualifiedReply{Handle: r.Author.Handle, Text: r.Text}
		if r.Evaluation != nil {
			qr.WeightedScore = r.Evaluation.WeightedScore
			qr.Tags = r.Evaluation.Tags
			qr.Summary = r.Evaluation.Summary
		}
		req.Replies = append(req.Replies, qr)
	}

	// The synthesis model is expensive; its budget is near-serial
	if err := s.waitForBudget(ctx); err != nil {
		return s.markFailed(ctx, reportID, err)
	}

	metrics.SynthesisCalls.Inc()
	summary, err := s.scorer.SynthesizeReport(ctx, req)
	if err != nil {
		return s.markFailed(ctx, reportID, err)
	}

	if err := s.reportRepo.SaveSummary(ctx, reportID, summary); err != nil {
		return s.markFailed(ctx, reportID, err)
	}
	s.reportRepo.TransitionSummaryStatus(ctx, reportID, model.SummaryCompleted, model.SummaryGenerating)
	s.activity.Record(ctx, reportID, model.ActivitySummaryReady,
		fmt.Sprintf("Summary ready, built from %d qualified replies", len(qualified)), nil)

	s.publish(ctx, report, summary)
	return nil
}

func (s *SynthesisService) waitForBudget(ctx context.Context) error {
	for {
		ok, err := s.budget.TryAcquire(ctx, cache.ResourceSynthesis, s.budgetPerMinute, budgetWindow)
		if err != nil {
			log.Printf("[Synthesis] budget check failed, proceeding: %v", err)
			return nil
		}
		if ok {
			return nil
		}
		metrics.IncBudgetDenied(cache.ResourceSynthesis)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(budgetRecheck):
		}
	}
}

// markFailed flips the summary sub-status and propagates the error so the
// retry layer can try again. Report status stays completed either way.
func (s *SynthesisService) markFailed(ctx context.Context, reportID string, cause error) error {
	s.reportRepo.TransitionSummaryStatus(ctx, reportID, model.SummaryFailed, model.SummaryGenerating)
	s.activity.Record(ctx, reportID, model.ActivitySummaryFailed,
		"Summary generation failed", map[string]interface{}{"cause": cause.Error()})
	return fmt.Errorf("synthesis for report %s: %w", reportID, cause)
}

// publish optionally posts the executive summary back to the conversation.
// Best effort only.
func (s *SynthesisService) publish(ctx context.Context, report *model.Report, summary *model.Summary) {
	if s.publisher == nil || !s.publisher.Enabled() {
		return
	}
	if err := s.publisher.PublishSummary(ctx, report.ConversationID, summary.ExecutiveSummary); err != nil {
		log.Printf("[Synthesis] publish for report %s failed: %v", report.ID, err)
		s.activity.Record(ctx, report.ID, model.ActivityPublishFailed,
			"Could not post the summary reply", map[string]interface{}{"cause": err.Error()})
		return
	}
	s.activity.Record(ctx, report.ID, model.ActivityPublished,
		"Posted the summary as a reply to the original conversation", nil)
}
