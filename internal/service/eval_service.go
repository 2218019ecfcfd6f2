package service

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"replypulse/internal/cache"
	"replypulse/internal/metrics"
	"replypulse/internal/model"
	"replypulse/internal/repository"
	"replypulse/internal/util"
	"replypulse/internal/worker"

	"golang.org/x/sync/errgroup"
)

// Scorer is the contract of the external scoring/synthesis service
type Scorer interface {
	ScoreReply(ctx context.Context, req model.ScoreRequest) (*model.ScoreResult, error)
	SynthesizeReport(ctx context.Context, req model.SynthesisRequest) (*model.Summary, error)
}

const (
	budgetWindow    = time.Minute
	budgetRecheck   = 2 * time.Second
	scoringParallel = 4 // concurrent scoring calls within one batch
)

// EvalService scores pending replies in fixed-size batches under the global
// scoring budget. Batches across all reports draw from that one budget;
// batches for the same report may complete out of order, which is fine
// because the threshold decision re-derives the qualified count from rows.
type EvalService struct {
	reportRepo repository.ReportRepo
	replyRepo  repository.ReplyRepo
	scorer     Scorer
	budget     cache.BudgetCache
	queue      TaskQueue
	activity   *Activity
	synthesis  *SynthesisService

	batchSize       int
	budgetPerMinute int
}

// NewEvalService creates a new evaluation service
func NewEvalService(
	reportRepo repository.ReportRepo,
	replyRepo repository.ReplyRepo,
	scorer Scorer,
	budget cache.BudgetCache,
	queue TaskQueue,
	activity *Activity,
	synthesis *SynthesisService,
	batchSize int,
	budgetPerMinute int,
) *EvalService {
	return &EvalService{
		reportRepo:      reportRepo,
		replyRepo:       replyRepo,
		scorer:          scorer,
		budget:          budget,
		queue:           queue,
		activity:        activity,
		synthesis:       synthesis,
		batchSize:       batchSize,
		budgetPerMinute: budgetPerMinute,
	}
}

// Run evaluates one batch of pending replies for a report. Idempotent under
// at-least-once delivery: re-evaluating an evaluated reply overwrites with
// an equivalent result, and failed replies drop back to pending.
func (s *EvalService) Run(ctx context.Context, reportID string) error {
	report, err := s.reportRepo.GetByID(ctx, reportID)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	if report == nil || report.Status != model.ReportScraping {
		return nil
	}

	// Early exit: a sibling batch may already have satisfied the threshold
	qualified, err := s.replyRepo.CountQualified(ctx, reportID)
	if err != nil {
		return err
	}
	if qualified >= report.Config.Threshold {
		_, err := s.synthesis.TriggerIfQualified(ctx, reportID)
		return err
	}

	batch, err := s.replyRepo.ListPending(ctx, reportID, s.batchSize)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	ids := make([]string, len(batch))
	for i, r := range batch {
		ids[i] = r.ReplyID
	}
	if err := s.replyRepo.MarkEvaluating(ctx, reportID, ids); err != nil {
		return err
	}

	// Too-short replies are excluded locally, no external call
	toScore := batch[:0]
	for _, reply := range batch {
		if util.MeaningfulLength(reply.Text) < report.Config.MinLength {
			eval := &model.Evaluation{Included: false, EvaluatedAt: time.Now()}
			if err := s.replyRepo.SaveEvaluation(ctx, reportID, reply.ReplyID, eval); err != nil {
				log.Printf("[Eval] failed to persist pre-filter result for %s: %v", reply.ReplyID, err)
				if rerr := s.replyRepo.ResetToPending(context.WithoutCancel(ctx), reportID, []string{reply.ReplyID}); rerr != nil {
					log.Printf("[Eval] could not release claim on %s: %v", reply.ReplyID, rerr)
				}
			}
			continue
		}
		toScore = append(toScore, reply)
	}

	if len(toScore) > 0 {
		proceed, err := s.waitForBudget(ctx, reportID, report.Config.Threshold, toScore)
		if err != nil {
			return err
		}
		if !proceed {
			// The report left scraping or a sibling crossed the threshold
			// while this batch waited; its claims are already released.
			return nil
		}
		s.scoreBatch(ctx, report, toScore)
	}
	metrics.EvalBatches.Inc()

	// Re-derive from rows, never trust the incremental path
	qualified, err = s.replyRepo.CountQualified(ctx, reportID)
	if err != nil {
		return err
	}
	total, err := s.replyRepo.CountByReport(ctx, reportID)
	if err != nil {
		return err
	}
	if err := s.reportRepo.SetCounts(ctx, reportID, total, qualified); err != nil {
		return err
	}

	// Activity entries are observability, not state; if the threshold
	// handoff below errors and the task retries, this entry repeats.
	s.activity.Record(ctx, reportID, model.ActivityBatchScored,
		fmt.Sprintf("Scored a batch of %d replies (%d/%d qualified)", len(batch), qualified, report.Config.Threshold),
		map[string]interface{}{"batch": len(batch), "qualified": qualified, "threshold": report.Config.Threshold})

	if qualified >= report.Config.Threshold {
		_, err := s.synthesis.TriggerIfQualified(ctx, reportID)
		return err
	}

	// More work waiting: chain the next batch instead of holding this task
	remaining, err := s.replyRepo.CountPending(ctx, reportID)
	if err == nil && remaining > 0 {
		s.queue.Enqueue(worker.Task{Kind: worker.TaskEvaluate, ReportID: reportID})
	}
	return nil
}

// waitForBudget blocks until the shared scoring window admits one batch
// unit. While waiting it re-checks report state; if the report left
// scraping or the threshold was met, the claimed replies are released and
// the batch is abandoned. Returns false when the caller must not score.
func (s *EvalService) waitForBudget(ctx context.Context, reportID string, threshold int, claimed []*model.Reply) (bool, error) {
	for {
		ok, err := s.budget.TryAcquire(ctx, cache.ResourceScoring, s.budgetPerMinute, budgetWindow)
		if err != nil {
			// A broken budget store should not stall evaluation forever
			log.Printf("[Eval] budget check failed, proceeding: %v", err)
			return true, nil
		}
		if ok {
			return true, nil
		}
		metrics.IncBudgetDenied(cache.ResourceScoring)

		report, err := s.reportRepo.GetByID(ctx, reportID)
		if err != nil {
			s.release(context.WithoutCancel(ctx), reportID, claimed)
			return false, err
		}
		qualified, err := s.replyRepo.CountQualified(ctx, reportID)
		if err != nil {
			s.release(context.WithoutCancel(ctx), reportID, claimed)
			return false, err
		}
		if report == nil || report.Status != model.ReportScraping || qualified >= threshold {
			return false, s.release(ctx, reportID, claimed)
		}

		select {
		case <-ctx.Done():
			s.release(context.WithoutCancel(ctx), reportID, claimed)
			return false, ctx.Err()
		case <-time.After(budgetRecheck):
		}
	}
}

// scoreBatch fans the batch out to the scoring service. Per-reply failures
// are isolated: the reply drops back to pending for the retry layer while
// its siblings proceed.
func (s *EvalService) scoreBatch(ctx context.Context, report *model.Report, batch []*model.Reply) {
	var failures int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scoringParallel)

	for _, reply := range batch {
		reply := reply
		g.Go(func() error {
			result, err := s.scorer.ScoreReply(gctx, model.ScoreRequest{
				PostText:     report.PostText,
				Goal:         report.Goal,
				AudienceHint: report.Config.AudienceHint,
				ReplyText:    reply.Text,
				Author:       reply.Author,
			})
			if err != nil {
				atomic.AddInt64(&failures, 1)
				metrics.EvalFailures.Inc()
				log.Printf("[Eval] scoring %s failed, re-queueing: %v", reply.ReplyID, err)
				// The failure may be the task context dying; release the
				// claim on a context that outlives it or the row stays
				// stuck in evaluating forever.
				if rerr := s.replyRepo.ResetToPending(context.WithoutCancel(gctx), report.ID, []string{reply.ReplyID}); rerr != nil {
					log.Printf("[Eval] could not release claim on %s: %v", reply.ReplyID, rerr)
				}
				return nil
			}

			eval := buildEvaluation(result, report.Config.Weights)
			if err := s.replyRepo.SaveEvaluation(gctx, report.ID, reply.ReplyID, eval); err != nil {
				log.Printf("[Eval] persist for %s failed, re-queueing: %v", reply.ReplyID, err)
				if rerr := s.replyRepo.ResetToPending(context.WithoutCancel(gctx), report.ID, []string{reply.ReplyID}); rerr != nil {
					log.Printf("[Eval] could not release claim on %s: %v", reply.ReplyID, rerr)
				}
			}
			return nil
		})
	}
	g.Wait()

	if n := atomic.LoadInt64(&failures); n > 0 {
		log.Printf("[Eval] report %s: %d/%d scoring calls failed this batch", report.ID, n, len(batch))
	}
}

// buildEvaluation applies the local scoring policy to the service's raw
// output: an out-of-range score is clamped, the weighted score is computed
// here (not delegated), and a reply below the relevance floor is never
// included no matter what the service said.
func buildEvaluation(result *model.ScoreResult, weights model.EvalWeights) *model.Evaluation {
	result.ClampScores()
	included := result.Include && result.GoalRelevance >= weights.MinRelevance

	return &model.Evaluation{
		GoalRelevance:    result.GoalRelevance,
		Actionability:    result.Actionability,
		Specificity:      result.Specificity,
		Substantiveness:  result.Substantiveness,
		Constructiveness: result.Constructiveness,
		WeightedScore:    model.ComputeWeightedScore(*result, weights),
		Tags:             result.Tags,
		Summary:          result.Summary,
		Included:         included,
		EvaluatedAt:      time.Now(),
	}
}

func (s *EvalService) release(ctx context.Context, reportID string, claimed []*model.Reply) error {
	ids := make([]string, len(claimed))
	for i, r := range claimed {
		ids[i] = r.ReplyID
	}
	return s.replyRepo.ResetToPending(ctx, reportID, ids)
}
