package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"replypulse/internal/model"
	"replypulse/internal/worker"
)

func newSynthesisFixture(report *model.Report, scorer *fakeScorer) (*SynthesisService, *fakeReportRepo, *fakeReplyRepo, *fakeQueue) {
	reportRepo := newFakeReportRepo(report)
	replyRepo := newFakeReplyRepo()
	queue := &fakeQueue{}
	svc := NewSynthesisService(reportRepo, replyRepo, scorer, &fakeBudget{}, nil, queue, testActivity(), 2)
	return svc, reportRepo, replyRepo, queue
}

func seedQualified(replyRepo *fakeReplyRepo, reportID string, n int) {
	for i := 0; i < n; i++ {
		replyRepo.seed(&model.Reply{
			ReportID:   reportID,
			ReplyID:    "q" + string(rune('a'+i)),
			Author:     model.Author{Handle: "user"},
			Text:       "a qualified reply with enough substance",
			EvalStatus: model.EvalEvaluated,
			Evaluation: &model.Evaluation{WeightedScore: 70, Included: true},
		})
	}
}

func TestTriggerExactlyOnceUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	report := scrapingReport("rpt_1")
	report.Config.Threshold = 2

	svc, _, replyRepo, queue := newSynthesisFixture(report, &fakeScorer{})
	seedQualified(replyRepo, report.ID, 2)

	const observers = 5
	wins := make(chan bool, observers)
	var wg sync.WaitGroup
	for i := 0; i < observers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := svc.TriggerIfQualified(ctx, report.ID)
			if err != nil {
				t.Errorf("trigger: %v", err)
			}
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
	if queue.count(worker.TaskSynthesize) != 1 {
		t.Errorf("synthesize tasks = %d, want exactly 1", queue.count(worker.TaskSynthesize))
	}
}

func TestTriggerBelowThresholdNoops(t *testing.T) {
	ctx := context.Background()
	report := scrapingReport("rpt_1")
	report.Config.Threshold = 5

	svc, reportRepo, replyRepo, queue := newSynthesisFixture(report, &fakeScorer{})
	seedQualified(replyRepo, report.ID, 3)

	won, err := svc.TriggerIfQualified(ctx, report.ID)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if won {
		t.Error("trigger won below threshold")
	}
	got, _ := reportRepo.GetByID(ctx, report.ID)
	if got.Status != model.ReportScraping {
		t.Errorf("status = %s, want still scraping", got.Status)
	}
	if len(queue.tasks) != 0 {
		t.Errorf("tasks enqueued = %d, want 0", len(queue.tasks))
	}
}

func TestSynthesisRunGeneratesSummary(t *testing.T) {
	ctx := context.Background()
	report := scrapingReport("rpt_1")
	report.Status = model.ReportCompleted

	scorer := &fakeScorer{synth: &model.Summary{ExecutiveSummary: "replies want better onboarding", ReplyCount: 3}}
	svc, reportRepo, replyRepo, _ := newSynthesisFixture(report, scorer)
	seedQualified(replyRepo, report.ID, 3)

	if err := svc.Run(ctx, report.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := reportRepo.GetByID(ctx, report.ID)
	if got.SummaryStatus != model.SummaryCompleted {
		t.Errorf("summary status = %s, want completed", got.SummaryStatus)
	}
	if got.Summary == nil || got.Summary.ExecutiveSummary != "replies want better onboarding" {
		t.Errorf("summary = %+v, want the synthesized one", got.Summary)
	}
	if scorer.synthCalls != 1 {
		t.Errorf("synthesis calls = %d, want 1", scorer.synthCalls)
	}
}

func TestSynthesisRunEmptyQualifiedUsesPlaceholder(t *testing.T) {
	ctx := context.Background()
	report := scrapingReport("rpt_1")
	report.Status = model.ReportCompleted

	scorer := &fakeScorer{}
	svc, reportRepo, _, _ := newSynthesisFixture(report, scorer)

	if err := svc.Run(ctx, report.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := reportRepo.GetByID(ctx, report.ID)
	if got.SummaryStatus != model.SummaryCompleted {
		t.Errorf("summary status = %s, want completed", got.SummaryStatus)
	}
	if got.Summary == nil || got.Summary.ExecutiveSummary == "" {
		t.Error("placeholder summary missing")
	}
	if scorer.synthCalls != 0 {
		t.Errorf("synthesis calls = %d, want 0 with no qualified replies", scorer.synthCalls)
	}
}

func TestSynthesisRunFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	report := scrapingReport("rpt_1")
	report.Status = model.ReportCompleted

	scorer := &fakeScorer{synthErr: errors.New("model unavailable")}
	svc, reportRepo, replyRepo, _ := newSynthesisFixture(report, scorer)
	seedQualified(replyRepo, report.ID, 2)

	if err := svc.Run(ctx, report.ID); err == nil {
		t.Fatal("run succeeded, want error for the retry layer")
	}

	got, _ := reportRepo.GetByID(ctx, report.ID)
	if got.SummaryStatus != model.SummaryFailed {
		t.Errorf("summary status = %s, want failed", got.SummaryStatus)
	}
	if got.Status != model.ReportCompleted {
		t.Errorf("report status = %s, must stay completed", got.Status)
	}
}

func TestSynthesisRunSkipsCompletedSummary(t *testing.T) {
	ctx := context.Background()
	report := scrapingReport("rpt_1")
	report.Status = model.ReportCompleted
	report.SummaryStatus = model.SummaryCompleted

	scorer := &fakeScorer{}
	svc, _, replyRepo, _ := newSynthesisFixture(report, scorer)
	seedQualified(replyRepo, report.ID, 2)

	if err := svc.Run(ctx, report.ID); err != nil {
		t.Fatalf("run: %v", err)
	}
	if scorer.synthCalls != 0 {
		t.Errorf("synthesis calls = %d, want 0 for a finished summary", scorer.synthCalls)
	}
}
