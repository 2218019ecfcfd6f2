package service

import (
	"context"
	"testing"
	"time"

	"replypulse/internal/model"
	"replypulse/internal/worker"
)

func newScrapeFixture(pageSize int, report *model.Report, provider *fakeProvider) (*ScrapeService, *fakeReportRepo, *fakeReplyRepo, *fakeQueue) {
	reportRepo := newFakeReportRepo(report)
	replyRepo := newFakeReplyRepo()
	queue := &fakeQueue{}
	svc := NewScrapeService(reportRepo, replyRepo, NewIngestService(replyRepo),
		provider, fakeLease{}, queue, testActivity(), pageSize)
	return svc, reportRepo, replyRepo, queue
}

func TestScrapeFirstTickStartsScraping(t *testing.T) {
	ctx := context.Background()
	report := scrapingReport("rpt_1")
	report.Status = model.ReportPending
	provider := &fakeProvider{}

	svc, reportRepo, _, _ := newScrapeFixture(10, report, provider)
	if err := svc.Run(ctx, report.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := reportRepo.GetByID(ctx, report.ID)
	if got.Status != model.ReportScraping {
		t.Errorf("status = %s, want scraping", got.Status)
	}
}

func TestScrapeSkipsWhenThresholdMet(t *testing.T) {
	ctx := context.Background()
	report := scrapingReport("rpt_1")
	provider := &fakeProvider{pages: [][]ProviderItem{{item("r1", "alice", "should never be fetched at all", time.Now())}}}

	svc, _, replyRepo, _ := newScrapeFixture(10, report, provider)
	for i := 0; i < report.Config.Threshold; i++ {
		replyRepo.seed(&model.Reply{
			ReportID:   report.ID,
			ReplyID:    "q" + string(rune('0'+i)),
			EvalStatus: model.EvalEvaluated,
			Evaluation: &model.Evaluation{Included: true},
		})
	}

	if err := svc.Run(ctx, report.ID); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(provider.calls) != 0 {
		t.Errorf("provider called %d times, want 0", len(provider.calls))
	}
}

func TestScrapeBackwardsSelfChainsOnFullPage(t *testing.T) {
	ctx := context.Background()
	report := scrapingReport("rpt_1")
	now := time.Now()
	provider := &fakeProvider{pages: [][]ProviderItem{{
		item("r1", "alice", "first piece of real feedback here", now.Add(-time.Hour)),
		item("r2", "bob", "second piece of real feedback here", now.Add(-2*time.Hour)),
	}}}

	svc, reportRepo, _, queue := newScrapeFixture(2, report, provider)
	if err := svc.Run(ctx, report.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	if queue.count(worker.TaskScrape) != 1 {
		t.Errorf("scrape chain tasks = %d, want 1", queue.count(worker.TaskScrape))
	}
	if queue.count(worker.TaskEvaluate) != 1 {
		t.Errorf("evaluate tasks = %d, want 1", queue.count(worker.TaskEvaluate))
	}

	got, _ := reportRepo.GetByID(ctx, report.ID)
	if got.Phase != model.PhaseBackwards {
		t.Errorf("phase = %s, want backwards after a full page", got.Phase)
	}
}

func TestScrapeFlipsForwardOnShortPage(t *testing.T) {
	ctx := context.Background()
	report := scrapingReport("rpt_1")
	now := time.Now()
	provider := &fakeProvider{pages: [][]ProviderItem{{
		item("r1", "alice", "the only remaining historical reply", now.Add(-time.Hour)),
	}}}

	svc, reportRepo, _, queue := newScrapeFixture(10, report, provider)
	if err := svc.Run(ctx, report.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := reportRepo.GetByID(ctx, report.ID)
	if got.Phase != model.PhaseForward {
		t.Errorf("phase = %s, want forward after a short page", got.Phase)
	}
	if queue.count(worker.TaskScrape) != 0 {
		t.Errorf("scrape chain tasks = %d, want 0 after flipping forward", queue.count(worker.TaskScrape))
	}
}

func TestScrapeQueriesByPhaseCursor(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	oldest := now.Add(-3 * time.Hour)
	newest := now.Add(-time.Hour)

	report := scrapingReport("rpt_1")
	report.OldestSeenAt = &oldest
	report.NewestSeenAt = &newest

	provider := &fakeProvider{}
	svc, reportRepo, _, _ := newScrapeFixture(10, report, provider)

	if err := svc.Run(ctx, report.ID); err != nil {
		t.Fatalf("backwards run: %v", err)
	}
	if len(provider.calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(provider.calls))
	}
	q := provider.calls[0]
	if q.Until == nil || !q.Until.Equal(oldest) {
		t.Errorf("backwards query until = %v, want %v", q.Until, oldest)
	}
	if q.Since != nil {
		t.Errorf("backwards query since = %v, want nil", q.Since)
	}

	reportRepo.FlipToForward(ctx, report.ID)
	if err := svc.Run(ctx, report.ID); err != nil {
		t.Fatalf("forward run: %v", err)
	}
	q = provider.calls[1]
	if q.Since == nil || !q.Since.Equal(newest) {
		t.Errorf("forward query since = %v, want %v", q.Since, newest)
	}
	if q.Until != nil {
		t.Errorf("forward query until = %v, want nil", q.Until)
	}
}

func TestScrapeCursorsOnlyWiden(t *testing.T) {
	ctx := context.Background()
	report := scrapingReport("rpt_1")
	now := time.Now()

	outerOld := now.Add(-5 * time.Hour)
	outerNew := now.Add(-time.Hour)
	provider := &fakeProvider{pages: [][]ProviderItem{
		{
			item("r1", "alice", "earliest reply within this window", outerOld),
			item("r2", "bob", "newest reply within this window yet", outerNew),
		},
		{
			// Strictly inside the already-seen range: cursors must not move
			item("r3", "carol", "a reply from the middle of the range", now.Add(-3*time.Hour)),
		},
	}}

	svc, reportRepo, _, _ := newScrapeFixture(10, report, provider)
	if err := svc.Run(ctx, report.ID); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := svc.Run(ctx, report.ID); err != nil {
		t.Fatalf("second run: %v", err)
	}

	got, _ := reportRepo.GetByID(ctx, report.ID)
	if got.OldestSeenAt == nil || !got.OldestSeenAt.Equal(outerOld) {
		t.Errorf("oldestSeenAt = %v, want %v", got.OldestSeenAt, outerOld)
	}
	if got.NewestSeenAt == nil || !got.NewestSeenAt.Equal(outerNew) {
		t.Errorf("newestSeenAt = %v, want %v", got.NewestSeenAt, outerNew)
	}
}

func TestScrapeRejectedConversationFailsReport(t *testing.T) {
	ctx := context.Background()
	report := scrapingReport("rpt_1")
	provider := &fakeProvider{err: ErrConversationRejected}

	svc, reportRepo, _, _ := newScrapeFixture(10, report, provider)
	if err := svc.Run(ctx, report.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := reportRepo.GetByID(ctx, report.ID)
	if got.Status != model.ReportFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestScrapeIgnoresCompletedReport(t *testing.T) {
	ctx := context.Background()
	report := scrapingReport("rpt_1")
	report.Status = model.ReportCompleted
	provider := &fakeProvider{}

	svc, _, _, queue := newScrapeFixture(10, report, provider)
	if err := svc.Run(ctx, report.ID); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(provider.calls) != 0 || len(queue.tasks) != 0 {
		t.Error("completed report still produced provider calls or tasks")
	}
}
