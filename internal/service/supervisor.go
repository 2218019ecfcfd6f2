package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"replypulse/internal/model"
	"replypulse/internal/repository"
	"replypulse/internal/worker"

	"github.com/robfig/cron/v3"
)

// Supervisor is the recurring sweep over every non-terminal report: it
// re-arms scraping, re-arms stuck setups, and enforces the absolute
// monitoring window. The sweep only proposes work; each downstream task
// re-verifies state at execution time.
type Supervisor struct {
	reportRepo repository.ReportRepo
	replyRepo  repository.ReplyRepo
	queue      TaskQueue
	activity   *Activity

	cron          *cron.Cron
	sweepInterval time.Duration
	window        time.Duration
	setupGrace    time.Duration
}

// NewSupervisor creates a new supervisor
func NewSupervisor(
	reportRepo repository.ReportRepo,
	replyRepo repository.ReplyRepo,
	queue TaskQueue,
	activity *Activity,
	sweepInterval, window, setupGrace time.Duration,
) *Supervisor {
	return &Supervisor{
		reportRepo:    reportRepo,
		replyRepo:     replyRepo,
		queue:         queue,
		activity:      activity,
		cron:          cron.New(),
		sweepInterval: sweepInterval,
		window:        window,
		setupGrace:    setupGrace,
	}
}

// Start schedules the recurring sweep
func (s *Supervisor) Start() error {
	spec := fmt.Sprintf("@every %s", s.sweepInterval)
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.sweepInterval)
		defer cancel()
		if err := s.Sweep(ctx); err != nil {
			log.Printf("[Supervisor] sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	log.Printf("[Supervisor] sweeping every %s, window %s", s.sweepInterval, s.window)
	return nil
}

// Stop stops the cron scheduler
func (s *Supervisor) Stop() {
	s.cron.Stop()
}

// Sweep visits every active report once
func (s *Supervisor) Sweep(ctx context.Context) error {
	reports, err := s.reportRepo.ListByStatus(ctx,
		model.ReportSettingUp, model.ReportPending, model.ReportScraping)
	if err != nil {
		return fmt.Errorf("list active reports: %w", err)
	}

	now := time.Now()
	for _, report := range reports {
		if err := s.visit(ctx, report, now); err != nil {
			log.Printf("[Supervisor] report %s: %v", report.ID, err)
		}
	}
	return nil
}

func (s *Supervisor) visit(ctx context.Context, report *model.Report, now time.Time) error {
	if report.Age(now) > s.window {
		return s.closeWindow(ctx, report)
	}

	if report.Status == model.ReportSettingUp {
		// A setup task that died mid-flight leaves the report stranded
		// here; propose the task again after a grace period.
		if report.Age(now) > s.setupGrace {
			s.queue.Enqueue(worker.Task{Kind: worker.TaskSetup, ReportID: report.ID})
		}
		return nil
	}

	s.queue.Enqueue(worker.Task{Kind: worker.TaskScrape, ReportID: report.ID})
	return nil
}

// closeWindow ends scraping for a report that outlived the monitoring
// window. With qualified replies in hand the summary waits for an explicit
// trigger; with zero signal the report terminates with the placeholder and
// never reaches the synthesis service.
func (s *Supervisor) closeWindow(ctx context.Context, report *model.Report) error {
	qualified, err := s.replyRepo.CountQualified(ctx, report.ID)
	if err != nil {
		return err
	}

	ok, err := s.reportRepo.TransitionStatus(ctx, report.ID, model.ReportCompleted,
		model.ReportSettingUp, model.ReportPending, model.ReportScraping)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if qualified > 0 {
		s.activity.Record(ctx, report.ID, model.ActivityWindowClosed,
			fmt.Sprintf("Monitoring window closed with %d qualified replies; summary available on request", qualified),
			map[string]interface{}{"qualified": qualified})
		return nil
	}

	if err := s.reportRepo.SaveSummary(ctx, report.ID, model.PlaceholderSummary(time.Now())); err != nil {
		return err
	}
	s.reportRepo.TransitionSummaryStatus(ctx, report.ID, model.SummaryCompleted,
		model.SummaryPending, model.SummaryFailed)
	s.activity.Record(ctx, report.ID, model.ActivityWindowClosed,
		"Monitoring window closed without qualified replies", nil)
	return nil
}
