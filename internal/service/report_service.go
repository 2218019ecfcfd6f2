package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"replypulse/internal/model"
	"replypulse/internal/repository"
	"replypulse/internal/worker"

	"github.com/google/uuid"
)

var (
	ErrReportNotFound     = errors.New("report not found")
	ErrSummaryNotEligible = errors.New("report is not ready for summary generation")
)

// CreateReportRequest is the owner-facing creation payload
type CreateReportRequest struct {
	ConversationID string             `json:"conversationId"`
	Goal           string             `json:"goal"`
	Config         model.ReportConfig `json:"config"`
}

// ReportService handles report creation, setup and the read surface
type ReportService struct {
	reportRepo   repository.ReportRepo
	replyRepo    repository.ReplyRepo
	activityRepo repository.ActivityRepo
	provider     ScrapeProvider
	queue        TaskQueue
	activity     *Activity
}

// NewReportService creates a new report service
func NewReportService(
	reportRepo repository.ReportRepo,
	replyRepo repository.ReplyRepo,
	activityRepo repository.ActivityRepo,
	provider ScrapeProvider,
	queue TaskQueue,
	activity *Activity,
) *ReportService {
	return &ReportService{
		reportRepo:   reportRepo,
		replyRepo:    replyRepo,
		activityRepo: activityRepo,
		provider:     provider,
		queue:        queue,
		activity:     activity,
	}
}

// CreateReport validates the configuration, persists the report in its
// transient setup state and schedules the root-post fetch. Validation
// failures never enter the pipeline.
func (s *ReportService) CreateReport(ctx context.Context, ownerID string, req CreateReportRequest) (*model.Report, error) {
	if req.ConversationID == "" {
		return nil, model.ErrMissingConversation
	}
	if req.Goal == "" {
		return nil, model.ErrMissingGoal
	}
	if req.Config.Weights == (model.EvalWeights{}) {
		req.Config.Weights = model.DefaultWeights()
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}

	report := &model.Report{
		ID:             "rpt_" + uuid.New().String()[:8],
		OwnerID:        ownerID,
		ConversationID: req.ConversationID,
		Goal:           req.Goal,
		Status:         model.ReportSettingUp,
		SummaryStatus:  model.SummaryPending,
		Phase:          model.PhaseBackwards,
		Config:         req.Config,
		CreatedAt:      time.Now(),
	}

	if err := s.reportRepo.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("persist report: %w", err)
	}

	s.queue.Enqueue(worker.Task{Kind: worker.TaskSetup, ReportID: report.ID})
	return report, nil
}

// RunSetup fetches the root post and moves the report into the pipeline.
// Re-runnable: a report already past setting_up is skipped.
func (s *ReportService) RunSetup(ctx context.Context, reportID string) error {
	report, err := s.reportRepo.GetByID(ctx, reportID)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	if report == nil || report.Status != model.ReportSettingUp {
		return nil
	}

	post, err := s.provider.GetPost(ctx, report.ConversationID)
	if err != nil {
		if errors.Is(err, ErrConversationRejected) {
			ok, terr := s.reportRepo.TransitionStatus(ctx, reportID, model.ReportFailed, model.ReportSettingUp)
			if terr != nil {
				return terr
			}
			if ok {
				s.activity.Record(ctx, reportID, model.ActivityReportFailed,
					"The post could not be found or is not accessible",
					map[string]interface{}{"cause": err.Error()})
			}
			return nil
		}
		return fmt.Errorf("fetch root post: %w", err)
	}

	if err := s.reportRepo.SetRootPost(ctx, reportID, post.Text, post.AuthorHandle); err != nil {
		return err
	}

	ok, err := s.reportRepo.TransitionStatus(ctx, reportID, model.ReportPending, model.ReportSettingUp)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	s.activity.Record(ctx, reportID, model.ActivitySetupDone,
		fmt.Sprintf("Monitoring replies to @%s's post", post.AuthorHandle), nil)
	s.queue.Enqueue(worker.Task{Kind: worker.TaskScrape, ReportID: reportID})
	return nil
}

// StartSynthesis is the explicit owner-initiated trigger, used once the
// scraping window closed with qualified replies waiting.
func (s *ReportService) StartSynthesis(ctx context.Context, reportID string) error {
	report, err := s.reportRepo.GetByID(ctx, reportID)
	if err != nil {
		return err
	}
	if report == nil {
		return ErrReportNotFound
	}
	if report.Status != model.ReportCompleted {
		return ErrSummaryNotEligible
	}
	if report.SummaryStatus != model.SummaryPending && report.SummaryStatus != model.SummaryFailed {
		return ErrSummaryNotEligible
	}

	s.queue.Enqueue(worker.Task{Kind: worker.TaskSynthesize, ReportID: reportID})
	return nil
}

// GetReport returns one report
func (s *ReportService) GetReport(ctx context.Context, reportID string) (*model.Report, error) {
	return s.reportRepo.GetByID(ctx, reportID)
}

// ListReports returns the owner's reports
func (s *ReportService) ListReports(ctx context.Context, ownerID string) ([]*model.Report, error) {
	return s.reportRepo.ListByOwner(ctx, ownerID)
}

// ListReplies returns a report's replies, optionally only qualified ones
func (s *ReportService) ListReplies(ctx context.Context, reportID string, qualifiedOnly bool, limit int) ([]*model.Reply, error) {
	if qualifiedOnly {
		return s.replyRepo.ListQualified(ctx, reportID)
	}
	return s.replyRepo.ListByReport(ctx, reportID, limit)
}

// ListActivity returns the report's recent progress log
func (s *ReportService) ListActivity(ctx context.Context, reportID string, limit int) ([]*model.ActivityEvent, error) {
	return s.activityRepo.ListByReport(ctx, reportID, limit)
}
