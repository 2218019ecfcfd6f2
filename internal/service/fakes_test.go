package service

import (
	"context"
	"sync"
	"time"

	"replypulse/internal/model"
	"replypulse/internal/worker"
)

// fakeReportRepo is an in-memory ReportRepo with the same compare-and-set
// semantics as the Mongo implementation.
type fakeReportRepo struct {
	mu      sync.Mutex
	reports map[string]*model.Report
}

func newFakeReportRepo(reports ...*model.Report) *fakeReportRepo {
	r := &fakeReportRepo{reports: make(map[string]*model.Report)}
	for _, rep := range reports {
		r.reports[rep.ID] = rep
	}
	return r
}

func (r *fakeReportRepo) Create(ctx context.Context, report *model.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[report.ID] = report
	return nil
}

func (r *fakeReportRepo) GetByID(ctx context.Context, id string) (*model.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[id]
	if !ok {
		return nil, nil
	}
	cp := *report
	return &cp, nil
}

func (r *fakeReportRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Report
	for _, rep := range r.reports {
		if rep.OwnerID == ownerID {
			cp := *rep
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeReportRepo) ListByStatus(ctx context.Context, statuses ...model.ReportStatus) ([]*model.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Report
	for _, rep := range r.reports {
		for _, s := range statuses {
			if rep.Status == s {
				cp := *rep
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeReportRepo) TransitionStatus(ctx context.Context, id string, to model.ReportStatus, from ...model.ReportStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if report.Status == f {
			report.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeReportRepo) TransitionSummaryStatus(ctx context.Context, id string, to model.SummaryStatus, from ...model.SummaryStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if report.SummaryStatus == f {
			report.SummaryStatus = to
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeReportRepo) AdvanceCursors(ctx context.Context, id string, oldest, newest time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[id]
	if !ok {
		return nil
	}
	if report.OldestSeenAt == nil || oldest.Before(*report.OldestSeenAt) {
		t := oldest
		report.OldestSeenAt = &t
	}
	if report.NewestSeenAt == nil || newest.After(*report.NewestSeenAt) {
		t := newest
		report.NewestSeenAt = &t
	}
	return nil
}

func (r *fakeReportRepo) FlipToForward(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[id]
	if !ok || report.Phase != model.PhaseBackwards {
		return false, nil
	}
	report.Phase = model.PhaseForward
	return true, nil
}

func (r *fakeReportRepo) SetCounts(ctx context.Context, id string, scraped, qualified int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if report, ok := r.reports[id]; ok {
		report.ScrapedCount = scraped
		report.QualifiedCount = qualified
	}
	return nil
}

func (r *fakeReportRepo) SetRootPost(ctx context.Context, id, text, author string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if report, ok := r.reports[id]; ok {
		report.PostText = text
		report.PostAuthor = author
	}
	return nil
}

func (r *fakeReportRepo) SaveSummary(ctx context.Context, id string, summary *model.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if report, ok := r.reports[id]; ok {
		report.Summary = summary
	}
	return nil
}

// fakeReplyRepo is an in-memory ReplyRepo keyed by (reportId, replyId)
type fakeReplyRepo struct {
	mu    sync.Mutex
	rows  map[string]*model.Reply
	order []string
}

func newFakeReplyRepo() *fakeReplyRepo {
	return &fakeReplyRepo{rows: make(map[string]*model.Reply)}
}

func key(reportID, replyID string) string { return reportID + "/" + replyID }

func (r *fakeReplyRepo) InsertIgnoreDuplicates(ctx context.Context, replies []*model.Reply) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inserted := 0
	for _, reply := range replies {
		k := key(reply.ReportID, reply.ReplyID)
		if _, exists := r.rows[k]; exists {
			continue
		}
		cp := *reply
		r.rows[k] = &cp
		r.order = append(r.order, k)
		inserted++
	}
	return inserted, nil
}

func (r *fakeReplyRepo) ExistingIDs(ctx context.Context, reportID string, ids []string) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := make(map[string]bool)
	for _, id := range ids {
		if _, ok := r.rows[key(reportID, id)]; ok {
			existing[id] = true
		}
	}
	return existing, nil
}

func (r *fakeReplyRepo) ListPending(ctx context.Context, reportID string, limit int) ([]*model.Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Reply
	for _, k := range r.order {
		row := r.rows[k]
		if row.ReportID == reportID && row.EvalStatus == model.EvalPending {
			cp := *row
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeReplyRepo) MarkEvaluating(ctx context.Context, reportID string, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if row, ok := r.rows[key(reportID, id)]; ok && row.EvalStatus == model.EvalPending {
			row.EvalStatus = model.EvalEvaluating
		}
	}
	return nil
}

func (r *fakeReplyRepo) ResetToPending(ctx context.Context, reportID string, ids []string) error {
	// A dead context fails the write, like the real repo would
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if row, ok := r.rows[key(reportID, id)]; ok && row.EvalStatus == model.EvalEvaluating {
			row.EvalStatus = model.EvalPending
		}
	}
	return nil
}

func (r *fakeReplyRepo) SaveEvaluation(ctx context.Context, reportID, replyID string, eval *model.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[key(reportID, replyID)]; ok {
		row.Evaluation = eval
		row.EvalStatus = model.EvalEvaluated
	}
	return nil
}

func (r *fakeReplyRepo) CountQualified(ctx context.Context, reportID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows {
		if row.ReportID == reportID && row.Evaluation != nil && row.Evaluation.Included {
			n++
		}
	}
	return n, nil
}

func (r *fakeReplyRepo) CountByReport(ctx context.Context, reportID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows {
		if row.ReportID == reportID {
			n++
		}
	}
	return n, nil
}

func (r *fakeReplyRepo) CountPending(ctx context.Context, reportID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows {
		if row.ReportID == reportID && row.EvalStatus == model.EvalPending {
			n++
		}
	}
	return n, nil
}

func (r *fakeReplyRepo) ListQualified(ctx context.Context, reportID string) ([]*model.Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Reply
	for _, k := range r.order {
		row := r.rows[k]
		if row.ReportID == reportID && row.Evaluation != nil && row.Evaluation.Included {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeReplyRepo) ListByReport(ctx context.Context, reportID string, limit int) ([]*model.Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Reply
	for _, k := range r.order {
		row := r.rows[k]
		if row.ReportID == reportID {
			cp := *row
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeReplyRepo) EnsureIndexes(ctx context.Context) error { return nil }

// seed inserts a row directly, bypassing ingestion
func (r *fakeReplyRepo) seed(reply *model.Reply) {
	r.InsertIgnoreDuplicates(context.Background(), []*model.Reply{reply})
}

// fakeQueue records enqueued tasks
type fakeQueue struct {
	mu    sync.Mutex
	tasks []worker.Task
}

func (q *fakeQueue) Enqueue(task worker.Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return true
}

func (q *fakeQueue) count(kind worker.Kind) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, t := range q.tasks {
		if t.Kind == kind {
			n++
		}
	}
	return n
}

// fakeBudget always admits unless denials is positive, in which case it
// denies that many times first. onDeny, when set, runs on each denial.
type fakeBudget struct {
	mu       sync.Mutex
	denials  int
	acquired int
	onDeny   func()
}

func (b *fakeBudget) TryAcquire(ctx context.Context, resource string, limit int, window time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.denials > 0 {
		b.denials--
		if b.onDeny != nil {
			b.onDeny()
		}
		return false, nil
	}
	b.acquired++
	return true, nil
}

// fakeLease always grants
type fakeLease struct{}

func (fakeLease) Acquire(ctx context.Context, reportID string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (fakeLease) Release(ctx context.Context, reportID string) error { return nil }

// fakeProvider serves scripted pages
type fakeProvider struct {
	mu    sync.Mutex
	post  *ProviderPost
	pages [][]ProviderItem
	calls []ReplyQuery
	err   error
}

func (p *fakeProvider) GetPost(ctx context.Context, conversationID string) (*ProviderPost, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.post != nil {
		return p.post, nil
	}
	return &ProviderPost{ID: conversationID, Text: "post", AuthorHandle: "author"}, nil
}

func (p *fakeProvider) ListReplies(ctx context.Context, q ReplyQuery) ([]ProviderItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.calls = append(p.calls, q)
	if len(p.pages) == 0 {
		return nil, nil
	}
	page := p.pages[0]
	p.pages = p.pages[1:]
	return page, nil
}

// fakeScorer returns a fixed result or a scripted error per reply text.
// With blockUntilCancel set, calls hang until the context dies.
type fakeScorer struct {
	mu               sync.Mutex
	result           model.ScoreResult
	failFor          map[string]bool
	calls            int
	blockUntilCancel bool
	synth            *model.Summary
	synthErr         error
	synthCalls       int
}

func (s *fakeScorer) ScoreReply(ctx context.Context, req model.ScoreRequest) (*model.ScoreResult, error) {
	if s.blockUntilCancel {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failFor[req.ReplyText] {
		return nil, context.DeadlineExceeded
	}
	r := s.result
	return &r, nil
}

func (s *fakeScorer) SynthesizeReport(ctx context.Context, req model.SynthesisRequest) (*model.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synthCalls++
	if s.synthErr != nil {
		return nil, s.synthErr
	}
	if s.synth != nil {
		return s.synth, nil
	}
	return &model.Summary{ExecutiveSummary: "done", ReplyCount: len(req.Replies), GeneratedAt: time.Now()}, nil
}

func testActivity() *Activity {
	return NewActivity(nil)
}

func item(id, handle, text string, at time.Time) ProviderItem {
	return ProviderItem{
		ID:        id,
		Type:      "reply",
		Text:      text,
		CreatedAt: at,
		Author:    model.Author{ID: "u_" + id, Handle: handle, FollowerCount: 100},
	}
}
