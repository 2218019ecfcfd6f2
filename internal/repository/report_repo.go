package repository

import (
	"context"
	"time"

	"replypulse/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ReportRepo handles MongoDB operations for reports. All status and
// summary-status writes are conditional updates so that concurrent workers
// race safely: the loser of a compare-and-set sees false, not an error.
type ReportRepo interface {
	Create(ctx context.Context, report *model.Report) error
	GetByID(ctx context.Context, id string) (*model.Report, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Report, error)
	ListByStatus(ctx context.Context, statuses ...model.ReportStatus) ([]*model.Report, error)

	// TransitionStatus atomically moves a report to the target status if it
	// is currently in one of the from statuses. Returns false when it was not.
	TransitionStatus(ctx context.Context, id string, to model.ReportStatus, from ...model.ReportStatus) (bool, error)

	// TransitionSummaryStatus is the same compare-and-set for the summary
	// sub-status.
	TransitionSummaryStatus(ctx context.Context, id string, to model.SummaryStatus, from ...model.SummaryStatus) (bool, error)

	// AdvanceCursors moves oldestSeenAt down and newestSeenAt up; a value
	// that would regress a cursor is ignored.
	AdvanceCursors(ctx context.Context, id string, oldest, newest time.Time) error

	// FlipToForward flips the scrape phase backwards -> forward exactly once.
	FlipToForward(ctx context.Context, id string) (bool, error)

	// SetCounts stores the display counters. These are a cache of the
	// reply-row truth, never the authority for threshold decisions.
	SetCounts(ctx context.Context, id string, scraped, qualified int) error

	SetRootPost(ctx context.Context, id, text, author string) error
	SaveSummary(ctx context.Context, id string, summary *model.Summary) error
}

type reportRepo struct {
	reports *mongo.Collection
}

// NewReportRepo creates a new report repository
func NewReportRepo(db *mongo.Database) ReportRepo {
	return &reportRepo{
		reports: db.Collection("reports"),
	}
}

func (r *reportRepo) Create(ctx context.Context, report *model.Report) error {
	now := time.Now()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	report.UpdatedAt = now
	_, err := r.reports.InsertOne(ctx, report)
	return err
}

func (r *reportRepo) GetByID(ctx context.Context, id string) (*model.Report, error) {
	var report model.Report
	err := r.reports.FindOne(ctx, bson.M{"_id": id}).Decode(&report)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *reportRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Report, error) {
	cursor, err := r.reports.Find(ctx, bson.M{"ownerId": ownerID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reports []*model.Report
	if err = cursor.All(ctx, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *reportRepo) ListByStatus(ctx context.Context, statuses ...model.ReportStatus) ([]*model.Report, error) {
	cursor, err := r.reports.Find(ctx, bson.M{"status": bson.M{"$in": statuses}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reports []*model.Report
	if err = cursor.All(ctx, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *reportRepo) TransitionStatus(ctx context.Context, id string, to model.ReportStatus, from ...model.ReportStatus) (bool, error) {
	res, err := r.reports.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": bson.M{"status": to, "updatedAt": time.Now()}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *reportRepo) TransitionSummaryStatus(ctx context.Context, id string, to model.SummaryStatus, from ...model.SummaryStatus) (bool, error) {
	res, err := r.reports.UpdateOne(ctx,
		bson.M{"_id": id, "summaryStatus": bson.M{"$in": from}},
		bson.M{"$set": bson.M{"summaryStatus": to, "updatedAt": time.Now()}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// AdvanceCursors relies on $min/$max so a stale batch can never move a
// cursor backwards, no matter how late it lands.
func (r *reportRepo) AdvanceCursors(ctx context.Context, id string, oldest, newest time.Time) error {
	_, err := r.reports.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$min": bson.M{"oldestSeenAt": oldest},
			"$max": bson.M{"newestSeenAt": newest},
			"$set": bson.M{"updatedAt": time.Now()},
		},
	)
	return err
}

func (r *reportRepo) FlipToForward(ctx context.Context, id string) (bool, error) {
	res, err := r.reports.UpdateOne(ctx,
		bson.M{"_id": id, "phase": model.PhaseBackwards},
		bson.M{"$set": bson.M{"phase": model.PhaseForward, "updatedAt": time.Now()}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *reportRepo) SetCounts(ctx context.Context, id string, scraped, qualified int) error {
	_, err := r.reports.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"scrapedCount": scraped, "qualifiedCount": qualified, "updatedAt": time.Now()}},
	)
	return err
}

func (r *reportRepo) SetRootPost(ctx context.Context, id, text, author string) error {
	_, err := r.reports.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"postText": text, "postAuthor": author, "updatedAt": time.Now()}},
	)
	return err
}

func (r *reportRepo) SaveSummary(ctx context.Context, id string, summary *model.Summary) error {
	_, err := r.reports.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"summary": summary, "updatedAt": time.Now()}},
	)
	return err
}
