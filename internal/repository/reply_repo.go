package repository

import (
	"context"
	"time"

	"replypulse/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ReplyRepo handles MongoDB operations for ingested replies. Rows are keyed
// by the (reportId, replyId) compound unique index; the same external item
// may belong to several reports.
type ReplyRepo interface {
	// InsertIgnoreDuplicates inserts the batch unordered and treats
	// duplicate-key violations as benign skips, returning how many rows
	// actually landed.
	InsertIgnoreDuplicates(ctx context.Context, replies []*model.Reply) (int, error)

	// ExistingIDs returns which of the given reply ids are already stored
	// for the report.
	ExistingIDs(ctx context.Context, reportID string, ids []string) (map[string]bool, error)

	ListPending(ctx context.Context, reportID string, limit int) ([]*model.Reply, error)
	MarkEvaluating(ctx context.Context, reportID string, ids []string) error
	ResetToPending(ctx context.Context, reportID string, ids []string) error

	// SaveEvaluation persists the scoring result and marks the reply
	// evaluated. Idempotent: re-saving overwrites with an equivalent result.
	SaveEvaluation(ctx context.Context, reportID, replyID string, eval *model.Evaluation) error

	// CountQualified re-derives the qualified count from rows with an
	// included evaluation. This is the authority for threshold decisions.
	CountQualified(ctx context.Context, reportID string) (int, error)

	CountByReport(ctx context.Context, reportID string) (int, error)
	CountPending(ctx context.Context, reportID string) (int, error)

	// ListQualified returns included replies ordered by weighted score desc.
	ListQualified(ctx context.Context, reportID string) ([]*model.Reply, error)
	ListByReport(ctx context.Context, reportID string, limit int) ([]*model.Reply, error)

	EnsureIndexes(ctx context.Context) error
}

type replyRepo struct {
	replies *mongo.Collection
}

// NewReplyRepo creates a new reply repository
func NewReplyRepo(db *mongo.Database) ReplyRepo {
	return &replyRepo{
		replies: db.Collection("replies"),
	}
}

func (r *replyRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.replies.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reportId", Value: 1}, {Key: "replyId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "reportId", Value: 1}, {Key: "evalStatus", Value: 1}},
		},
	})
	return err
}

func (r *replyRepo) InsertIgnoreDuplicates(ctx context.Context, replies []*model.Reply) (int, error) {
	if len(replies) == 0 {
		return 0, nil
	}

	docs := make([]interface{}, len(replies))
	now := time.Now()
	for i, reply := range replies {
		if reply.IngestedAt.IsZero() {
			reply.IngestedAt = now
		}
		docs[i] = reply
	}

	// Unordered insert: duplicate-key errors on individual rows (another
	// execution won the race) do not stop the rest of the batch.
	res, err := r.replies.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			inserted := 0
			if res != nil {
				inserted = len(res.InsertedIDs)
			}
			return inserted, nil
		}
		return 0, err
	}
	return len(res.InsertedIDs), nil
}

func (r *replyRepo) ExistingIDs(ctx context.Context, reportID string, ids []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(ids) == 0 {
		return existing, nil
	}

	cursor, err := r.replies.Find(ctx,
		bson.M{"reportId": reportID, "replyId": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"replyId": 1}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var row struct {
			ReplyID string `bson:"replyId"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		existing[row.ReplyID] = true
	}
	return existing, cursor.Err()
}

func (r *replyRepo) ListPending(ctx context.Context, reportID string, limit int) ([]*model.Reply, error) {
	cursor, err := r.replies.Find(ctx,
		bson.M{"reportId": reportID, "evalStatus": model.EvalPending},
		options.Find().SetSort(bson.M{"ingestedAt": 1}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var replies []*model.Reply
	if err = cursor.All(ctx, &replies); err != nil {
		return nil, err
	}
	return replies, nil
}

func (r *replyRepo) MarkEvaluating(ctx context.Context, reportID string, ids []string) error {
	_, err := r.replies.UpdateMany(ctx,
		bson.M{"reportId": reportID, "replyId": bson.M{"$in": ids}, "evalStatus": model.EvalPending},
		bson.M{"$set": bson.M{"evalStatus": model.EvalEvaluating}},
	)
	return err
}

func (r *replyRepo) ResetToPending(ctx context.Context, reportID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.replies.UpdateMany(ctx,
		bson.M{"reportId": reportID, "replyId": bson.M{"$in": ids}, "evalStatus": model.EvalEvaluating},
		bson.M{"$set": bson.M{"evalStatus": model.EvalPending}},
	)
	return err
}

func (r *replyRepo) SaveEvaluation(ctx context.Context, reportID, replyID string, eval *model.Evaluation) error {
	_, err := r.replies.UpdateOne(ctx,
		bson.M{"reportId": reportID, "replyId": replyID},
		bson.M{"$set": bson.M{"evaluation": eval, "evalStatus": model.EvalEvaluated}},
	)
	return err
}

func (r *replyRepo) CountQualified(ctx context.Context, reportID string) (int, error) {
	n, err := r.replies.CountDocuments(ctx, bson.M{"reportId": reportID, "evaluation.included": true})
	return int(n), err
}

func (r *replyRepo) CountByReport(ctx context.Context, reportID string) (int, error) {
	n, err := r.replies.CountDocuments(ctx, bson.M{"reportId": reportID})
	return int(n), err
}

func (r *replyRepo) CountPending(ctx context.Context, reportID string) (int, error) {
	n, err := r.replies.CountDocuments(ctx, bson.M{"reportId": reportID, "evalStatus": model.EvalPending})
	return int(n), err
}

func (r *replyRepo) ListQualified(ctx context.Context, reportID string) ([]*model.Reply, error) {
	cursor, err := r.replies.Find(ctx,
		bson.M{"reportId": reportID, "evaluation.included": true},
		options.Find().SetSort(bson.M{"evaluation.weightedScore": -1}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var replies []*model.Reply
	if err = cursor.All(ctx, &replies); err != nil {
		return nil, err
	}
	return replies, nil
}

func (r *replyRepo) ListByReport(ctx context.Context, reportID string, limit int) ([]*model.Reply, error) {
	cursor, err := r.replies.Find(ctx,
		bson.M{"reportId": reportID},
		options.Find().SetSort(bson.M{"postedAt": -1}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var replies []*model.Reply
	if err = cursor.All(ctx, &replies); err != nil {
		return nil, err
	}
	return replies, nil
}
