package repository

import (
	"context"

	"replypulse/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ActivityRepo handles the append-only per-report progress log
type ActivityRepo interface {
	Append(ctx context.Context, event *model.ActivityEvent) error
	ListByReport(ctx context.Context, reportID string, limit int) ([]*model.ActivityEvent, error)
}

type activityRepo struct {
	events *mongo.Collection
}

// NewActivityRepo creates a new activity repository
func NewActivityRepo(db *mongo.Database) ActivityRepo {
	return &activityRepo{
		events: db.Collection("activity_events"),
	}
}

func (r *activityRepo) Append(ctx context.Context, event *model.ActivityEvent) error {
	_, err := r.events.InsertOne(ctx, event)
	return err
}

func (r *activityRepo) ListByReport(ctx context.Context, reportID string, limit int) ([]*model.ActivityEvent, error) {
	cursor, err := r.events.Find(ctx,
		bson.M{"reportId": reportID},
		options.Find().SetSort(bson.M{"createdAt": -1}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []*model.ActivityEvent
	if err = cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
