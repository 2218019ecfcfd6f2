package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"replypulse/internal/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database("replypulse")
	reportColl := db.Collection("reports")

	// Owner ID observed in logs
	ownerID := "owner_41f6c0ae"

	report := model.Report{
		ID:             "rpt_" + uuid.New().String()[:8],
		OwnerID:        ownerID,
		ConversationID: "1882547201039372288",
		Goal:           "Find concrete feature requests and pain points from users of our beta app.",
		Status:         model.ReportSettingUp,
		SummaryStatus:  model.SummaryPending,
		Phase:          model.PhaseBackwards,
		Config: model.ReportConfig{
			Threshold:    25,
			MinLength:    15,
			VerifiedOnly: false,
			MinFollowers: 0,
			Weights:      model.DefaultWeights(),
			AudienceHint: "developers and early adopters",
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	_, err = reportColl.InsertOne(ctx, report)
	if err != nil {
		log.Fatalf("Failed to insert report: %v", err)
	}

	fmt.Printf("Successfully created demo report '%s' for owner '%s'\n", report.ID, ownerID)
	fmt.Println("The supervisor sweep will pick it up on the next tick.")
}
