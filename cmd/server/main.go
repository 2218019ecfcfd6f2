package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"replypulse/config"
	_ "replypulse/docs"
	aiconfig "replypulse/internal/config"
	"replypulse/internal/cache"
	"replypulse/internal/metrics"
	"replypulse/internal/repository"
	"replypulse/internal/service"
	"replypulse/internal/transport/rest"
	"replypulse/internal/transport/ws"
	"replypulse/internal/worker"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// @title replypulse API
// @version 1.0
// @description Reply collection, scoring and synthesis pipeline
// @host localhost:8080
// @BasePath /v1
func main() {
	log.Println("started")
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Load AI config and log model settings
	aiCfg := aiconfig.DefaultAIConfig()
	log.Printf("AI Config:")
	log.Printf("  Scoring:   %s", aiCfg.Models.Scoring)
	log.Printf("  Synthesis: %s", aiCfg.Models.Synthesis)
	if aiCfg.IsEnabled() {
		log.Println("  API Key:   configured ✓")
	} else {
		log.Println("  API Key:   NOT SET (using mock scorer)")
	}

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDB)

	// Redis connection
	redisAddr := cfg.RedisAddr
	if len(redisAddr) > 8 && redisAddr[:8] == "redis://" {
		redisAddr = redisAddr[8:]
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	defer rdb.Close()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// Initialize WebSocket hub
	wsHub := ws.NewHub()
	log.Println("WebSocket hub started")

	// Initialize repositories
	reportRepo := repository.NewReportRepo(db)
	replyRepo := repository.NewReplyRepo(db)
	activityRepo := repository.NewActivityRepo(db)
	if err := replyRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal("Failed to create reply indexes:", err)
	}

	// Initialize caches
	budget := cache.NewBudgetCache(rdb)
	lease := cache.NewLeaseCache(rdb)

	// Worker pool carries every pipeline stage
	pool := worker.NewPool(cfg.Pipeline.Workers)

	// Initialize services
	authSvc := service.NewAuthService()
	activity := service.NewActivity(activityRepo)
	activity.SetBroadcaster(wsHub)

	provider := service.NewProviderClient()
	scorer := service.NewScorerClient()
	publisher := service.NewPublisherClient()

	ingestSvc := service.NewIngestService(replyRepo)
	synthesisSvc := service.NewSynthesisService(reportRepo, replyRepo, scorer, budget, publisher, pool, activity, cfg.Pipeline.SynthesisPerMinute)
	evalSvc := service.NewEvalService(reportRepo, replyRepo, scorer, budget, pool, activity, synthesisSvc, cfg.Pipeline.BatchSize, cfg.Pipeline.ScoringPerMinute)
	scrapeSvc := service.NewScrapeService(reportRepo, replyRepo, ingestSvc, provider, lease, pool, activity, cfg.Pipeline.PageSize)
	reportSvc := service.NewReportService(reportRepo, replyRepo, activityRepo, provider, pool, activity)

	pool.Register(worker.TaskSetup, func(ctx context.Context, t worker.Task) error {
		return reportSvc.RunSetup(ctx, t.ReportID)
	})
	pool.Register(worker.TaskScrape, func(ctx context.Context, t worker.Task) error {
		return scrapeSvc.Run(ctx, t.ReportID)
	})
	pool.Register(worker.TaskEvaluate, func(ctx context.Context, t worker.Task) error {
		return evalSvc.Run(ctx, t.ReportID)
	})
	pool.Register(worker.TaskSynthesize, func(ctx context.Context, t worker.Task) error {
		return synthesisSvc.Run(ctx, t.ReportID)
	})
	pool.OnExhausted(func(t worker.Task, err error) {
		activity.Record(context.Background(), t.ReportID, "task_exhausted",
			"A pipeline step gave up after repeated failures",
			map[string]interface{}{"task": string(t.Kind), "cause": err.Error()})
	})
	pool.Start()

	// Recurring supervisor sweep
	supervisor := service.NewSupervisor(reportRepo, replyRepo, pool, activity,
		cfg.Pipeline.SweepInterval, cfg.Pipeline.MonitoringWindow, cfg.Pipeline.SetupGrace)
	if err := supervisor.Start(); err != nil {
		log.Fatal("Failed to start supervisor:", err)
	}

	// Metrics listener (no-op when METRICS_ADDR is unset)
	metrics.StartServer(cfg.MetricsAddr)

	// Create router with container
	container := &rest.Container{
		AuthService:   authSvc,
		ReportService: reportSvc,
		WSHub:         wsHub,
	}
	router := rest.NewRouter(container)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		log.Printf("Owner auth: username=%s", os.Getenv("OWNER_USERNAME"))
		log.Println("Endpoints:")
		log.Println("  POST /v1/auth/login")
		log.Println("  POST/GET /v1/reports")
		log.Println("  GET  /v1/reports/{id}")
		log.Println("  GET  /v1/reports/{id}/replies")
		log.Println("  GET  /v1/reports/{id}/activity")
		log.Println("  POST /v1/reports/{id}/summary")
		log.Println("  WS   /v1/ws/reports/{id}")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	supervisor.Stop()
	pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
