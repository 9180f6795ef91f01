package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"nuwa/carbon-engine/internal/cache"
	"nuwa/carbon-engine/internal/config"
	"nuwa/carbon-engine/internal/database"
	"nuwa/carbon-engine/internal/logging"
	"nuwa/carbon-engine/internal/projects"
	"nuwa/carbon-engine/internal/rollup"
	"nuwa/carbon-engine/internal/timeseries"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	// Connect to database
	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	// Rollups cached by the API are invalidated after each recompute. With
	// the memory driver the API cache expires on its TTL instead.
	store, err := cache.NewStore(cfg.Cache.Driver, cfg.Cache.RedisURL, cfg.Cache.Namespace)
	if err != nil {
		logger.Fatal("Failed to create cache store", zap.Error(err))
	}
	rollupCache := cache.New(store, cfg.Cache.TTL, logger)
	defer rollupCache.Close()

	repo := projects.NewGormRepository(db)
	aggregator := rollup.NewAggregator(repo, rollupCache, logger)
	materializer := timeseries.NewMaterializer(repo, logger, cfg.Simulation.DefaultMaxYears, aggregator.InvalidateProject)

	// Create worker
	workerConfig := DefaultRecomputeWorkerConfig()
	workerConfig.Schedule = cfg.Worker.RecomputeSchedule
	workerConfig.BatchSize = cfg.Worker.BatchSize
	workerConfig.MaxConcurrent = cfg.Worker.MaxConcurrent
	workerConfig.RunOnStart = cfg.Worker.RunOnStart
	worker := NewRecomputeWorker(materializer, logger, workerConfig)

	// Start worker
	if err := worker.Start(ctx); err != nil {
		logger.Error("Worker error", zap.Error(err))
	}

	logger.Info("Recompute worker stopped")
}
