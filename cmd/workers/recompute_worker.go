package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Recomputer rebuilds stale materialized series.
type Recomputer interface {
	RecomputeStale(ctx context.Context, batchSize, maxConcurrent int) (int, error)
}

// RecomputeWorker sweeps stale project series on a cron schedule
type RecomputeWorker struct {
	recomputer Recomputer
	logger     *zap.Logger
	config     RecomputeWorkerConfig
}

// RecomputeWorkerConfig configuration for the recompute worker
type RecomputeWorkerConfig struct {
	Schedule      string // standard cron spec or descriptor such as "@every 1m"
	BatchSize     int
	MaxConcurrent int
	RunOnStart    bool
	SweepTimeout  time.Duration
}

// DefaultRecomputeWorkerConfig returns default configuration
func DefaultRecomputeWorkerConfig() RecomputeWorkerConfig {
	return RecomputeWorkerConfig{
		Schedule:      "@every 1m",
		BatchSize:     20,
		MaxConcurrent: 4,
		RunOnStart:    true,
		SweepTimeout:  5 * time.Minute,
	}
}

// NewRecomputeWorker creates a new recompute worker
func NewRecomputeWorker(recomputer Recomputer, logger *zap.Logger, config RecomputeWorkerConfig) *RecomputeWorker {
	return &RecomputeWorker{
		recomputer: recomputer,
		logger:     logger,
		config:     config,
	}
}

// Start runs the worker until ctx is cancelled. A sweep still running when a
// tick fires is not overlapped.
func (w *RecomputeWorker) Start(ctx context.Context) error {
	schedule, err := cron.ParseStandard(w.config.Schedule)
	if err != nil {
		return fmt.Errorf("invalid recompute schedule %q: %w", w.config.Schedule, err)
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(w.logger))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))
	c.Schedule(schedule, cron.FuncJob(func() { w.sweep(ctx) }))

	w.logger.Info("Starting recompute worker",
		zap.String("schedule", w.config.Schedule),
		zap.Int("batch_size", w.config.BatchSize),
		zap.Int("max_concurrent", w.config.MaxConcurrent))

	// Process stale series immediately
	if w.config.RunOnStart {
		w.sweep(ctx)
	}

	c.Start()
	<-ctx.Done()

	w.logger.Info("Recompute worker shutting down")
	<-c.Stop().Done()
	return nil
}

// sweep recomputes one batch of stale projects and returns how many were
// refreshed.
func (w *RecomputeWorker) sweep(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	if w.config.SweepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.SweepTimeout)
		defer cancel()
	}

	startTime := time.Now()
	refreshed, err := w.recomputer.RecomputeStale(ctx, w.config.BatchSize, w.config.MaxConcurrent)
	if err != nil {
		w.logger.Error("Failed to recompute stale series", zap.Int("refreshed", refreshed), zap.Error(err))
		return refreshed
	}
	if refreshed > 0 {
		w.logger.Info("Stale series recomputed",
			zap.Int("refreshed", refreshed),
			zap.Duration("duration", time.Since(startTime)))
	}
	return refreshed
}
