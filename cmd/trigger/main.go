// Package main is the entrypoint of the trigger Lambda. It accepts a
// scheduler.JobPayload
//
//	{"task": "daily_risk_snapshot", "reference_time": "2026-03-10T02:00:00Z"}
//
// and runs the task once through the same runner as the engine, so locking
// and job history apply. It serves manual overrides and backfills from
// EventBridge rules or the AWS console.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"

	"learnpulse/internal/app"
	"learnpulse/internal/config"
	"learnpulse/internal/scheduler"
	"learnpulse/internal/types"
)

// JobExecutor runs one payload.
type JobExecutor interface {
	Execute(ctx context.Context, payload scheduler.JobPayload) (scheduler.RunReport, error)
}

// Handler holds the dependencies of the Lambda handler.
type Handler struct {
	Runner JobExecutor
	Logger *slog.Logger
}

// Handle runs payload. A run skipped because another worker holds the lock
// is reported in the result, not as an invocation error, so Lambda does not
// retry it.
func (h *Handler) Handle(ctx context.Context, payload scheduler.JobPayload) (scheduler.RunReport, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.InfoContext(ctx, "trigger invoked", "task", string(payload.Task))

	report, err := h.Runner.Execute(ctx, payload)
	if err != nil {
		if types.HasCode(err, types.ErrCodeConflictJobRunning) {
			logger.InfoContext(ctx, "trigger skipped, job already running", "task", string(payload.Task))
			report.Status = types.JobStatusSkipped
			return report, nil
		}
		return report, err
	}
	return report, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("trigger Lambda initializing (cold start)")

	handler, err := newHandler(context.Background(), logger)
	if err != nil {
		logger.Error("failed to initialize trigger", "error", err)
		os.Exit(1)
	}

	lambda.Start(handler.Handle)
}

// newHandler wires the runner once per cold start; the pool is reused across
// invocations.
func newHandler(ctx context.Context, bootLogger *slog.Logger) (*Handler, error) {
	cfg, err := config.LoadConfig(nil)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	logger := app.NewLogger(os.Stdout, cfg.LogLevel).With("service", cfg.Service, "component", "trigger")

	// A Lambda instance runs one invocation at a time.
	cfg.Database.MaxConns = min(cfg.Database.MaxConns, 4)
	cfg.Database.MinConns = min(cfg.Database.MinConns, cfg.Database.MaxConns)
	pool, err := app.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	var awsCfg aws.Config
	if app.NeedsAWS(cfg) {
		if awsCfg, err = app.LoadAWS(ctx, cfg.AWS); err != nil {
			pool.Close()
			return nil, err
		}
	}

	deps := app.Deps{
		Config:    cfg,
		DB:        pool,
		Publisher: app.NewPublisher(awsCfg, cfg.AWS, logger),
		Metrics:   app.NewMetrics(awsCfg, cfg.Observability, logger),
		Clock:     types.RealClock{},
		WorkerID:  "lambda-" + uuid.NewString(),
		Logger:    logger,
	}
	if p := app.NewPredictor(cfg.Prediction, logger); p != nil {
		deps.Predictor = p
	}

	bootLogger.Info("trigger Lambda initialized", "worker_id", deps.WorkerID)
	return &Handler{Runner: app.Build(deps).Runner, Logger: logger}, nil
}
