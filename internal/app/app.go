// Package app wires the engine's components from configuration. The
// long-running engine, the trigger Lambda and the job-runner CLI all build
// their runner through Build so they execute identical jobs.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"learnpulse/internal/batch"
	"learnpulse/internal/config"
	"learnpulse/internal/db"
	"learnpulse/internal/external"
	"learnpulse/internal/notifications"
	"learnpulse/internal/risk"
	"learnpulse/internal/scheduler"
	"learnpulse/internal/types"
)

// NewLogger returns a JSON slog.Logger at level ("debug", "info", "warn" or
// "error"; anything else is info).
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// NewPool opens a pgx pool tuned by cfg and verifies it with a ping.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// LoadAWS loads the default AWS configuration for cfg's region. A non-empty
// EndpointURL points every client at it (LocalStack).
func LoadAWS(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	if cfg.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.EndpointURL)
	}
	return awsCfg, nil
}

// NeedsAWS reports whether any AWS-backed feature is enabled.
func NeedsAWS(cfg *config.Config) bool {
	return cfg.AWS.NotificationQueue != "" || cfg.Observability.EnableMetrics
}

// NewPredictor returns the prediction client, or nil when prediction is
// disabled so the aggregator always uses the fallback.
func NewPredictor(cfg config.PredictionConfig, logger *slog.Logger) *external.PredictionClient {
	if !cfg.Enabled {
		return nil
	}
	return external.NewPredictionClient(
		&http.Client{Timeout: cfg.Timeout},
		external.PredictionClientConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey.Unmask(),
			MaxRetries: cfg.MaxRetries,
			Logger:     logger,
		},
	)
}

// NewPublisher returns an SQS publisher when a queue is configured and a
// no-op publisher otherwise.
func NewPublisher(awsCfg aws.Config, cfg config.AWSConfig, logger *slog.Logger) notifications.Publisher {
	if cfg.NotificationQueue == "" {
		return notifications.NopPublisher{}
	}
	return notifications.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.NotificationQueue, logger)
}

// NewMetrics returns CloudWatch job metrics when enabled, else nil.
func NewMetrics(awsCfg aws.Config, cfg config.ObservabilityConfig, logger *slog.Logger) scheduler.JobMetrics {
	if !cfg.EnableMetrics {
		return nil
	}
	return scheduler.NewCloudWatchJobMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.MetricNamespace, logger)
}

// Deps are the external collaborators of the engine.
type Deps struct {
	Config *config.Config
	DB     db.DBTX
	// Predictor may be nil (not a typed nil); every snapshot then uses the
	// fallback score.
	Predictor types.Predictor
	Publisher notifications.Publisher
	Metrics   scheduler.JobMetrics
	Clock     types.Clock
	WorkerID  string
	Logger    *slog.Logger
}

// Engine holds the wired repositories and the runner.
type Engine struct {
	Runner        *scheduler.Runner
	Learners      *db.LearnerRepository
	Summaries     *db.EngagementRepository
	Snapshots     *db.SnapshotRepository
	Notifications *db.NotificationRepository
	JobHistory    *db.JobHistoryRepository
}

// Build wires repositories, job services and the runner. All jobs share one
// worker pool sized by WORKER_CONCURRENCY.
func Build(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := d.Config

	learners := db.NewLearnerRepository(d.DB)
	summaries := db.NewEngagementRepository(d.DB)
	snapshots := db.NewSnapshotRepository(d.DB)
	notifs := db.NewNotificationRepository(d.DB)
	history := db.NewJobHistoryRepository(d.DB)
	locks := db.NewJobLockRepository(d.DB)

	pool := batch.NewPool(cfg.Scheduler.WorkerConcurrency)
	learnerOpts := scheduler.Options{Location: cfg.Scheduler.Location(), PageSize: cfg.Scheduler.LearnerBatchSize}
	retryOpts := scheduler.Options{Location: cfg.Scheduler.Location(), PageSize: cfg.Scheduler.RetryBatchSize}

	aggregator := risk.NewAggregator(d.Predictor, cfg.Prediction.Timeout, logger)

	jobs := scheduler.Jobs{
		Engagement: scheduler.NewEngagementService(learners, summaries, pool, learnerOpts, logger),
		Snapshots:  scheduler.NewRiskSnapshotService(learners, snapshots, aggregator, pool, learnerOpts, logger),
		Alerts:     scheduler.NewRiskAlertService(snapshots, notifs, d.Publisher, notifications.DefaultPolicy, pool, learnerOpts, logger),
		Retries:    scheduler.NewRetryService(snapshots, notifs, d.Publisher, notifications.DefaultPolicy, pool, retryOpts, logger),
		Motivation: scheduler.NewMotivationService(snapshots, notifs, d.Publisher, nil, pool, learnerOpts, logger),
	}

	runner := scheduler.NewRunner(jobs, locks, history, scheduler.RunnerConfig{
		WorkerID: d.WorkerID,
		LockTTL:  cfg.Scheduler.LockTTL,
		Clock:    d.Clock,
		Metrics:  d.Metrics,
		Logger:   logger,
	})

	return &Engine{
		Runner:        runner,
		Learners:      learners,
		Summaries:     summaries,
		Snapshots:     snapshots,
		Notifications: notifs,
		JobHistory:    history,
	}
}
