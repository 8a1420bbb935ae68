// Package config defines the global configuration structure for the LearnPulse
// engagement and risk engine. Configuration is loaded once at process start and
// is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Mounted secret files (Lowest)
//
// Any missing required value or invalid format causes startup to fail.
package config

import (
	"time"

	"learnpulse/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// need to import types for credentials.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the engine. Sub-components
// receive only the config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"learnpulse-engine"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Database      DatabaseConfig
	Prediction    PredictionConfig
	Scheduler     SchedulerConfig
	Server        ServerConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"16" validate:"min=1"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2" validate:"min=0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// PredictionConfig configures the external risk prediction service. When
// Enabled is false every snapshot uses the local fallback score.
type PredictionConfig struct {
	Enabled bool         `envconfig:"PREDICTION_ENABLED" default:"true"`
	BaseURL string       `envconfig:"PREDICTION_URL" validate:"required_if=Enabled true,omitempty,url"`
	APIKey  SecretString `envconfig:"PREDICTION_API_KEY"`
	// Timeout bounds a single Predict call including retries. After it
	// elapses the fallback score is used.
	Timeout    time.Duration `envconfig:"PREDICTION_TIMEOUT" default:"5s" validate:"gt=0"`
	MaxRetries int           `envconfig:"PREDICTION_MAX_RETRIES" default:"1" validate:"min=0,max=5"`
}

// SchedulerConfig holds the Job Driver schedules and batch tuning.
// Cron specs use the standard 5-field syntax and are evaluated in Timezone.
type SchedulerConfig struct {
	Timezone          string `envconfig:"ENGINE_TIMEZONE" default:"UTC"`
	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"8" validate:"min=1,max=64"`
	LearnerBatchSize  int    `envconfig:"LEARNER_BATCH_SIZE" default:"500" validate:"min=1"`
	RetryBatchSize    int    `envconfig:"NOTIFICATION_RETRY_BATCH" default:"200" validate:"min=1"`

	EngagementSchedule   string `envconfig:"ENGAGEMENT_SCHEDULE" default:"30 1 * * *"`
	RiskSnapshotSchedule string `envconfig:"RISK_SNAPSHOT_SCHEDULE" default:"0 2 * * *"`
	RiskAlertSchedule    string `envconfig:"RISK_ALERT_SCHEDULE" default:"0 */6 * * *"`
	RetrySchedule        string `envconfig:"NOTIFICATION_RETRY_SCHEDULE" default:"15 * * * *"`
	MotivationSchedule   string `envconfig:"MOTIVATION_SCHEDULE" default:"0 9 * * *"`

	LockTTL         time.Duration `envconfig:"JOB_LOCK_TTL" default:"55m"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// ServerConfig holds the read/admin HTTP server settings.
type ServerConfig struct {
	Enabled bool   `envconfig:"HTTP_ENABLED" default:"true"`
	Port    string `envconfig:"PORT" default:"8080"`
}

// AWSConfig holds AWS resource identifiers. All of them are optional: without
// a queue URL created notifications are only persisted, and without metrics
// enabled nothing is sent to CloudWatch.
type AWSConfig struct {
	Region            string `envconfig:"AWS_REGION" default:"us-east-1"`
	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"LearnPulse/Engine"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrSecretResolution indicates a mounted secret file could not be read.
	ErrSecretResolution ConfigErrorType = "SECRET_FAILURE"
	// ErrValidation indicates the configuration failed validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
