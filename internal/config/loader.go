// loader.go implements the configuration loading lifecycle for the engine.
//
// The loading sequence is:
//  1. Enforce UTC as the process timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Scan environment for _FILE suffix variables and resolve them through the
//     SecretProvider, injecting the values back into the environment.
//  4. Use envconfig to process struct tags and populate the Config struct.
//  5. Populate BuildInfo from linker-injected variables.
//  6. Validate the struct using go-playground/validator, then the reference
//     timezone and the cron specs.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// secretFileSuffix marks variables that point at a mounted secret file.
// DATABASE_URL_FILE=/run/secrets/db_url resolves DATABASE_URL.
const secretFileSuffix = "_FILE"

// loaderDeps holds the injectable dependencies for the loader, enabling
// testing without mutating global state.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// LoadConfig loads and validates the engine configuration. A nil provider
// defaults to the FileProvider.
func LoadConfig(provider SecretProvider) (*Config, error) {
	if provider == nil {
		provider = NewFileProvider()
	}
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv does NOT override variables already present in the environment.
	_ = godotenv.Load()

	if err := resolveSecretFiles(provider, deps); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate runs struct-tag validation plus the checks validator cannot
// express: the reference timezone must load and every cron spec must parse.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("invalid ENGINE_TIMEZONE %q", cfg.Scheduler.Timezone),
			Err:     err,
		}
	}

	specs := map[string]string{
		"ENGAGEMENT_SCHEDULE":         cfg.Scheduler.EngagementSchedule,
		"RISK_SNAPSHOT_SCHEDULE":      cfg.Scheduler.RiskSnapshotSchedule,
		"RISK_ALERT_SCHEDULE":         cfg.Scheduler.RiskAlertSchedule,
		"NOTIFICATION_RETRY_SCHEDULE": cfg.Scheduler.RetrySchedule,
		"MOTIVATION_SCHEDULE":         cfg.Scheduler.MotivationSchedule,
	}
	for name, spec := range specs {
		if _, err := cron.ParseStandard(spec); err != nil {
			return &ConfigError{
				Type:    ErrValidation,
				Message: fmt.Sprintf("invalid %s %q", name, spec),
				Err:     err,
			}
		}
	}

	if cfg.Database.MinConns > cfg.Database.MaxConns {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", cfg.Database.MinConns, cfg.Database.MaxConns),
		}
	}

	return nil
}

// Location returns the reference timezone used for calendar-day boundaries.
// Validate guarantees it loads; UTC is returned if it somehow does not.
func (s SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// resolveSecretFiles scans the environment for variables ending in _FILE,
// reads the referenced files via the SecretProvider, and injects the values
// under the stripped name. A target already set in the environment wins.
func resolveSecretFiles(provider SecretProvider, deps loaderDeps) error {
	pathToTarget := make(map[string]string)
	var paths []string

	for _, entry := range deps.environ() {
		eq := strings.IndexByte(entry, '=')
		if eq < 0 {
			continue
		}
		key := entry[:eq]
		if !strings.HasSuffix(key, secretFileSuffix) {
			continue
		}
		target := strings.TrimSuffix(key, secretFileSuffix)
		if target == "" {
			continue
		}
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		path := entry[eq+1:]
		if path == "" {
			continue
		}
		pathToTarget[path] = target
		paths = append(paths, path)
	}

	if len(paths) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("failed to resolve %d secret files", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, path := range paths {
		target := pathToTarget[path]
		value, ok := resolved[path]
		if !ok {
			missing = append(missing, target)
			continue
		}
		if err := deps.setEnv(target, value); err != nil {
			return &ConfigError{
				Type:    ErrSecretResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", target),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("secret files not found for: %s", strings.Join(missing, ", ")),
		}
	}

	return nil
}
