// Package main is the entrypoint of the long-running engine process. It loads
// configuration, connects to Postgres, starts the cron driver that fires the
// scheduled jobs and serves the read/admin HTTP API. SIGINT or SIGTERM stops
// the driver (waiting up to SHUTDOWN_TIMEOUT for in-flight jobs) and then the
// HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"learnpulse/internal/api/handlers"
	"learnpulse/internal/app"
	"learnpulse/internal/config"
	"learnpulse/internal/core"
	"learnpulse/internal/driver"
	"learnpulse/internal/external"
	"learnpulse/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(nil)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(os.Stdout, cfg.LogLevel).With("service", cfg.Service)
	slog.SetDefault(logger)
	logger.Info("engine starting",
		"environment", cfg.Environment,
		"build", cfg.Build,
		"timezone", cfg.Scheduler.Location().String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := app.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	var awsCfg aws.Config
	if app.NeedsAWS(cfg) {
		if awsCfg, err = app.LoadAWS(ctx, cfg.AWS); err != nil {
			return err
		}
	}

	deps := app.Deps{
		Config:    cfg,
		DB:        pool,
		Publisher: app.NewPublisher(awsCfg, cfg.AWS, logger),
		Metrics:   app.NewMetrics(awsCfg, cfg.Observability, logger),
		Clock:     types.RealClock{},
		WorkerID:  workerID(),
		Logger:    logger,
	}
	predictor := app.NewPredictor(cfg.Prediction, logger)
	if predictor != nil {
		deps.Predictor = predictor
	}
	engine := app.Build(deps)

	drv, err := driver.New(engine.Runner, driver.SchedulesFromConfig(cfg.Scheduler), driver.Options{
		Location:        cfg.Scheduler.Location(),
		ShutdownTimeout: cfg.Scheduler.ShutdownTimeout,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("creating job driver: %w", err)
	}

	var srv *core.Server
	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		srv, err = newServer(cfg, logger, engine, pool, predictor)
		if err != nil {
			return err
		}
		ln, err := net.Listen("tcp", ":"+cfg.Server.Port)
		if err != nil {
			return fmt.Errorf("listening on port %s: %w", cfg.Server.Port, err)
		}
		go func() { serverErr <- srv.Serve(ln) }()
	}

	drv.Start()
	logger.Info("engine started", "worker_id", deps.WorkerID, "http_enabled", cfg.Server.Enabled)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	}

	return shutdown(cfg, logger, drv, srv)
}

// shutdown stops the driver first so no job starts while the API drains.
func shutdown(cfg *config.Config, logger *slog.Logger, drv *driver.Driver, srv *core.Server) error {
	// The driver waits ShutdownTimeout before cancelling jobs; allow the
	// same again for cancelled jobs to return.
	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Scheduler.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := drv.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		logger.Error("engine stopped with errors", "error", err)
		return err
	}
	logger.Info("engine stopped cleanly")
	return nil
}

func newServer(
	cfg *config.Config,
	logger *slog.Logger,
	engine *app.Engine,
	pool *pgxpool.Pool,
	predictor *external.PredictionClient,
) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	srv.HealthProbes = healthProbes(pool, predictor)

	// The runner clock decides what "today" means for the API too.
	learners := handlers.NewLearnerHandler(engine.Summaries, engine.Snapshots, engine.Runner, cfg.Scheduler.Location(), logger).
		WithLearnerLookup(engine.Learners)
	admin := handlers.NewAdminHandler(engine.Runner, engine.JobHistory, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, learners.RegisterRoutes, admin.RegisterRoutes)

	srv.MountRoutes()
	return srv, nil
}

func healthProbes(pool *pgxpool.Pool, predictor *external.PredictionClient) []core.HealthProbe {
	probes := []core.HealthProbe{
		core.ProbeFunc{ProbeName: "database", Critical: true, Fn: pool.Ping},
	}
	if predictor != nil {
		// Snapshots fall back without the predictor, so it only degrades.
		probes = append(probes, core.ProbeFunc{ProbeName: "prediction", Fn: func(ctx context.Context) error {
			status, err := predictor.Health(ctx)
			if err != nil {
				return err
			}
			if !status.ModelLoaded {
				return fmt.Errorf("prediction model not loaded (status %q)", status.Status)
			}
			return nil
		}})
	}
	return probes
}

// workerID identifies this process in job locks.
func workerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.NewString()
	}
	return host + "-" + uuid.NewString()[:8]
}
