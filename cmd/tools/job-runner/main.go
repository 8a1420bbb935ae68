// Package main implements the job-runner CLI for invoking engine tasks
// directly, outside the engine's cron loop and the trigger Lambda.
//
// It is intended for local development, manual backfills and operational
// debugging. Runs go through the same scheduler.Runner as the engine, so job
// locks and job history apply.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --task=engagement_recompute
//	go run ./cmd/tools/job-runner --task=daily_risk_snapshot --reference-time=2026-03-10T02:00:00Z
//	go run ./cmd/tools/job-runner --recompute
//	go run ./cmd/tools/job-runner --dry-run --task=risk_alerts
//	go run ./cmd/tools/job-runner --list
//
// Configuration is read from the environment (or a .env file) exactly as the
// engine reads it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"learnpulse/internal/app"
	"learnpulse/internal/config"
	"learnpulse/internal/scheduler"
	"learnpulse/internal/types"
)

// taskDescriptions documents every task for --list.
var taskDescriptions = map[scheduler.TaskType]string{
	scheduler.TaskEngagementRecompute: "Recompute XP, level, streaks and engagement score for every learner",
	scheduler.TaskDailyRiskSnapshot:   "Write today's risk snapshot for every learner",
	scheduler.TaskRiskAlerts:          "Open risk alerts for learners above the risk threshold",
	scheduler.TaskNotificationRetry:   "Re-send unread risk alerts per the retry policy",
	scheduler.TaskDailyMotivation:     "Send one motivational message to each active learner",
}

// options holds the parsed command line.
type options struct {
	Task      scheduler.TaskType
	Reference *time.Time
	Recompute bool
	List      bool
	DryRun    bool
}

var errUsage = errors.New("usage")

// parseArgs parses and validates args (without the program name).
func parseArgs(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("job-runner", flag.ContinueOnError)
	fs.SetOutput(stderr)

	task := fs.String("task", "", "Task type to execute (e.g., daily_risk_snapshot)")
	refTime := fs.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-03-10T02:00:00Z)")
	recompute := fs.Bool("recompute", false, "Recompute engagement, then snapshot risk for today")
	list := fs.Bool("list", false, "List all available task types and exit")
	dryRun := fs.Bool("dry-run", false, "Print the JSON payload without executing")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(stderr, "Run engine tasks directly, bypassing the scheduler.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nUse --list to see all available task types.\n")
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{Recompute: *recompute, List: *list, DryRun: *dryRun}
	if opts.List {
		return opts, nil
	}

	if opts.Recompute {
		if *task != "" || *refTime != "" || opts.DryRun {
			return options{}, fmt.Errorf("%w: --recompute cannot be combined with --task, --reference-time or --dry-run", errUsage)
		}
		return opts, nil
	}

	if *task == "" {
		return options{}, fmt.Errorf("%w: --task is required", errUsage)
	}
	t, err := scheduler.ParseTask(*task)
	if err != nil {
		return options{}, err
	}
	opts.Task = t

	if *refTime != "" {
		ts, err := time.Parse(time.RFC3339, *refTime)
		if err != nil {
			return options{}, fmt.Errorf("%w: invalid --reference-time %q, expected RFC3339 such as 2026-03-10T02:00:00Z", errUsage, *refTime)
		}
		ts = ts.UTC()
		opts.Reference = &ts
	}
	return opts, nil
}

// payload builds the JobPayload for opts.
func (o options) payload() scheduler.JobPayload {
	return scheduler.JobPayload{Task: o.Task, ReferenceTime: o.Reference}
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		if types.HasCode(err, types.ErrCodeValidationUnknownTask) {
			printAvailableTasks(os.Stderr)
		}
		os.Exit(2)
	}

	if opts.List {
		printAvailableTasks(os.Stderr)
		return
	}

	if opts.DryRun {
		if err := printPayload(os.Stdout, os.Stderr, opts.payload()); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the engine the same way cmd/engine does and executes opts.
func run(ctx context.Context, opts options) error {
	cfg, err := config.LoadConfig(nil)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := app.NewLogger(os.Stdout, cfg.LogLevel).With("service", cfg.Service, "component", "job-runner")

	pool, err := app.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	deps := app.Deps{
		Config:   cfg,
		DB:       pool,
		Clock:    types.RealClock{},
		WorkerID: "job-runner-" + uuid.NewString(),
		Logger:   logger,
	}
	if app.NeedsAWS(cfg) {
		awsCfg, err := app.LoadAWS(ctx, cfg.AWS)
		if err != nil {
			return err
		}
		deps.Publisher = app.NewPublisher(awsCfg, cfg.AWS, logger)
		deps.Metrics = app.NewMetrics(awsCfg, cfg.Observability, logger)
	}
	if p := app.NewPredictor(cfg.Prediction, logger); p != nil {
		deps.Predictor = p
	}
	runner := app.Build(deps).Runner

	if opts.Recompute {
		reports, err := runner.TriggerRiskScoreRecompute(ctx)
		for _, r := range reports {
			logReport(logger, r)
		}
		return err
	}

	report, err := runner.Execute(ctx, opts.payload())
	logReport(logger, report)
	if types.HasCode(err, types.ErrCodeConflictJobRunning) {
		logger.Warn("task skipped, another worker holds the lock", "task", string(opts.Task))
		return nil
	}
	return err
}

func logReport(logger *slog.Logger, r scheduler.RunReport) {
	logger.Info("task finished",
		"task", string(r.Task),
		"run_id", r.RunID,
		"status", r.Status,
		"processed", r.Summary.Processed,
		"errors", r.Summary.Errors,
		"affected", r.Affected,
		"duration_ms", r.Duration.Milliseconds(),
	)
}

// printAvailableTasks writes every task with its description in pipeline
// order.
func printAvailableTasks(w io.Writer) {
	fmt.Fprintf(w, "Available task types:\n\n")

	maxLen := 0
	for _, t := range scheduler.AllTasks {
		maxLen = max(maxLen, len(t))
	}
	for _, t := range scheduler.AllTasks {
		fmt.Fprintf(w, "  %-*s  %s\n", maxLen, string(t), taskDescriptions[t])
	}
	fmt.Fprintln(w)
}

// printPayload writes payload as indented JSON to out, for piping into
// `aws lambda invoke`, and a short description to info.
func printPayload(out, info io.Writer, payload scheduler.JobPayload) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	fmt.Fprintln(out, string(data))

	fmt.Fprintf(info, "\nTask: %s\nDescription: %s\n", payload.Task, taskDescriptions[payload.Task])
	if payload.ReferenceTime != nil {
		fmt.Fprintf(info, "Reference time: %s\n", payload.ReferenceTime.Format(time.RFC3339))
	} else {
		fmt.Fprintf(info, "Reference time: (the runner's clock will be used)\n")
	}
	return nil
}
