// Package driver fires the engine's jobs on their cron schedules. Each
// schedule calls scheduler.Runner.Run with the runner clock's current time;
// the runner owns locking, history and panic recovery. The driver adds
// per-job serialization inside one process and graceful shutdown.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"learnpulse/internal/config"
	"learnpulse/internal/scheduler"
	"learnpulse/internal/types"
)

// DefaultShutdownTimeout is how long Stop waits for in-flight runs before
// cancelling them.
const DefaultShutdownTimeout = 30 * time.Second

// JobRunner is the subset of scheduler.Runner the driver needs.
type JobRunner interface {
	Run(ctx context.Context, task scheduler.TaskType, now time.Time) (scheduler.RunReport, error)
	Now() time.Time
}

// Schedule binds a task to a standard 5-field cron spec or a descriptor
// such as "@daily".
type Schedule struct {
	Task scheduler.TaskType
	Spec string
}

// SchedulesFromConfig returns one schedule per task. An empty spec disables
// its task.
func SchedulesFromConfig(cfg config.SchedulerConfig) []Schedule {
	all := []Schedule{
		{Task: scheduler.TaskEngagementRecompute, Spec: cfg.EngagementSchedule},
		{Task: scheduler.TaskDailyRiskSnapshot, Spec: cfg.RiskSnapshotSchedule},
		{Task: scheduler.TaskRiskAlerts, Spec: cfg.RiskAlertSchedule},
		{Task: scheduler.TaskNotificationRetry, Spec: cfg.RetrySchedule},
		{Task: scheduler.TaskDailyMotivation, Spec: cfg.MotivationSchedule},
	}
	out := all[:0]
	for _, s := range all {
		if s.Spec != "" {
			out = append(out, s)
		}
	}
	return out
}

// Options configures a Driver.
type Options struct {
	// Location evaluates the cron specs. Defaults to UTC.
	Location        *time.Location
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// Entry describes a registered schedule.
type Entry struct {
	Task scheduler.TaskType `json:"task"`
	Spec string             `json:"spec"`
	Next time.Time          `json:"next"`
}

// Driver runs the job schedules.
type Driver struct {
	cron            *cron.Cron
	runner          JobRunner
	schedules       map[cron.EntryID]Schedule
	shutdownTimeout time.Duration
	logger          *slog.Logger

	// ctx is handed to every run and cancelled when Stop gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Driver and registers schedules. An invalid spec or a
// duplicate task is an error.
func New(runner JobRunner, schedules []Schedule, opts Options) (*Driver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	cronLogger := NewCronLogger(logger)
	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		runner:          runner,
		schedules:       make(map[cron.EntryID]Schedule, len(schedules)),
		shutdownTimeout: timeout,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
	}

	seen := make(map[scheduler.TaskType]bool, len(schedules))
	for _, s := range schedules {
		if _, err := scheduler.ParseTask(string(s.Task)); err != nil {
			cancel()
			return nil, err
		}
		if seen[s.Task] {
			cancel()
			return nil, fmt.Errorf("task %s scheduled twice", s.Task)
		}
		seen[s.Task] = true

		task := s.Task
		id, err := d.cron.AddFunc(s.Spec, func() { d.fire(task) })
		if err != nil {
			cancel()
			return nil, fmt.Errorf("invalid schedule %q for task %s: %w", s.Spec, s.Task, err)
		}
		d.schedules[id] = s
	}

	return d, nil
}

// Start begins firing schedules in the background.
func (d *Driver) Start() {
	d.cron.Start()
	for _, e := range d.Entries() {
		d.logger.Info("job scheduled",
			"task", string(e.Task),
			"spec", e.Spec,
			"next_run", e.Next.Format(time.RFC3339),
		)
	}
}

// Entries lists the registered schedules ordered by next run. Next is zero
// before Start.
func (d *Driver) Entries() []Entry {
	entries := d.cron.Entries()
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		s := d.schedules[e.ID]
		out = append(out, Entry{Task: s.Task, Spec: s.Spec, Next: e.Next})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Next.Before(out[j].Next) })
	return out
}

// Stop stops scheduling and waits up to the shutdown timeout for in-flight
// runs. After that their context is cancelled and Stop waits for them to
// return until ctx expires.
func (d *Driver) Stop(ctx context.Context) error {
	done := d.cron.Stop().Done()

	timer := time.NewTimer(d.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		d.cancel()
		d.logger.Info("job driver stopped")
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	d.logger.Warn("in-flight jobs did not finish in time, cancelling",
		"shutdown_timeout", d.shutdownTimeout.String(),
	)
	d.cancel()

	select {
	case <-done:
		d.logger.Info("job driver stopped after cancelling in-flight jobs")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for cancelled jobs: %w", ctx.Err())
	}
}

// fire runs one scheduled occurrence of task.
func (d *Driver) fire(task scheduler.TaskType) {
	if d.ctx.Err() != nil {
		return
	}

	report, err := d.runner.Run(d.ctx, task, d.runner.Now())
	switch {
	case err == nil:
	case types.HasCode(err, types.ErrCodeConflictJobRunning):
		d.logger.Info("scheduled run skipped, held by another worker", "task", string(task))
	case errors.Is(err, context.Canceled) && d.ctx.Err() != nil:
		d.logger.Warn("scheduled run aborted by shutdown", "task", string(task), "run_id", report.RunID)
	default:
		// The runner has logged the failure and recorded it in history.
		d.logger.Debug("scheduled run failed", "task", string(task), "run_id", report.RunID, "error", err)
	}
}
