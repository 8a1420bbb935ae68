package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"learnpulse/internal/batch"
	"learnpulse/internal/types"
)

// DefaultLockTTL covers the longest expected run with margin.
const DefaultLockTTL = 55 * time.Minute

// Job interfaces implemented by the services in this package.
type (
	EngagementJob interface {
		RecomputeAll(ctx context.Context, now time.Time) (batch.Summary, error)
	}
	SnapshotJob interface {
		SnapshotDaily(ctx context.Context, now time.Time) (SnapshotResult, error)
	}
	AlertJob interface {
		SendAlerts(ctx context.Context, now time.Time) (AlertResult, error)
	}
	RetryJob interface {
		ProcessRetries(ctx context.Context, now time.Time) (RetryResult, error)
	}
	MotivationJob interface {
		SendDaily(ctx context.Context, now time.Time) (MotivationResult, error)
	}
)

// Jobs holds the job implementations the Runner dispatches to. A nil field
// makes its task unavailable.
type Jobs struct {
	Engagement EngagementJob
	Snapshots  SnapshotJob
	Alerts     AlertJob
	Retries    RetryJob
	Motivation MotivationJob
}

func (j Jobs) has(task TaskType) bool {
	switch task {
	case TaskEngagementRecompute:
		return j.Engagement != nil
	case TaskDailyRiskSnapshot:
		return j.Snapshots != nil
	case TaskRiskAlerts:
		return j.Alerts != nil
	case TaskNotificationRetry:
		return j.Retries != nil
	case TaskDailyMotivation:
		return j.Motivation != nil
	}
	return false
}

// JobLocker abstracts the distributed lock.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) error
}

// JobHistorian abstracts the job history recording.
type JobHistorian interface {
	Start(ctx context.Context, task string, runID string) (int64, error)
	Finish(ctx context.Context, id int64, status string, processed, errCount int, jobErr error) error
}

// RunReport describes one job run.
type RunReport struct {
	Task          TaskType      `json:"task"`
	RunID         string        `json:"run_id"`
	Status        string        `json:"status"`
	ReferenceTime time.Time     `json:"reference_time"`
	Duration      time.Duration `json:"duration_ns"`
	Summary       batch.Summary `json:"summary"`
	// Affected counts the rows a notification job created.
	Affected     int                     `json:"affected,omitempty"`
	Skipped      int                     `json:"skipped,omitempty"`
	Fallbacks    int                     `json:"fallbacks,omitempty"`
	Distribution *types.RiskDistribution `json:"distribution,omitempty"`
	Error        string                  `json:"error,omitempty"`
}

// RunnerConfig holds the optional Runner settings.
type RunnerConfig struct {
	WorkerID string
	LockTTL  time.Duration
	Clock    types.Clock
	Metrics  JobMetrics
	Logger   *slog.Logger
}

// Runner executes jobs with locking, history, panic recovery and metrics.
// It is safe for concurrent use.
type Runner struct {
	jobs     Jobs
	locks    JobLocker
	history  JobHistorian
	metrics  JobMetrics
	clock    types.Clock
	workerID string
	lockTTL  time.Duration
	logger   *slog.Logger
}

// NewRunner creates a Runner. locks and history may be nil, in which case
// runs are neither serialized across processes nor recorded.
func NewRunner(jobs Jobs, locks JobLocker, history JobHistorian, cfg RunnerConfig) *Runner {
	r := &Runner{
		jobs:     jobs,
		locks:    locks,
		history:  history,
		metrics:  cfg.Metrics,
		clock:    cfg.Clock,
		workerID: cfg.WorkerID,
		lockTTL:  cfg.LockTTL,
		logger:   cfg.Logger,
	}
	if r.metrics == nil {
		r.metrics = nopMetrics{}
	}
	if r.clock == nil {
		r.clock = types.RealClock{}
	}
	if r.workerID == "" {
		r.workerID = uuid.NewString()
	}
	if r.lockTTL <= 0 {
		r.lockTTL = DefaultLockTTL
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Now returns the runner clock's current time.
func (r *Runner) Now() time.Time {
	return r.clock.Now()
}

// Run executes a scheduled run of task. The lock is keyed by task and fire
// minute and is left to expire, so replicas firing the same schedule run it
// once. A held lock returns a conflict_job_running error with Status skipped.
func (r *Runner) Run(ctx context.Context, task TaskType, now time.Time) (RunReport, error) {
	lockID := ScheduledLockID(task, now)
	return r.execute(ctx, task, now, lockID, false)
}

// ScheduledLockID is the job lock of the scheduled run of task firing at now.
// Cron fires on minute boundaries, so every schedule down to once a minute
// gets its own lock per fire.
func ScheduledLockID(task TaskType, now time.Time) string {
	return fmt.Sprintf("%s:%s", task, now.UTC().Truncate(time.Minute).Format("2006-01-02T15:04"))
}

// Trigger executes a manual run of task. Manual runs share one lock per task
// that is released when the run ends.
func (r *Runner) Trigger(ctx context.Context, task TaskType, now time.Time) (RunReport, error) {
	return r.execute(ctx, task, now, fmt.Sprintf("%s:manual", task), true)
}

// Execute runs payload as a manual trigger, using its reference time when set.
func (r *Runner) Execute(ctx context.Context, payload JobPayload) (RunReport, error) {
	task, err := ParseTask(string(payload.Task))
	if err != nil {
		return RunReport{Task: payload.Task}, err
	}
	now := r.Now()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}
	return r.Trigger(ctx, task, now)
}

// TriggerDailyRiskUpdate snapshots today's risk immediately.
func (r *Runner) TriggerDailyRiskUpdate(ctx context.Context) (RunReport, error) {
	return r.Trigger(ctx, TaskDailyRiskSnapshot, r.Now())
}

// TriggerRiskScoreRecompute refreshes engagement summaries and then today's
// risk snapshot. The snapshot is not taken if the recompute fails.
func (r *Runner) TriggerRiskScoreRecompute(ctx context.Context) ([]RunReport, error) {
	now := r.Now()

	engagementReport, err := r.Trigger(ctx, TaskEngagementRecompute, now)
	reports := []RunReport{engagementReport}
	if err != nil {
		return reports, err
	}

	snapshotReport, err := r.Trigger(ctx, TaskDailyRiskSnapshot, now)
	return append(reports, snapshotReport), err
}

func (r *Runner) execute(ctx context.Context, task TaskType, now time.Time, lockID string, release bool) (RunReport, error) {
	report := RunReport{
		Task:          task,
		RunID:         uuid.NewString(),
		ReferenceTime: now,
	}
	if !r.jobs.has(task) {
		return report, types.NewAppError(types.ErrCodeValidationUnknownTask,
			fmt.Sprintf("task %q is not configured", task), nil)
	}

	ctx = types.WithJobRunID(ctx, report.RunID)
	logger := r.logger.With("task", string(task), "run_id", report.RunID)
	// Bookkeeping writes must land even if the run was cancelled.
	bookCtx := context.WithoutCancel(ctx)

	if r.locks != nil {
		acquired, err := r.locks.Acquire(ctx, lockID, r.workerID, r.lockTTL)
		if err != nil {
			logger.ErrorContext(ctx, "failed to acquire job lock", "lock_id", lockID, "error", err)
			return report, fmt.Errorf("acquiring job lock %s: %w", lockID, err)
		}
		if !acquired {
			report.Status = types.JobStatusSkipped
			logger.InfoContext(ctx, "job lock not acquired, another worker is processing", "lock_id", lockID)
			return report, types.NewAppError(types.ErrCodeConflictJobRunning,
				fmt.Sprintf("task %s is already running", task), nil).
				WithDetails(map[string]any{"lock_id": lockID})
		}
		if release {
			defer func() {
				if err := r.locks.Release(bookCtx, lockID, r.workerID); err != nil {
					logger.WarnContext(ctx, "failed to release job lock", "lock_id", lockID, "error", err)
				}
			}()
		}
	}

	var historyID int64
	if r.history != nil {
		id, err := r.history.Start(ctx, string(task), report.RunID)
		if err != nil {
			// Non-fatal: the run proceeds without a history row.
			logger.ErrorContext(ctx, "failed to start job history", "error", err)
		} else {
			historyID = id
		}
	}

	logger.InfoContext(ctx, "job started",
		"reference_time", now.Format(time.RFC3339),
		"worker_id", r.workerID,
	)

	start := time.Now()
	execErr := r.dispatch(ctx, task, now, &report)
	report.Duration = time.Since(start)

	report.Status = types.JobStatusSuccess
	if execErr != nil {
		report.Status = types.JobStatusFailed
		report.Error = execErr.Error()
	}

	if historyID != 0 {
		if err := r.history.Finish(bookCtx, historyID, report.Status, report.Summary.Processed, report.Summary.Errors, execErr); err != nil {
			logger.ErrorContext(ctx, "failed to finish job history", "job_id", historyID, "error", err)
		}
	}
	r.metrics.RecordRun(bookCtx, report)

	if execErr != nil {
		logger.ErrorContext(ctx, "job failed",
			"processed", report.Summary.Processed,
			"errors", report.Summary.Errors,
			"duration_ms", report.Duration.Milliseconds(),
			"error", execErr,
		)
		return report, fmt.Errorf("task %s failed: %w", task, execErr)
	}

	logger.InfoContext(ctx, "job complete",
		"processed", report.Summary.Processed,
		"errors", report.Summary.Errors,
		"affected", report.Affected,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// dispatch routes task to its job and fills report. A panic in the job is
// returned as an internal_job_panic error.
func (r *Runner) dispatch(ctx context.Context, task TaskType, now time.Time, report *RunReport) (err error) {
	defer func() {
		if v := recover(); v != nil {
			stack := string(debug.Stack())
			r.logger.ErrorContext(ctx, "job panicked",
				"task", string(task),
				"panic", fmt.Sprint(v),
				"stack", stack,
			)
			err = types.NewAppError(types.ErrCodeInternalJobPanic, fmt.Sprintf("panic: %v", v), nil)
		}
	}()

	switch task {
	case TaskEngagementRecompute:
		report.Summary, err = r.jobs.Engagement.RecomputeAll(ctx, now)

	case TaskDailyRiskSnapshot:
		var res SnapshotResult
		res, err = r.jobs.Snapshots.SnapshotDaily(ctx, now)
		report.Summary = res.Summary
		report.Skipped = res.Skipped
		report.Fallbacks = res.Fallbacks
		if err == nil {
			report.Distribution = &res.Distribution
		}

	case TaskRiskAlerts:
		var res AlertResult
		res, err = r.jobs.Alerts.SendAlerts(ctx, now)
		report.Summary = res.Summary
		report.Affected = res.Created

	case TaskNotificationRetry:
		var res RetryResult
		res, err = r.jobs.Retries.ProcessRetries(ctx, now)
		report.Summary = res.Summary
		report.Affected = res.Retried

	case TaskDailyMotivation:
		var res MotivationResult
		res, err = r.jobs.Motivation.SendDaily(ctx, now)
		report.Summary = res.Summary
		report.Affected = res.Sent

	default:
		err = fmt.Errorf("unknown task type: %q", task)
	}
	return err
}
