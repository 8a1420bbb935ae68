package db

import (
	"context"
	"time"

	"learnpulse/internal/types"
)

// ============================================================
// JobLockRepository
// ============================================================

// JobLockRepository provides mutual exclusion for scheduled jobs via the
// job_locks table. A lock row is keyed by task and run window, so only one
// engine process executes a given run even when several replicas fire the
// same cron entry.
type JobLockRepository struct {
	db DBTX
}

// NewJobLockRepository creates a new JobLockRepository backed by the given
// database connection (pool or transaction).
func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db}
}

// Acquire attempts to insert a lock row. Returns true if acquired, false if
// the lock already exists and has not expired. The lockID is typically
// "task:window" (e.g., "daily_risk_snapshot:2026-03-10").
//
// An expired row is reclaimed by the ON CONFLICT UPDATE; an active row makes
// the WHERE clause fail and zero rows are affected.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error) {
	// expires_at is computed in Go; "15m0s" is not a valid PG interval.
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < $3`,
		lockID,
		workerID,
		now,
		expiresAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Release drops a lock held by workerID so the next run window is not
// blocked until expiry. Releasing a lock owned by someone else is a no-op.
func (r *JobLockRepository) Release(ctx context.Context, lockID string, workerID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM job_locks WHERE id = $1 AND worker_id = $2`,
		lockID,
		workerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release job lock", err)
	}
	return nil
}

// ============================================================
// JobHistoryRepository
// ============================================================

// JobHistoryRepository provides data access for the job_history table. Each
// run of a scheduled or manually triggered task gets one row.
type JobHistoryRepository struct {
	db DBTX
}

// NewJobHistoryRepository creates a new JobHistoryRepository backed by the
// given database connection (pool or transaction).
func NewJobHistoryRepository(db DBTX) *JobHistoryRepository {
	return &JobHistoryRepository{db: db}
}

// Start inserts a new job_history row with status 'running' and returns
// the auto-generated BIGSERIAL ID. The caller uses this ID to later call
// Finish with the outcome.
func (r *JobHistoryRepository) Start(ctx context.Context, task string, runID string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (task, run_id, started_at, status)
		 VALUES ($1, $2, NOW(), $3)
		 RETURNING id`,
		task,
		runID,
		types.JobStatusRunning,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job history entry", err)
	}
	return id, nil
}

// Finish records the outcome of run id. If jobErr is non-nil, its message is
// stored in the error column.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, status string, processed, errCount int, jobErr error) error {
	var errMsg *string
	if jobErr != nil {
		s := jobErr.Error()
		errMsg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_history
		 SET finished_at = NOW(), status = $2, processed = $3, errors = $4, error = $5
		 WHERE id = $1`,
		id,
		status,
		processed,
		errCount,
		errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job history entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "job history entry not found", nil)
	}
	return nil
}

// Recent returns the latest runs, newest first. An empty task lists all tasks.
func (r *JobHistoryRepository) Recent(ctx context.Context, task string, limit int) ([]types.JobRun, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, task, run_id, started_at, finished_at, status, processed, errors, error
		 FROM job_history
		 WHERE ($1 = '' OR task = $1)
		 ORDER BY started_at DESC, id DESC
		 LIMIT $2`,
		task,
		pageSize(limit),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query job history", err)
	}
	defer rows.Close()

	var runs []types.JobRun
	for rows.Next() {
		var run types.JobRun
		if err := rows.Scan(
			&run.ID,
			&run.Task,
			&run.RunID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.Processed,
			&run.Errors,
			&run.Error,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan job history row", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating job history", err)
	}
	return runs, nil
}
