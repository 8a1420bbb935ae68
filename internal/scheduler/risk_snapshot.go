package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"learnpulse/internal/batch"
	"learnpulse/internal/engagement"
	"learnpulse/internal/risk"
	"learnpulse/internal/types"
)

// Assessor produces a risk assessment for one learner.
type Assessor interface {
	Assess(ctx context.Context, learnerID string, enrollments []types.Enrollment, now time.Time) (risk.Assessment, error)
}

// SnapshotResult is the outcome of a daily snapshot run.
type SnapshotResult struct {
	batch.Summary
	// Skipped counts learners without active enrollments. They are included
	// in Processed but get no snapshot.
	Skipped      int
	Fallbacks    int
	Distribution types.RiskDistribution
}

// RiskSnapshotService writes the daily risk snapshot for every learner.
type RiskSnapshotService struct {
	learners  LearnerReader
	snapshots SnapshotStore
	assessor  Assessor
	pool      *batch.Pool
	opts      Options
	logger    *slog.Logger
}

// NewRiskSnapshotService creates a new RiskSnapshotService.
func NewRiskSnapshotService(learners LearnerReader, snapshots SnapshotStore, assessor Assessor, pool *batch.Pool, opts Options, logger *slog.Logger) *RiskSnapshotService {
	if logger == nil {
		logger = slog.Default()
	}
	if pool == nil {
		pool = batch.NewPool(batch.DefaultConcurrency)
	}
	return &RiskSnapshotService{
		learners:  learners,
		snapshots: snapshots,
		assessor:  assessor,
		pool:      pool,
		opts:      opts,
		logger:    logger,
	}
}

// SnapshotDaily assesses every learner and upserts the snapshot for the
// calendar day containing now. Running it twice on the same day overwrites
// the first run's rows. The returned distribution is read back from the
// store after all writes.
func (s *RiskSnapshotService) SnapshotDaily(ctx context.Context, now time.Time) (SnapshotResult, error) {
	day := engagement.DayOf(now, s.opts.location())
	var (
		result    SnapshotResult
		skipped   atomic.Int64
		fallbacks atomic.Int64
	)

	err := forEachLearnerPage(ctx, s.learners, s.opts.pageSize(), func(ids []string) {
		results := batch.Run(ctx, s.pool, ids, func(ctx context.Context, learnerID string) error {
			a, err := s.snapshotLearner(ctx, learnerID, day, now)
			switch {
			case errors.Is(err, risk.ErrNoActiveEnrollments):
				skipped.Add(1)
				return nil
			case err != nil:
				return err
			}
			if a.Source == types.RiskSourceFallback {
				fallbacks.Add(1)
			}
			return nil
		})
		logFailures(ctx, s.logger, TaskDailyRiskSnapshot, results)
		result.Merge(batch.Summarize(results))
	})
	result.Skipped = int(skipped.Load())
	result.Fallbacks = int(fallbacks.Load())
	if err != nil {
		return result, err
	}

	dist, err := s.snapshots.GetDistribution(ctx, day)
	if err != nil {
		return result, fmt.Errorf("reading risk distribution: %w", err)
	}
	result.Distribution = dist

	s.logger.InfoContext(ctx, "risk snapshot complete",
		"day", day.Format(time.DateOnly),
		"processed", result.Processed,
		"errors", result.Errors,
		"skipped", result.Skipped,
		"fallbacks", result.Fallbacks,
		"high", dist.High,
		"medium", dist.Medium,
		"low", dist.Low,
	)
	return result, nil
}

func (s *RiskSnapshotService) snapshotLearner(ctx context.Context, learnerID string, day, now time.Time) (risk.Assessment, error) {
	enrollments, err := s.learners.ListEnrollmentsByLearner(ctx, learnerID)
	if err != nil {
		return risk.Assessment{}, fmt.Errorf("loading enrollments: %w", err)
	}

	a, err := s.assessor.Assess(ctx, learnerID, enrollments, now)
	if err != nil {
		return risk.Assessment{}, err
	}

	snap := a.Snapshot(day)
	if err := s.snapshots.UpsertRiskSnapshot(ctx, &snap); err != nil {
		return risk.Assessment{}, fmt.Errorf("storing snapshot: %w", err)
	}
	return a, nil
}
