package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"learnpulse/internal/batch"
	"learnpulse/internal/engagement"
	"learnpulse/internal/types"
)

// EngagementService recomputes every learner's engagement summary.
type EngagementService struct {
	learners  LearnerReader
	summaries SummaryWriter
	pool      *batch.Pool
	opts      Options
	logger    *slog.Logger
}

// NewEngagementService creates a new EngagementService.
func NewEngagementService(learners LearnerReader, summaries SummaryWriter, pool *batch.Pool, opts Options, logger *slog.Logger) *EngagementService {
	if logger == nil {
		logger = slog.Default()
	}
	if pool == nil {
		pool = batch.NewPool(batch.DefaultConcurrency)
	}
	return &EngagementService{
		learners:  learners,
		summaries: summaries,
		pool:      pool,
		opts:      opts,
		logger:    logger,
	}
}

// RecomputeAll pages through all learners and upserts a fresh summary for
// each. A learner that fails is counted and logged; only a failure to list
// learners aborts the run.
func (s *EngagementService) RecomputeAll(ctx context.Context, now time.Time) (batch.Summary, error) {
	var total batch.Summary

	err := forEachLearnerPage(ctx, s.learners, s.opts.pageSize(), func(ids []string) {
		results := batch.Run(ctx, s.pool, ids, func(ctx context.Context, learnerID string) error {
			_, err := s.RecomputeLearner(ctx, learnerID, now)
			return err
		})
		logFailures(ctx, s.logger, TaskEngagementRecompute, results)
		total.Merge(batch.Summarize(results))
	})
	if err != nil {
		return total, err
	}

	s.logger.InfoContext(ctx, "engagement recompute complete",
		"processed", total.Processed,
		"errors", total.Errors,
	)
	return total, nil
}

// RecomputeLearner computes and stores one learner's summary.
func (s *EngagementService) RecomputeLearner(ctx context.Context, learnerID string, now time.Time) (types.EngagementSummary, error) {
	events, err := s.learners.FindActivitiesByLearner(ctx, learnerID)
	if err != nil {
		return types.EngagementSummary{}, fmt.Errorf("loading activities: %w", err)
	}
	enrollments, err := s.learners.ListEnrollmentsByLearner(ctx, learnerID)
	if err != nil {
		return types.EngagementSummary{}, fmt.Errorf("loading enrollments: %w", err)
	}

	summary, err := engagement.Compute(learnerID, events, enrollments, now, s.opts.location())
	if err != nil {
		return types.EngagementSummary{}, err
	}

	if err := s.summaries.UpsertEngagementSummary(ctx, &summary); err != nil {
		return types.EngagementSummary{}, fmt.Errorf("storing summary: %w", err)
	}
	return summary, nil
}

// forEachLearnerPage calls fn with successive pages of learner IDs until the
// lister is exhausted or ctx is done.
func forEachLearnerPage(ctx context.Context, lister LearnerLister, pageSize int, fn func(ids []string)) error {
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ids, err := lister.ListLearnerIDs(ctx, after, pageSize)
		if err != nil {
			return fmt.Errorf("listing learners after %q: %w", after, err)
		}
		if len(ids) == 0 {
			return nil
		}

		fn(ids)

		if len(ids) < pageSize {
			return ctx.Err()
		}
		after = ids[len(ids)-1]
	}
}

// logFailures logs every failed item of a batch.
func logFailures(ctx context.Context, logger *slog.Logger, task TaskType, results []batch.Result) {
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		logger.WarnContext(ctx, "item failed",
			"task", string(task),
			"item_id", r.ID,
			"error", r.Err,
		)
	}
}
