package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"learnpulse/internal/batch"
	"learnpulse/internal/engagement"
	"learnpulse/internal/notifications"
	"learnpulse/internal/types"
)

// MotivationResult is the outcome of a daily motivation run.
type MotivationResult struct {
	batch.Summary
	Sent int
}

// MotivationService sends one encouraging message to every learner whose
// snapshot today is low risk.
//
// The job keeps no record of what it sent, so running it twice on the same
// day sends twice.
type MotivationService struct {
	snapshots     SnapshotStore
	notifications NotificationStore
	publisher     notifications.Publisher
	pick          func(n int) int
	pool          *batch.Pool
	opts          Options
	logger        *slog.Logger
}

// NewMotivationService creates a new MotivationService. pick chooses the
// message index; nil picks at random.
func NewMotivationService(
	snapshots SnapshotStore,
	store NotificationStore,
	publisher notifications.Publisher,
	pick func(n int) int,
	pool *batch.Pool,
	opts Options,
	logger *slog.Logger,
) *MotivationService {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = notifications.NopPublisher{}
	}
	if pool == nil {
		pool = batch.NewPool(batch.DefaultConcurrency)
	}
	return &MotivationService{
		snapshots:     snapshots,
		notifications: store,
		publisher:     publisher,
		pick:          pick,
		pool:          pool,
		opts:          opts,
		logger:        logger,
	}
}

// SendDaily messages today's low-risk learners.
func (s *MotivationService) SendDaily(ctx context.Context, now time.Time) (MotivationResult, error) {
	day := engagement.DayOf(now, s.opts.location())
	var (
		result MotivationResult
		sent   atomic.Int64
	)

	err := forEachSnapshotPage(ctx, s.snapshots, day, []types.RiskLevel{types.RiskLow}, s.opts.pageSize(),
		func(page []types.RiskSnapshot) {
			ids := make([]string, len(page))
			for i, snap := range page {
				ids[i] = snap.LearnerID
			}

			results := batch.Run(ctx, s.pool, ids, func(ctx context.Context, learnerID string) error {
				n := notifications.Motivation(learnerID, now, s.pick)
				if err := s.notifications.CreateNotification(ctx, n); err != nil {
					return fmt.Errorf("creating motivation: %w", err)
				}
				publish(ctx, s.publisher, s.logger, n)
				sent.Add(1)
				return nil
			})
			logFailures(ctx, s.logger, TaskDailyMotivation, results)
			result.Merge(batch.Summarize(results))
		})
	result.Sent = int(sent.Load())
	if err != nil {
		return result, err
	}

	s.logger.InfoContext(ctx, "daily motivation complete",
		"day", day.Format(time.DateOnly),
		"processed", result.Processed,
		"errors", result.Errors,
		"sent", result.Sent,
	)
	return result, nil
}
