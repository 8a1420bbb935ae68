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

// AlertResult is the outcome of a risk alert run.
type AlertResult struct {
	batch.Summary
	Created int
}

// RiskAlertService opens a risk-alert notification for each learner whose
// snapshot today is high or medium and who has no open alert yet.
type RiskAlertService struct {
	snapshots     SnapshotStore
	notifications NotificationStore
	publisher     notifications.Publisher
	policy        notifications.Policy
	pool          *batch.Pool
	opts          Options
	logger        *slog.Logger
}

// NewRiskAlertService creates a new RiskAlertService. A nil publisher only
// persists notifications; a nil policy uses notifications.DefaultPolicy.
func NewRiskAlertService(
	snapshots SnapshotStore,
	store NotificationStore,
	publisher notifications.Publisher,
	policy notifications.Policy,
	pool *batch.Pool,
	opts Options,
	logger *slog.Logger,
) *RiskAlertService {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = notifications.NopPublisher{}
	}
	if policy == nil {
		policy = notifications.DefaultPolicy
	}
	if pool == nil {
		pool = batch.NewPool(batch.DefaultConcurrency)
	}
	return &RiskAlertService{
		snapshots:     snapshots,
		notifications: store,
		publisher:     publisher,
		policy:        policy,
		pool:          pool,
		opts:          opts,
		logger:        logger,
	}
}

// SendAlerts scans today's high and medium snapshots.
func (s *RiskAlertService) SendAlerts(ctx context.Context, now time.Time) (AlertResult, error) {
	day := engagement.DayOf(now, s.opts.location())
	var (
		result  AlertResult
		created atomic.Int64
	)

	err := forEachSnapshotPage(ctx, s.snapshots, day, []types.RiskLevel{types.RiskHigh, types.RiskMedium}, s.opts.pageSize(),
		func(page []types.RiskSnapshot) {
			byLearner := make(map[string]types.RiskSnapshot, len(page))
			ids := make([]string, len(page))
			for i, snap := range page {
				byLearner[snap.LearnerID] = snap
				ids[i] = snap.LearnerID
			}

			results := batch.Run(ctx, s.pool, ids, func(ctx context.Context, learnerID string) error {
				ok, err := s.alertLearner(ctx, byLearner[learnerID], now)
				if ok {
					created.Add(1)
				}
				return err
			})
			logFailures(ctx, s.logger, TaskRiskAlerts, results)
			result.Merge(batch.Summarize(results))
		})
	result.Created = int(created.Load())
	if err != nil {
		return result, err
	}

	s.logger.InfoContext(ctx, "risk alerts complete",
		"day", day.Format(time.DateOnly),
		"processed", result.Processed,
		"errors", result.Errors,
		"created", result.Created,
	)
	return result, nil
}

// alertLearner reports whether a new alert was created.
func (s *RiskAlertService) alertLearner(ctx context.Context, snap types.RiskSnapshot, now time.Time) (bool, error) {
	rule, ok := s.policy[snap.RiskLevel]
	if !ok || rule.MaxRetries == 0 {
		return false, nil
	}

	open, err := s.notifications.HasOpenRiskAlert(ctx, snap.LearnerID, now.Add(-rule.Interval))
	if err != nil {
		return false, fmt.Errorf("checking open alerts: %w", err)
	}
	if open {
		return false, nil
	}

	n := notifications.RiskAlert(snap.LearnerID, snap.RiskLevel, snap.RiskScore, now, s.policy)
	if err := s.notifications.CreateNotification(ctx, n); err != nil {
		return false, fmt.Errorf("creating risk alert: %w", err)
	}
	publish(ctx, s.publisher, s.logger, n)
	return true, nil
}

// publish hands n to the delivery queue. The stored row is the source of
// truth, so a publish failure is logged and not returned.
func publish(ctx context.Context, p notifications.Publisher, logger *slog.Logger, n *types.Notification) {
	if err := p.Publish(ctx, n); err != nil {
		logger.WarnContext(ctx, "failed to publish notification",
			"notification_id", n.ID,
			"learner_id", n.LearnerID,
			"category", string(n.Category),
			"error", err,
		)
	}
}

// forEachSnapshotPage calls fn with successive pages of day's snapshots at
// the given levels.
func forEachSnapshotPage(ctx context.Context, store SnapshotStore, day time.Time, levels []types.RiskLevel, pageSize int, fn func([]types.RiskSnapshot)) error {
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := store.ListSnapshotsForDay(ctx, day, levels, after, pageSize)
		if err != nil {
			return fmt.Errorf("listing snapshots for %s: %w", day.Format(time.DateOnly), err)
		}
		if len(page) == 0 {
			return nil
		}

		fn(page)

		if len(page) < pageSize {
			return ctx.Err()
		}
		after = page[len(page)-1].LearnerID
	}
}
