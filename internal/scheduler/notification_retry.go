package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"learnpulse/internal/batch"
	"learnpulse/internal/notifications"
	"learnpulse/internal/types"
)

// RetryResult is the outcome of a notification retry run.
type RetryResult struct {
	batch.Summary
	// Retried is the number of reminders created.
	Retried int
}

// RetryService re-sends unread risk alerts according to the retry policy.
type RetryService struct {
	snapshots     SnapshotStore
	notifications NotificationStore
	publisher     notifications.Publisher
	policy        notifications.Policy
	pool          *batch.Pool
	opts          Options
	logger        *slog.Logger
}

// NewRetryService creates a new RetryService. A nil publisher only persists
// reminders; a nil policy uses notifications.DefaultPolicy.
func NewRetryService(
	snapshots SnapshotStore,
	store NotificationStore,
	publisher notifications.Publisher,
	policy notifications.Policy,
	pool *batch.Pool,
	opts Options,
	logger *slog.Logger,
) *RetryService {
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
	return &RetryService{
		snapshots:     snapshots,
		notifications: store,
		publisher:     publisher,
		policy:        policy,
		pool:          pool,
		opts:          opts,
		logger:        logger,
	}
}

// ProcessRetries scans unread root risk alerts and creates a reminder for
// each one that is eligible at now. The level used for eligibility is the
// learner's latest snapshot level, or the alert's own level when the learner
// has no snapshot.
func (s *RetryService) ProcessRetries(ctx context.Context, now time.Time) (RetryResult, error) {
	var (
		result  RetryResult
		retried atomic.Int64
	)

	shortest, ok := shortestInterval(s.policy)
	if !ok {
		return result, nil
	}

	filter := types.UnreadNotificationFilter{
		Category: types.CategoryRiskAlert,
		// Nothing created after now-shortest can be due.
		CreatedUntil: now.Add(-shortest),
		RootsOnly:    true,
		Limit:        s.opts.pageSize(),
	}

	for {
		if err := ctx.Err(); err != nil {
			result.Retried = int(retried.Load())
			return result, err
		}

		page, err := s.notifications.FindUnreadNotifications(ctx, filter)
		if err != nil {
			result.Retried = int(retried.Load())
			return result, fmt.Errorf("finding unread notifications: %w", err)
		}
		if len(page) == 0 {
			break
		}

		byID := make(map[string]*types.Notification, len(page))
		ids := make([]string, len(page))
		for i := range page {
			byID[page[i].ID] = &page[i]
			ids[i] = page[i].ID
		}

		results := batch.Run(ctx, s.pool, ids, func(ctx context.Context, id string) error {
			ok, err := s.retryOne(ctx, byID[id], now)
			if ok {
				retried.Add(1)
			}
			return err
		})
		logFailures(ctx, s.logger, TaskNotificationRetry, results)
		result.Merge(batch.Summarize(results))

		if len(page) < filter.Limit {
			break
		}
		filter.AfterID = page[len(page)-1].ID
	}

	result.Retried = int(retried.Load())
	s.logger.InfoContext(ctx, "notification retry complete",
		"processed", result.Processed,
		"errors", result.Errors,
		"retried", result.Retried,
	)
	return result, ctx.Err()
}

// retryOne reports whether a reminder was created for n.
func (s *RetryService) retryOne(ctx context.Context, n *types.Notification, now time.Time) (bool, error) {
	level, err := s.currentLevel(ctx, n)
	if err != nil {
		return false, err
	}
	if !notifications.Eligible(n, level, now, s.policy) {
		if next, ok := notifications.NextEligibleAt(n, level, s.policy); ok {
			s.logger.DebugContext(ctx, "notification not yet due",
				"notification_id", n.ID,
				"risk_level", string(level),
				"next_eligible_at", next,
			)
		}
		return false, nil
	}

	if err := s.notifications.UpdateNotificationRetryState(ctx, n.ID, n.RetryCount, now); err != nil {
		if types.HasCode(err, types.ErrCodeConflictRetryState) {
			s.logger.InfoContext(ctx, "notification changed before retry, skipping",
				"notification_id", n.ID,
				"learner_id", n.LearnerID,
			)
			return false, nil
		}
		return false, fmt.Errorf("claiming retry slot: %w", err)
	}

	reminder := notifications.Reminder(n, now)
	if err := s.notifications.CreateNotification(ctx, reminder); err != nil {
		// The slot is already claimed; the next retry happens one interval later.
		return false, fmt.Errorf("creating reminder for %s: %w", n.ID, err)
	}
	publish(ctx, s.publisher, s.logger, reminder)

	s.logger.InfoContext(ctx, "notification retried",
		"notification_id", n.ID,
		"reminder_id", reminder.ID,
		"learner_id", n.LearnerID,
		"risk_level", string(level),
		"retry_count", n.RetryCount+1,
	)
	return true, nil
}

func (s *RetryService) currentLevel(ctx context.Context, n *types.Notification) (types.RiskLevel, error) {
	snap, err := s.snapshots.GetLatestSnapshot(ctx, n.LearnerID)
	if err != nil {
		if types.HasCode(err, types.ErrCodeNotFoundSnapshot) {
			return n.RiskLevel, nil
		}
		return "", fmt.Errorf("loading latest snapshot: %w", err)
	}
	return snap.RiskLevel, nil
}

func shortestInterval(policy notifications.Policy) (time.Duration, bool) {
	var (
		shortest time.Duration
		found    bool
	)
	for _, rule := range policy {
		if rule.MaxRetries <= 0 {
			continue
		}
		if !found || rule.Interval < shortest {
			shortest = rule.Interval
			found = true
		}
	}
	return shortest, found
}
