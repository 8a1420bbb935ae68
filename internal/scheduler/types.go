// Package scheduler implements the engine's batch jobs and the runner that
// executes them.
//
// Every job takes a `now` parameter so runs are deterministic in tests and
// can be backfilled through JobPayload.ReferenceTime. The Runner adds the
// cross-cutting concerns: job locks, job history, panic recovery and metrics.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"learnpulse/internal/types"
)

// TaskType identifies a scheduled job.
type TaskType string

const (
	TaskEngagementRecompute TaskType = "engagement_recompute"
	TaskDailyRiskSnapshot   TaskType = "daily_risk_snapshot"
	TaskRiskAlerts          TaskType = "risk_alerts"
	TaskNotificationRetry   TaskType = "notification_retry"
	TaskDailyMotivation     TaskType = "daily_motivation"
)

// AllTasks lists every task in pipeline order.
var AllTasks = []TaskType{
	TaskEngagementRecompute,
	TaskDailyRiskSnapshot,
	TaskRiskAlerts,
	TaskNotificationRetry,
	TaskDailyMotivation,
}

// ParseTask validates s as a TaskType.
func ParseTask(s string) (TaskType, error) {
	for _, t := range AllTasks {
		if string(t) == s {
			return t, nil
		}
	}
	return "", types.NewAppError(types.ErrCodeValidationUnknownTask, fmt.Sprintf("unknown task %q", s), nil).
		WithDetails(map[string]any{"task": s})
}

// JobPayload is the JSON payload accepted by the trigger Lambda and the
// job-runner CLI:
//
//	{
//	  "task": "daily_risk_snapshot",
//	  "reference_time": "2026-03-10T02:00:00Z"  // optional
//	}
type JobPayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime overrides "now" for backfills. If nil, the runner's
	// clock is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// LearnerLister pages through learner IDs.
type LearnerLister interface {
	ListLearnerIDs(ctx context.Context, afterID string, limit int) ([]string, error)
}

// LearnerReader is the read-only view of a learner's activity and
// enrollments.
type LearnerReader interface {
	LearnerLister
	FindActivitiesByLearner(ctx context.Context, learnerID string) ([]types.ActivityEvent, error)
	ListEnrollmentsByLearner(ctx context.Context, learnerID string) ([]types.Enrollment, error)
}

// SummaryWriter persists engagement summaries.
type SummaryWriter interface {
	UpsertEngagementSummary(ctx context.Context, s *types.EngagementSummary) error
}

// SnapshotStore is the risk snapshot persistence used by the jobs.
type SnapshotStore interface {
	UpsertRiskSnapshot(ctx context.Context, s *types.RiskSnapshot) error
	GetLatestSnapshot(ctx context.Context, learnerID string) (*types.RiskSnapshot, error)
	ListSnapshotsForDay(ctx context.Context, day time.Time, levels []types.RiskLevel, afterLearnerID string, limit int) ([]types.RiskSnapshot, error)
	GetDistribution(ctx context.Context, day time.Time) (types.RiskDistribution, error)
}

// NotificationStore is the notification persistence used by the jobs.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *types.Notification) error
	FindUnreadNotifications(ctx context.Context, filter types.UnreadNotificationFilter) ([]types.Notification, error)
	UpdateNotificationRetryState(ctx context.Context, id string, expectedRetryCount int, now time.Time) error
	HasOpenRiskAlert(ctx context.Context, learnerID string, since time.Time) (bool, error)
}

// Options holds the tuning shared by all jobs.
type Options struct {
	// Location defines calendar days. Nil means UTC.
	Location *time.Location
	// PageSize bounds how many learners or notifications are read per query.
	PageSize int
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

func (o Options) pageSize() int {
	if o.PageSize <= 0 {
		return defaultPageSize
	}
	return o.PageSize
}

const defaultPageSize = 500
