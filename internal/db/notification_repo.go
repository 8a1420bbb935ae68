package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"learnpulse/internal/types"
)

// NotificationRepository provides data access for the notifications table.
// The engine appends notifications and updates only the retry fields of
// existing rows; read_at is owned by the learner-facing application.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, learner_id, risk_level, category, title, message, priority,
	channels, created_at, read_at, retry_count, max_retries, last_retry_at, origin_link_id`

// CreateNotification inserts n. The caller sets the ID.
func (r *NotificationRepository) CreateNotification(ctx context.Context, n *types.Notification) error {
	if n.ID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "notification id is required", nil)
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications (`+notificationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()), NULL, $10, $11, NULL, $12)`,
		n.ID,
		n.LearnerID,
		string(n.RiskLevel),
		string(n.Category),
		n.Title,
		n.Message,
		string(n.Priority),
		channelStrings(n.Channels),
		nilIfZeroTime(n.CreatedAt),
		n.RetryCount,
		n.MaxRetries,
		n.OriginLinkID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification", err)
	}
	return nil
}

// FindUnreadNotifications returns unread, non-terminal notifications matching
// filter, ordered by ID for keyset paging.
func (r *NotificationRepository) FindUnreadNotifications(ctx context.Context, filter types.UnreadNotificationFilter) ([]types.Notification, error) {
	var (
		conds = []string{"read_at IS NULL", "retry_count < max_retries"}
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Levels) > 0 {
		levels := make([]string, len(filter.Levels))
		for i, l := range filter.Levels {
			levels[i] = string(l)
		}
		conds = append(conds, "risk_level = ANY("+arg(levels)+")")
	}
	if filter.Category != "" {
		conds = append(conds, "category = "+arg(string(filter.Category)))
	}
	if !filter.CreatedUntil.IsZero() {
		conds = append(conds, "created_at <= "+arg(filter.CreatedUntil))
	}
	if filter.RootsOnly {
		conds = append(conds, "origin_link_id IS NULL")
	}
	if filter.AfterID != "" {
		conds = append(conds, "id > "+arg(filter.AfterID))
	}

	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY id
		LIMIT ` + arg(pageSize(filter.Limit))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query unread notifications", err)
	}
	defer rows.Close()

	var out []types.Notification
	for rows.Next() {
		var (
			n                         types.Notification
			level, category, priority string
			channels                  []string
		)
		if err := rows.Scan(
			&n.ID,
			&n.LearnerID,
			&level,
			&category,
			&n.Title,
			&n.Message,
			&priority,
			&channels,
			&n.CreatedAt,
			&n.ReadAt,
			&n.RetryCount,
			&n.MaxRetries,
			&n.LastRetryAt,
			&n.OriginLinkID,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification", err)
		}
		n.RiskLevel = types.RiskLevel(level)
		n.Category = types.NotificationCategory(category)
		n.Priority = types.NotificationPriority(priority)
		n.Channels = channelTypes(channels)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notifications", err)
	}
	return out, nil
}

// UpdateNotificationRetryState claims the next retry slot of notification id.
// It only succeeds if the row still has expectedRetryCount, is unread and is
// below its cap; otherwise it returns conflict_retry_state_changed and the
// caller must not create a reminder.
func (r *NotificationRepository) UpdateNotificationRetryState(ctx context.Context, id string, expectedRetryCount int, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications
		 SET retry_count = retry_count + 1, last_retry_at = $3
		 WHERE id = $1
		   AND retry_count = $2
		   AND read_at IS NULL
		   AND retry_count < max_retries`,
		id,
		expectedRetryCount,
		now,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update notification retry state", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictRetryState,
			fmt.Sprintf("notification %s changed since it was read", id), nil)
	}
	return nil
}

// HasOpenRiskAlert reports whether the learner has a root risk alert that is
// still pending (unread with retries left), or one created at or after since.
func (r *NotificationRepository) HasOpenRiskAlert(ctx context.Context, learnerID string, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM notifications
		   WHERE learner_id = $1
		     AND category = $2
		     AND origin_link_id IS NULL
		     AND ((read_at IS NULL AND retry_count < max_retries) OR created_at >= $3)
		 )`,
		learnerID,
		string(types.CategoryRiskAlert),
		since,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check open risk alerts", err)
	}
	return exists, nil
}

func channelStrings(channels []types.ChannelType) []string {
	out := make([]string, len(channels))
	for i, c := range channels {
		out[i] = string(c)
	}
	return out
}

func channelTypes(channels []string) []types.ChannelType {
	out := make([]types.ChannelType, len(channels))
	for i, c := range channels {
		out[i] = types.ChannelType(c)
	}
	return out
}
