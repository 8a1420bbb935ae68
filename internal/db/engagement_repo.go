package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"learnpulse/internal/types"
)

// EngagementRepository owns the engagement_summaries table. Rows are written
// only by the engagement recompute job.
type EngagementRepository struct {
	db DBTX
}

// NewEngagementRepository creates a new EngagementRepository.
func NewEngagementRepository(db DBTX) *EngagementRepository {
	return &EngagementRepository{db: db}
}

// UpsertEngagementSummary replaces the learner's summary wholesale.
func (r *EngagementRepository) UpsertEngagementSummary(ctx context.Context, s *types.EngagementSummary) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO engagement_summaries
		 (learner_id, total_hours, current_streak_days, longest_streak_days,
		  avg_session_minutes, completion_rate, experience_points, level,
		  last_activity_at, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (learner_id) DO UPDATE SET
		   total_hours = EXCLUDED.total_hours,
		   current_streak_days = EXCLUDED.current_streak_days,
		   longest_streak_days = EXCLUDED.longest_streak_days,
		   avg_session_minutes = EXCLUDED.avg_session_minutes,
		   completion_rate = EXCLUDED.completion_rate,
		   experience_points = EXCLUDED.experience_points,
		   level = EXCLUDED.level,
		   last_activity_at = EXCLUDED.last_activity_at,
		   computed_at = EXCLUDED.computed_at`,
		s.LearnerID,
		s.TotalHours,
		s.CurrentStreakDays,
		s.LongestStreakDays,
		s.AvgSessionMinutes,
		s.CompletionRate,
		s.ExperiencePoints,
		s.Level,
		s.LastActivityAt,
		s.ComputedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert engagement summary", err)
	}
	return nil
}

// GetEngagementSummary returns the learner's summary or a
// not_found_engagement_summary error.
func (r *EngagementRepository) GetEngagementSummary(ctx context.Context, learnerID string) (*types.EngagementSummary, error) {
	var s types.EngagementSummary
	err := r.db.QueryRow(ctx,
		`SELECT learner_id, total_hours, current_streak_days, longest_streak_days,
		        avg_session_minutes, completion_rate, experience_points, level,
		        last_activity_at, computed_at
		 FROM engagement_summaries
		 WHERE learner_id = $1`,
		learnerID,
	).Scan(
		&s.LearnerID,
		&s.TotalHours,
		&s.CurrentStreakDays,
		&s.LongestStreakDays,
		&s.AvgSessionMinutes,
		&s.CompletionRate,
		&s.ExperiencePoints,
		&s.Level,
		&s.LastActivityAt,
		&s.ComputedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSummary, "engagement summary not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get engagement summary", err)
	}
	return &s, nil
}
