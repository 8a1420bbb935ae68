package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"learnpulse/internal/types"
)

// LearnerRepository reads the learner, activity and enrollment tables. The
// engine never writes them.
type LearnerRepository struct {
	db DBTX
}

// NewLearnerRepository creates a new LearnerRepository.
func NewLearnerRepository(db DBTX) *LearnerRepository {
	return &LearnerRepository{db: db}
}

// ListLearnerIDs returns up to limit learner IDs greater than afterID in
// ascending order. Pass "" to start from the beginning.
func (r *LearnerRepository) ListLearnerIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM learners
		 WHERE id > $1
		 ORDER BY id
		 LIMIT $2`,
		afterID,
		pageSize(limit),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list learners", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan learner id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating learners", err)
	}
	return ids, nil
}

// Exists reports whether the learner exists.
func (r *LearnerRepository) Exists(ctx context.Context, learnerID string) (bool, error) {
	var one int
	err := r.db.QueryRow(ctx, `SELECT 1 FROM learners WHERE id = $1`, learnerID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to look up learner", err)
	}
	return true, nil
}

// FindActivitiesByLearner returns the learner's activity events ordered by
// timestamp. Same-second events are distinct rows and are all returned.
func (r *LearnerRepository) FindActivitiesByLearner(ctx context.Context, learnerID string) ([]types.ActivityEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, learner_id, activity_type, occurred_at, duration_seconds, course_id
		 FROM activities
		 WHERE learner_id = $1
		 ORDER BY occurred_at, id`,
		learnerID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query activities", err)
	}
	defer rows.Close()

	var events []types.ActivityEvent
	for rows.Next() {
		var (
			e        types.ActivityEvent
			courseID *string
		)
		if err := rows.Scan(&e.ID, &e.LearnerID, &e.Type, &e.Timestamp, &e.DurationSeconds, &courseID); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan activity", err)
		}
		if courseID != nil {
			e.CourseID = *courseID
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating activities", err)
	}
	return events, nil
}

// ListEnrollmentsByLearner returns all of the learner's enrollments in any
// status.
func (r *LearnerRepository) ListEnrollmentsByLearner(ctx context.Context, learnerID string) ([]types.Enrollment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, learner_id, course_id, status, progress, risk_score
		 FROM enrollments
		 WHERE learner_id = $1
		 ORDER BY id`,
		learnerID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query enrollments", err)
	}
	defer rows.Close()

	var enrollments []types.Enrollment
	for rows.Next() {
		var (
			e      types.Enrollment
			status string
		)
		if err := rows.Scan(&e.ID, &e.LearnerID, &e.CourseID, &status, &e.Progress, &e.RiskScore); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan enrollment", err)
		}
		e.Status = types.EnrollmentStatus(status)
		enrollments = append(enrollments, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating enrollments", err)
	}
	return enrollments, nil
}
