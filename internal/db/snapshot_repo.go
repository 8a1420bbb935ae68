package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"learnpulse/internal/types"
)

// SnapshotRepository owns the risk_snapshots table, keyed by
// (learner_id, snapshot_day). Rows are written only by the risk snapshot job.
type SnapshotRepository struct {
	db DBTX
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const snapshotColumns = `learner_id, snapshot_day, risk_score, risk_level,
	enrollment_count, avg_progress, source, computed_at`

// UpsertRiskSnapshot writes the learner's snapshot for s.Day. A second write
// for the same day overwrites the first.
func (r *SnapshotRepository) UpsertRiskSnapshot(ctx context.Context, s *types.RiskSnapshot) error {
	if !s.RiskLevel.Valid() {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("refusing to store snapshot with risk level %q", s.RiskLevel), nil).
			WithDetails(map[string]any{"learner_id": s.LearnerID})
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO risk_snapshots (`+snapshotColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (learner_id, snapshot_day) DO UPDATE SET
		   risk_score = EXCLUDED.risk_score,
		   risk_level = EXCLUDED.risk_level,
		   enrollment_count = EXCLUDED.enrollment_count,
		   avg_progress = EXCLUDED.avg_progress,
		   source = EXCLUDED.source,
		   computed_at = EXCLUDED.computed_at`,
		s.LearnerID,
		calendarDate(s.Day),
		s.RiskScore,
		string(s.RiskLevel),
		s.EnrollmentCount,
		s.AvgProgress,
		string(s.Source),
		s.ComputedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert risk snapshot", err)
	}
	return nil
}

// GetSnapshot returns the learner's snapshot for day.
func (r *SnapshotRepository) GetSnapshot(ctx context.Context, learnerID string, day time.Time) (*types.RiskSnapshot, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+snapshotColumns+`
		 FROM risk_snapshots
		 WHERE learner_id = $1 AND snapshot_day = $2`,
		learnerID,
		calendarDate(day),
	)
	return scanSnapshotRow(row)
}

// GetLatestSnapshot returns the learner's most recent snapshot, whatever its
// day.
func (r *SnapshotRepository) GetLatestSnapshot(ctx context.Context, learnerID string) (*types.RiskSnapshot, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+snapshotColumns+`
		 FROM risk_snapshots
		 WHERE learner_id = $1
		 ORDER BY snapshot_day DESC
		 LIMIT 1`,
		learnerID,
	)
	return scanSnapshotRow(row)
}

// ListSnapshotsForDay pages through day's snapshots ordered by learner ID.
// An empty levels slice matches every level.
func (r *SnapshotRepository) ListSnapshotsForDay(ctx context.Context, day time.Time, levels []types.RiskLevel, afterLearnerID string, limit int) ([]types.RiskSnapshot, error) {
	var levelFilter []string
	for _, l := range levels {
		levelFilter = append(levelFilter, string(l))
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+snapshotColumns+`
		 FROM risk_snapshots
		 WHERE snapshot_day = $1
		   AND ($2::text[] IS NULL OR risk_level = ANY($2))
		   AND learner_id > $3
		 ORDER BY learner_id
		 LIMIT $4`,
		calendarDate(day),
		levelFilter,
		afterLearnerID,
		pageSize(limit),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list risk snapshots", err)
	}
	defer rows.Close()

	var out []types.RiskSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan risk snapshot", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating risk snapshots", err)
	}
	return out, nil
}

// GetDistribution counts day's snapshots per risk level.
func (r *SnapshotRepository) GetDistribution(ctx context.Context, day time.Time) (types.RiskDistribution, error) {
	dist := types.RiskDistribution{Day: calendarDate(day)}

	rows, err := r.db.Query(ctx,
		`SELECT risk_level, COUNT(*)
		 FROM risk_snapshots
		 WHERE snapshot_day = $1
		 GROUP BY risk_level`,
		calendarDate(day),
	)
	if err != nil {
		return dist, types.NewAppError(types.ErrCodeInternalDB, "failed to query risk distribution", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			level string
			count int
		)
		if err := rows.Scan(&level, &count); err != nil {
			return dist, types.NewAppError(types.ErrCodeInternalDB, "failed to scan risk distribution", err)
		}
		dist.Add(types.RiskLevel(level), count)
	}
	if err := rows.Err(); err != nil {
		return dist, types.NewAppError(types.ErrCodeInternalDB, "error iterating risk distribution", err)
	}
	return dist, nil
}

func scanSnapshotRow(row pgx.Row) (*types.RiskSnapshot, error) {
	s, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSnapshot, "risk snapshot not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get risk snapshot", err)
	}
	return s, nil
}

func scanSnapshot(row pgx.Row) (*types.RiskSnapshot, error) {
	var (
		s      types.RiskSnapshot
		level  string
		source string
	)
	if err := row.Scan(
		&s.LearnerID,
		&s.Day,
		&s.RiskScore,
		&level,
		&s.EnrollmentCount,
		&s.AvgProgress,
		&source,
		&s.ComputedAt,
	); err != nil {
		return nil, err
	}
	s.RiskLevel = types.RiskLevel(level)
	s.Source = types.RiskSource(source)
	return &s, nil
}
