package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"learnpulse/internal/types"
)

func TestEngagementRepository_Upsert(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEngagementRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC)
	summary := &types.EngagementSummary{
		LearnerID:         "l-1",
		TotalHours:        1.5,
		CurrentStreakDays: 2,
		LongestStreakDays: 4,
		AvgSessionMinutes: 45,
		CompletionRate:    0.5,
		ExperiencePoints:  95,
		Level:             1,
		ComputedAt:        now,
	}

	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "ON CONFLICT (learner_id) DO UPDATE")
	}), mock.MatchedBy(func(args []any) bool {
		return len(args) == 10 && args[0] == "l-1" && args[6] == int64(95) && args[9] == now
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.UpsertEngagementSummary(ctx, summary))
	db.AssertExpectations(t)
}

func TestEngagementRepository_Upsert_Repeated(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEngagementRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Twice()

	summary := &types.EngagementSummary{LearnerID: "l-1", ComputedAt: time.Now()}
	require.NoError(t, repo.UpsertEngagementSummary(ctx, summary))
	require.NoError(t, repo.UpsertEngagementSummary(ctx, summary))
	db.AssertNumberOfCalls(t, "Exec", 2)
}

func TestEngagementRepository_Upsert_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEngagementRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("deadlock detected"))

	err := repo.UpsertEngagementSummary(context.Background(), &types.EngagementSummary{LearnerID: "l-1"})
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
}

func TestEngagementRepository_Get(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEngagementRepository(db)
	ctx := context.Background()

	last := time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC)
	computed := time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"l-1"}).
		Return(rowOf("l-1", 3.25, 2, 5, 32.5, 0.5, int64(212), 1, last, computed))

	s, err := repo.GetEngagementSummary(ctx, "l-1")
	require.NoError(t, err)
	assert.Equal(t, 3.25, s.TotalHours)
	assert.Equal(t, int64(212), s.ExperiencePoints)
	require.NotNil(t, s.LastActivityAt)
	assert.Equal(t, last, *s.LastActivityAt)
	assert.Equal(t, computed, s.ComputedAt)
}

func TestEngagementRepository_Get_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEngagementRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetEngagementSummary(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundSummary))
}
