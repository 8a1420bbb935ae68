package db

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnpulse/internal/engagement"
)

// tableDDL returns the CREATE TABLE statement of table from the migration.
func tableDDL(t *testing.T, table string) string {
	t.Helper()
	raw, err := os.ReadFile("../../migrations/0001_init.sql")
	require.NoError(t, err)

	schema := string(raw)
	start := strings.Index(schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	require.GreaterOrEqual(t, start, 0, "table %s not found", table)
	end := strings.Index(schema[start:], ");")
	require.Greater(t, end, 0)
	return schema[start : start+end]
}

// A learner with no activity is stored as the all-zero summary, so every
// lower bound on engagement_summaries must admit it.
func TestSchema_EngagementSummaryAcceptsZeroActivity(t *testing.T) {
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	zero, err := engagement.Compute("learner-idle", nil, nil, now, time.UTC)
	require.NoError(t, err)

	values := map[string]float64{
		"total_hours":         zero.TotalHours,
		"current_streak_days": float64(zero.CurrentStreakDays),
		"longest_streak_days": float64(zero.LongestStreakDays),
		"avg_session_minutes": zero.AvgSessionMinutes,
		"completion_rate":     zero.CompletionRate,
		"experience_points":   float64(zero.ExperiencePoints),
		"level":               float64(zero.Level),
	}

	ddl := tableDDL(t, "engagement_summaries")
	bounds := regexp.MustCompile(`CHECK \((\w+) >= (\d+)\)`).FindAllStringSubmatch(ddl, -1)
	require.NotEmpty(t, bounds, "expected a lower bound on level")

	for _, b := range bounds {
		col := b[1]
		min, err := strconv.ParseFloat(b[2], 64)
		require.NoError(t, err)
		v, ok := values[col]
		require.True(t, ok, "unexpected checked column %s", col)
		assert.GreaterOrEqual(t, v, min, "zero-activity %s violates CHECK (%s >= %s)", col, col, b[2])
	}
	assert.Zero(t, zero.Level)
}
