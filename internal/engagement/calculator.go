// Package engagement derives per-learner engagement metrics from raw activity
// events. Everything here is pure: the same events, enrollments and reference
// time always produce the same summary.
package engagement

import (
	"fmt"
	"math"
	"time"

	"learnpulse/internal/types"
)

const (
	// XPPerLevel is the experience needed to advance one level.
	XPPerLevel = 300

	xpPerEvent = 10
	xpPerHour  = 50
)

// Compute builds the EngagementSummary for one learner. Calendar days are
// evaluated in loc; now is the job execution time. A learner with no events
// yields the all-zero summary. Malformed input returns a
// validation_malformed_activity error and no summary.
func Compute(learnerID string, events []types.ActivityEvent, enrollments []types.Enrollment, now time.Time, loc *time.Location) (types.EngagementSummary, error) {
	if loc == nil {
		loc = time.UTC
	}
	summary := types.EngagementSummary{
		LearnerID:  learnerID,
		ComputedAt: now.UTC(),
	}

	if err := validate(learnerID, events, enrollments); err != nil {
		return types.EngagementSummary{}, err
	}
	if len(events) == 0 {
		return summary, nil
	}

	var totalSeconds, positiveSeconds int64
	var positiveCount int
	var last time.Time
	for _, e := range events {
		totalSeconds += e.DurationSeconds
		if e.DurationSeconds > 0 {
			positiveSeconds += e.DurationSeconds
			positiveCount++
		}
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}

	summary.TotalHours = round2(float64(totalSeconds) / 3600)
	if positiveCount > 0 {
		summary.AvgSessionMinutes = round2(float64(positiveSeconds) / float64(positiveCount) / 60)
	}
	summary.CompletionRate = completionRate(enrollments)

	days := ActiveDays(events, loc)
	summary.LongestStreakDays = LongestStreak(days)
	summary.CurrentStreakDays = CurrentStreak(days, now, loc)

	summary.ExperiencePoints = int64(len(events))*xpPerEvent + int64(math.Floor(summary.TotalHours*xpPerHour))
	summary.Level = LevelFor(summary.ExperiencePoints)

	lastUTC := last.UTC()
	summary.LastActivityAt = &lastUTC

	return summary, nil
}

// LevelFor maps experience points to a level. Level 1 starts at zero XP.
func LevelFor(xp int64) int {
	if xp < 0 {
		xp = 0
	}
	return int(xp/XPPerLevel) + 1
}

func completionRate(enrollments []types.Enrollment) float64 {
	if len(enrollments) == 0 {
		return 0
	}
	var sum float64
	for _, e := range enrollments {
		sum += e.Progress
	}
	return sum / float64(len(enrollments))
}

func validate(learnerID string, events []types.ActivityEvent, enrollments []types.Enrollment) error {
	for _, e := range events {
		switch {
		case e.DurationSeconds < 0:
			return malformed(learnerID, e.ID, fmt.Sprintf("negative duration %d", e.DurationSeconds))
		case e.Timestamp.IsZero():
			return malformed(learnerID, e.ID, "missing timestamp")
		}
	}
	for _, en := range enrollments {
		if math.IsNaN(en.Progress) || en.Progress < 0 || en.Progress > 1 {
			return malformed(learnerID, en.ID, fmt.Sprintf("progress %v outside [0,1]", en.Progress))
		}
	}
	return nil
}

func malformed(learnerID, recordID, reason string) error {
	return types.NewAppError(
		types.ErrCodeValidationMalformedActivity,
		fmt.Sprintf("malformed record %s for learner %s: %s", recordID, learnerID, reason),
		nil,
	).WithDetails(map[string]any{"learner_id": learnerID, "record_id": recordID})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
