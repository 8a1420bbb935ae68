package notifications

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"learnpulse/internal/types"
)

// ReminderTitlePrefix marks follow-up notifications.
const ReminderTitlePrefix = "Reminder: "

// MotivationalMessages is the pool the daily motivation job draws from.
var MotivationalMessages = []string{
	"Great job staying on track! Keep up the momentum.",
	"Every lesson counts. You are making real progress.",
	"Consistency beats intensity. See you in class today!",
	"You are doing great. Take a few minutes to learn something new today.",
	"Small steps every day add up to big results.",
	"Your dedication is paying off. Keep going!",
}

// NewID returns a new notification identifier.
func NewID() string {
	return uuid.NewString()
}

// Reminder builds the follow-up for original. The follow-up keeps the
// original's channels, priority and risk level, links back to it and is never
// retried itself.
func Reminder(original *types.Notification, now time.Time) *types.Notification {
	origin := original.ID
	channels := make([]types.ChannelType, len(original.Channels))
	copy(channels, original.Channels)

	return &types.Notification{
		ID:           NewID(),
		LearnerID:    original.LearnerID,
		RiskLevel:    original.RiskLevel,
		Category:     types.CategoryRiskReminder,
		Title:        ReminderTitlePrefix + original.Title,
		Message:      original.Message,
		Priority:     original.Priority,
		Channels:     channels,
		CreatedAt:    now,
		MaxRetries:   0,
		OriginLinkID: &origin,
	}
}

// RiskAlert builds the root notification for a learner at level. Its retry
// budget comes from policy.
func RiskAlert(learnerID string, level types.RiskLevel, score float64, now time.Time, policy Policy) *types.Notification {
	n := &types.Notification{
		ID:         NewID(),
		LearnerID:  learnerID,
		RiskLevel:  level,
		Category:   types.CategoryRiskAlert,
		CreatedAt:  now,
		MaxRetries: policy.Limit(level),
	}

	switch level {
	case types.RiskHigh:
		n.Title = "Your courses need attention"
		n.Message = fmt.Sprintf("Your risk of falling behind is high (%.0f%%). A short study session today can get you back on track.", score*100)
		n.Priority = types.PriorityHigh
		n.Channels = []types.ChannelType{types.ChannelInApp, types.ChannelEmail, types.ChannelPush}
	default:
		n.Title = "Stay on track with your courses"
		n.Message = fmt.Sprintf("Your recent activity has dropped (risk %.0f%%). Plan your next session to keep your progress going.", score*100)
		n.Priority = types.PriorityNormal
		n.Channels = []types.ChannelType{types.ChannelInApp, types.ChannelEmail}
	}
	return n
}

// Motivation builds a daily motivation notification with a message drawn from
// MotivationalMessages by pick. A nil pick uses math/rand.
func Motivation(learnerID string, now time.Time, pick func(n int) int) *types.Notification {
	if pick == nil {
		pick = rand.IntN
	}
	return &types.Notification{
		ID:         NewID(),
		LearnerID:  learnerID,
		RiskLevel:  types.RiskLow,
		Category:   types.CategoryDailyMotivation,
		Title:      "Keep up the great work!",
		Message:    MotivationalMessages[pick(len(MotivationalMessages))],
		Priority:   types.PriorityLow,
		Channels:   []types.ChannelType{types.ChannelInApp},
		CreatedAt:  now,
		MaxRetries: 0,
	}
}
