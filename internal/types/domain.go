package types

import "time"

// ActivityEvent is a single learner activity read from the append-only
// activity log. The engine never writes this table.
type ActivityEvent struct {
	ID              string    `json:"id"`
	LearnerID       string    `json:"learner_id"`
	Type            string    `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds int64     `json:"duration_seconds"`
	CourseID        string    `json:"course_id,omitempty"`
}

// Enrollment is a learner's relationship to one course. Progress and
// RiskScore are both in [0,1].
type Enrollment struct {
	ID        string           `json:"id"`
	LearnerID string           `json:"learner_id"`
	CourseID  string           `json:"course_id"`
	Status    EnrollmentStatus `json:"status"`
	Progress  float64          `json:"progress"`
	RiskScore float64          `json:"risk_score"`
}

// EngagementSummary is the denormalized per-learner engagement record. It is
// recomputed wholesale on every run and owned exclusively by the engagement
// calculator.
type EngagementSummary struct {
	LearnerID         string     `json:"learner_id"`
	TotalHours        float64    `json:"total_hours"`
	CurrentStreakDays int        `json:"current_streak_days"`
	LongestStreakDays int        `json:"longest_streak_days"`
	AvgSessionMinutes float64    `json:"avg_session_minutes"`
	CompletionRate    float64    `json:"completion_rate"`
	ExperiencePoints  int64      `json:"experience_points"`
	Level             int        `json:"level"`
	LastActivityAt    *time.Time `json:"last_activity_at,omitempty"`
	ComputedAt        time.Time  `json:"computed_at"`
}

// RiskSnapshot is the once-per-day risk state of a learner, keyed by
// (LearnerID, Day). Day is midnight of the calendar day in the engine's
// reference timezone.
type RiskSnapshot struct {
	LearnerID       string     `json:"learner_id"`
	Day             time.Time  `json:"day"`
	RiskScore       float64    `json:"risk_score"`
	RiskLevel       RiskLevel  `json:"risk_level"`
	EnrollmentCount int        `json:"enrollment_count"`
	AvgProgress     float64    `json:"avg_progress"`
	Source          RiskSource `json:"source"`
	ComputedAt      time.Time  `json:"computed_at"`
}

// RiskDistribution is the platform-wide count of snapshots per level for one day.
type RiskDistribution struct {
	Day    time.Time `json:"day"`
	High   int       `json:"high"`
	Medium int       `json:"medium"`
	Low    int       `json:"low"`
}

// Total returns the number of snapshots counted.
func (d RiskDistribution) Total() int {
	return d.High + d.Medium + d.Low
}

// Add increments the counter for level by n. Unknown levels are ignored.
func (d *RiskDistribution) Add(level RiskLevel, n int) {
	switch level {
	case RiskHigh:
		d.High += n
	case RiskMedium:
		d.Medium += n
	case RiskLow:
		d.Low += n
	}
}

// Notification is a learner-facing message. Root notifications are created by
// the alerting path; follow-up reminders point back at their root through
// OriginLinkID.
type Notification struct {
	ID           string               `json:"id"`
	LearnerID    string               `json:"learner_id"`
	RiskLevel    RiskLevel            `json:"risk_level"`
	Category     NotificationCategory `json:"category"`
	Title        string               `json:"title"`
	Message      string               `json:"message"`
	Priority     NotificationPriority `json:"priority"`
	Channels     []ChannelType        `json:"channels"`
	CreatedAt    time.Time            `json:"created_at"`
	ReadAt       *time.Time           `json:"read_at,omitempty"`
	RetryCount   int                  `json:"retry_count"`
	MaxRetries   int                  `json:"max_retries"`
	LastRetryAt  *time.Time           `json:"last_retry_at,omitempty"`
	OriginLinkID *string              `json:"origin_link_id,omitempty"`
}

// IsTerminal reports whether the notification can no longer change state
// through this engine: it was read, or its retries are exhausted.
func (n *Notification) IsTerminal() bool {
	return n.ReadAt != nil || n.RetryCount >= n.MaxRetries
}

// UnreadNotificationFilter narrows FindUnreadNotifications.
type UnreadNotificationFilter struct {
	Levels        []RiskLevel
	Category      NotificationCategory // empty matches all categories
	CreatedUntil  time.Time            // inclusive upper bound on created_at
	RootsOnly     bool
	AfterID       string // keyset cursor
	Limit         int
}

// JobRun is one row of job_history.
type JobRun struct {
	ID         int64      `json:"id"`
	Task       string     `json:"task"`
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Processed  int        `json:"processed"`
	Errors     int        `json:"errors"`
	Error      *string    `json:"error,omitempty"`
}
