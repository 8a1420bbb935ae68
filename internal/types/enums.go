package types

// RiskLevel is the discretized dropout risk of a learner.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether l is one of the known risk levels.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// RiskSource records which path produced a snapshot's score.
type RiskSource string

const (
	RiskSourceExternal RiskSource = "external"
	RiskSourceFallback RiskSource = "fallback"
)

// EnrollmentStatus is the lifecycle state of a learner's enrollment in a course.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentAtRisk    EnrollmentStatus = "at-risk"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
)

// IsActive reports whether the enrollment still counts toward risk aggregation.
// At-risk enrollments are still in progress.
func (s EnrollmentStatus) IsActive() bool {
	return s == EnrollmentActive || s == EnrollmentAtRisk
}

// NotificationCategory groups notifications by the job that produced them.
type NotificationCategory string

const (
	CategoryRiskAlert       NotificationCategory = "risk-alert"
	CategoryRiskReminder    NotificationCategory = "risk-reminder"
	CategoryDailyMotivation NotificationCategory = "daily-motivation"
)

// NotificationPriority is forwarded unchanged to the delivery layer.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

// ChannelType identifies a delivery channel. Delivery itself happens outside
// the engine; the channel list is only carried on the notification row.
type ChannelType string

const (
	ChannelInApp ChannelType = "in_app"
	ChannelEmail ChannelType = "email"
	ChannelPush  ChannelType = "push"
)

// JobStatus values recorded in job_history.
const (
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
	JobStatusSkipped = "skipped"
)
