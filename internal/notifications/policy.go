// Package notifications holds the retry policy for unacknowledged risk
// notifications, the builders for every notification the engine creates, and
// the publisher that hands created notifications to the delivery queue.
package notifications

import (
	"time"

	"learnpulse/internal/types"
)

// Rule is the retry behaviour for one risk level. A zero MaxRetries means the
// level is never retried.
type Rule struct {
	Interval   time.Duration
	MaxRetries int
}

// Policy maps risk levels to retry rules. Levels absent from the map are
// never retried.
type Policy map[types.RiskLevel]Rule

// DefaultPolicy is the production retry table.
var DefaultPolicy = Policy{
	types.RiskHigh:   {Interval: 24 * time.Hour, MaxRetries: 3},
	types.RiskMedium: {Interval: 48 * time.Hour, MaxRetries: 2},
	types.RiskLow:    {},
}

// Limit returns the retry cap for level.
func (p Policy) Limit(level types.RiskLevel) int {
	return p[level].MaxRetries
}

// Anchor is the instant the retry interval is measured from: the last retry
// if there was one, otherwise creation.
func Anchor(n *types.Notification) time.Time {
	if n.LastRetryAt != nil {
		return *n.LastRetryAt
	}
	return n.CreatedAt
}

// Eligible reports whether n should get a follow-up reminder at now, given
// the learner's current risk level.
func Eligible(n *types.Notification, level types.RiskLevel, now time.Time, policy Policy) bool {
	if n == nil || n.IsTerminal() {
		return false
	}
	if level != types.RiskHigh && level != types.RiskMedium {
		return false
	}
	rule, ok := policy[level]
	if !ok || rule.MaxRetries <= 0 {
		return false
	}
	if n.RetryCount >= min(n.MaxRetries, rule.MaxRetries) {
		return false
	}
	return now.Sub(Anchor(n)) >= rule.Interval
}

// NextEligibleAt returns when n becomes eligible under level, or false if it
// never will without a state change.
func NextEligibleAt(n *types.Notification, level types.RiskLevel, policy Policy) (time.Time, bool) {
	rule, ok := policy[level]
	if !ok || n.ReadAt != nil || rule.MaxRetries <= 0 || n.MaxRetries <= 0 {
		return time.Time{}, false
	}
	if level != types.RiskHigh && level != types.RiskMedium {
		return time.Time{}, false
	}
	if n.RetryCount >= min(n.MaxRetries, rule.MaxRetries) {
		return time.Time{}, false
	}
	return Anchor(n).Add(rule.Interval), true
}
