// Package risk turns a learner's enrollments and an optional external
// prediction into a daily risk assessment.
package risk

import (
	"math"

	"learnpulse/internal/types"
)

// Classification thresholds.
const (
	HighThreshold   = 0.7
	MediumThreshold = 0.4
)

// Classify maps a score in [0,1] to a risk level.
func Classify(score float64) types.RiskLevel {
	switch {
	case score >= HighThreshold:
		return types.RiskHigh
	case score >= MediumThreshold:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

// ActiveEnrollments filters enrollments down to those still in progress.
func ActiveEnrollments(enrollments []types.Enrollment) []types.Enrollment {
	active := make([]types.Enrollment, 0, len(enrollments))
	for _, e := range enrollments {
		if e.Status.IsActive() {
			active = append(active, e)
		}
	}
	return active
}

// Fallback is the mean stored risk score of the active enrollments, clamped
// to [0,1]. It returns 0 when there are none.
func Fallback(enrollments []types.Enrollment) float64 {
	active := ActiveEnrollments(enrollments)
	if len(active) == 0 {
		return 0
	}
	var sum float64
	for _, e := range active {
		sum += e.RiskScore
	}
	return clamp01(sum / float64(len(active)))
}

func validScore(s float64) bool {
	return !math.IsNaN(s) && s >= 0 && s <= 1
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
