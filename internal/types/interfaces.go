package types

import (
	"context"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Used by manual backfills that
// pin the reference time.
type FixedClock time.Time

// Now returns the pinned instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }

// Predictor is the external risk prediction capability. Implementations
// should honor ctx cancellation; callers stop waiting once ctx is done.
type Predictor interface {
	Predict(ctx context.Context, learnerID string) (float64, error)
}
