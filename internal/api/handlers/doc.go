// Package handlers contains the HTTP handlers of the engine API: read access
// to engagement summaries and risk snapshots, and admin endpoints that
// trigger jobs on demand. Handlers depend on small interfaces declared here,
// so each can be tested against in-memory fakes.
package handlers

import (
	"time"

	"learnpulse/internal/types"
)

// dayLayout is the format of the day query parameter.
const dayLayout = "2006-01-02"

// parseDay parses a YYYY-MM-DD query value as midnight in loc.
func parseDay(raw string, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(dayLayout, raw, loc)
	if err != nil {
		return time.Time{}, types.NewAppError(types.ErrCodeValidationInvalidDay,
			"day must be formatted as YYYY-MM-DD", err).
			WithDetails(map[string]any{"day": raw})
	}
	return day, nil
}
