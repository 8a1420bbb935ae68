package engagement

import (
	"sort"
	"time"

	"learnpulse/internal/types"
)

// ActiveDays collapses events to the sorted set of distinct calendar days
// (midnight in loc) on which at least one event occurred.
func ActiveDays(events []types.ActivityEvent, loc *time.Location) []time.Time {
	seen := make(map[time.Time]struct{}, len(events))
	days := make([]time.Time, 0, len(events))
	for _, e := range events {
		d := DayOf(e.Timestamp, loc)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// DayOf returns midnight of t's calendar day in loc.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// consecutive reports whether b is the calendar day after a. Dates are
// compared rather than durations so DST transitions do not break runs.
func consecutive(a, b time.Time) bool {
	y, m, d := a.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, a.Location()).Equal(b)
}

// LongestStreak returns the longest run of consecutive days in a sorted,
// de-duplicated day list.
func LongestStreak(days []time.Time) int {
	if len(days) == 0 {
		return 0
	}
	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if consecutive(days[i-1], days[i]) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

// CurrentStreak is zero unless the most recent active day is today or
// yesterday relative to now; otherwise it counts consecutive days backward
// from the most recent one.
func CurrentStreak(days []time.Time, now time.Time, loc *time.Location) int {
	if len(days) == 0 {
		return 0
	}
	today := DayOf(now, loc)
	lastDay := days[len(days)-1]
	if !lastDay.Equal(today) && !consecutive(lastDay, today) {
		return 0
	}

	streak := 1
	for i := len(days) - 1; i > 0; i-- {
		if !consecutive(days[i-1], days[i]) {
			break
		}
		streak++
	}
	return streak
}
