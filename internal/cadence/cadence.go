// Package cadence parses the five-field cron expression an update pass is
// scheduled with and counts how often it fires. The count feeds the API quota
// estimate.
package cadence

import (
	"time"
)

// DefaultSchedule runs a pass every five minutes
const DefaultSchedule = "*/5 * * * *"

// Schedule is a parsed cron expression
type Schedule struct {
	minutes     []int // 0-59
	hours       []int // 0-23
	daysOfMonth []int // 1-31
	months      []int // 1-12
	daysOfWeek  []int // 0-6 (0=Sunday)

	expr string
}

// String returns the expression the schedule was parsed from
func (s *Schedule) String() string {
	return s.expr
}

// Next returns the next count firing times strictly after the given time
func (s *Schedule) Next(after time.Time, count int) []time.Time {
	out := make([]time.Time, 0, count)
	current := after.Truncate(time.Minute).Add(time.Minute)

	// A valid schedule fires at least once every four years
	limit := current.AddDate(5, 0, 0)
	for len(out) < count && current.Before(limit) {
		if s.matches(current) {
			out = append(out, current)
		}
		current = current.Add(time.Minute)
	}
	return out
}

// Between returns the firing times in [start, end)
func (s *Schedule) Between(start, end time.Time) []time.Time {
	var out []time.Time
	for current := start.Truncate(time.Minute); current.Before(end); current = current.Add(time.Minute) {
		if s.matches(current) {
			out = append(out, current)
		}
	}
	return out
}

// RunsPerDay counts the firings during the calendar day containing day, in
// day's location
func (s *Schedule) RunsPerDay(day time.Time) int {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return len(s.Between(start, start.AddDate(0, 0, 1)))
}

func (s *Schedule) matches(t time.Time) bool {
	return contains(s.minutes, t.Minute()) &&
		contains(s.hours, t.Hour()) &&
		contains(s.months, int(t.Month())) &&
		s.matchesDay(t)
}

// matchesDay applies the cron day rule: when both day fields are restricted,
// either may match
func (s *Schedule) matchesDay(t time.Time) bool {
	domRestricted := len(s.daysOfMonth) < 31
	dowRestricted := len(s.daysOfWeek) < 7

	dom := contains(s.daysOfMonth, t.Day())
	dow := contains(s.daysOfWeek, int(t.Weekday()))

	switch {
	case domRestricted && dowRestricted:
		return dom || dow
	case domRestricted:
		return dom
	case dowRestricted:
		return dow
	default:
		return true
	}
}

func contains(vals []int, v int) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}
