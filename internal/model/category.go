package model

import "time"

// Category is one data dimension fetched for an entity. Each category has its own
// checkpoint axis.
type Category int

const (
	CategoryResults Category = iota
	CategoryOutage
	CategoryPerformance
)

// String returns a human-readable representation of the category
func (c Category) String() string {
	switch c {
	case CategoryResults:
		return "results"
	case CategoryOutage:
		return "outage"
	case CategoryPerformance:
		return "performance"
	default:
		return "unknown"
	}
}

// ParseCategory is the inverse of String
func ParseCategory(s string) (Category, bool) {
	for _, c := range []Category{CategoryResults, CategoryOutage, CategoryPerformance} {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// CategorySpec holds the static per-category policy
type CategorySpec struct {
	// Lookback used when the category has never been fetched
	Lookback time.Duration

	// Provider field promoted to _time
	TimeField string

	// Optional field marking the end of an interval record. When set, the
	// checkpoint's latest bound extends to the furthest interval end.
	EndField string

	// Skip the fetch when the window starts within the last hour; the provider
	// aggregates this category hourly
	SkipRecent bool

	// Path segment following the kind prefix
	PathSegment string
}

var categorySpecs = map[Category]CategorySpec{
	CategoryResults: {
		Lookback:    time.Hour,
		TimeField:   "time",
		PathSegment: "results",
	},
	CategoryOutage: {
		Lookback:    time.Hour,
		TimeField:   "timefrom",
		EndField:    "timeto",
		PathSegment: "summary.outage",
	},
	CategoryPerformance: {
		Lookback:    time.Hour,
		TimeField:   "starttime",
		SkipRecent:  true,
		PathSegment: "summary.performance",
	},
}

// Spec returns the static policy for the category
func (c Category) Spec() CategorySpec {
	return categorySpecs[c]
}

// WithLookback returns a copy of the spec with a different bootstrap lookback
func (s CategorySpec) WithLookback(d time.Duration) CategorySpec {
	if d > 0 {
		s.Lookback = d
	}
	return s
}
