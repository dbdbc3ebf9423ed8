package cadence

import (
	"sort"
	"strconv"
	"strings"

	"github.com/livinlefevreloca/p2g/internal/errors"
)

type fieldSpec struct {
	name     string
	min, max int
}

var fields = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// Parse parses a five-field cron expression. Fields accept *, single values,
// ranges (a-b), steps (*/n or a-b/n) and comma-separated lists of those.
// Expressions that can never fire, such as 31 2 *, are rejected.
func Parse(expr string) (*Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != len(fields) {
		return nil, errors.WithHint(
			errors.Newf("invalid schedule %q: expected 5 fields, got %d", expr, len(parts)),
			`use cron syntax, e.g. "*/5 * * * *"`)
	}

	var vals [5][]int
	for i, spec := range fields {
		v, err := parseField(parts[i], spec.min, spec.max)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s field in schedule %q", spec.name, expr)
		}
		vals[i] = v
	}

	s := &Schedule{
		minutes:     vals[0],
		hours:       vals[1],
		daysOfMonth: vals[2],
		months:      vals[3],
		daysOfWeek:  vals[4],
		expr:        expr,
	}
	if len(s.daysOfWeek) == 7 && !anyValidDate(s.daysOfMonth, s.months) {
		return nil, errors.Newf("schedule %q never fires: no month has days %v", expr, s.daysOfMonth)
	}
	return s, nil
}

func parseField(field string, min, max int) ([]int, error) {
	if field == "" {
		return nil, errors.New("empty field")
	}

	var out []int
	for _, term := range strings.Split(field, ",") {
		vals, err := parseTerm(term, min, max)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}

	sort.Ints(out)
	return dedupe(out), nil
}

// parseTerm handles one list element: *, n, a-b, */s or a-b/s
func parseTerm(term string, min, max int) ([]int, error) {
	if term == "" {
		return nil, errors.New("empty value in list")
	}

	base, stepStr, hasStep := strings.Cut(term, "/")
	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepStr)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid step %q", stepStr)
		}
		if n <= 0 {
			return nil, errors.Newf("step must be greater than 0, got %d", n)
		}
		step = n
	}

	lo, hi := min, max
	switch {
	case base == "*":
	case strings.Contains(base, "-"):
		a, b, _ := strings.Cut(base, "-")
		var err error
		if lo, err = bounded(a, min, max); err != nil {
			return nil, err
		}
		if hi, err = bounded(b, min, max); err != nil {
			return nil, err
		}
		if lo > hi {
			return nil, errors.Newf("invalid range %s: start after end", base)
		}
	default:
		if hasStep {
			return nil, errors.Newf("step needs * or a range, got %q", term)
		}
		v, err := bounded(base, min, max)
		if err != nil {
			return nil, err
		}
		return []int{v}, nil
	}

	var out []int
	for v := lo; v <= hi; v += step {
		out = append(out, v)
	}
	return out, nil
}

func bounded(s string, min, max int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid value %q", s)
	}
	if v < min || v > max {
		return 0, errors.Newf("value %d out of bounds [%d, %d]", v, min, max)
	}
	return v, nil
}

func dedupe(sorted []int) []int {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// anyValidDate reports whether some month has one of the days. February
// counts 29 days.
func anyValidDate(days, months []int) bool {
	for _, m := range months {
		limit := 31
		switch m {
		case 2:
			limit = 29
		case 4, 6, 9, 11:
			limit = 30
		}
		for _, d := range days {
			if d <= limit {
				return true
			}
		}
	}
	return false
}
