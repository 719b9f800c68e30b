// Package shiftpattern decides whether a calendar date is a scheduled work day
// or a rest day for an employee's shift pattern.
package shiftpattern

import (
	"errors"
	"fmt"
	"time"

	apperrors "github.com/carelog/carelog-backend/pkg/errors"
)

// ErrUnknownPattern is returned when a pattern code is outside the closed set
// and the resolver is configured to fail closed.
var ErrUnknownPattern = errors.New("unknown shift pattern")

// Pattern is a jornada_trabalho code.
type Pattern string

const (
	Pattern12x36        Pattern = "12x36"
	Pattern24x48        Pattern = "24x48"
	Pattern6x1          Pattern = "6x1"
	Pattern5x2          Pattern = "5x2"
	Pattern40hMonFri    Pattern = "40h_8h_segsex"
	Pattern44hMonFriSat Pattern = "44h_8h_segsex_4h_sab"
	Pattern36hMonSat    Pattern = "36h_6h_seg_sab"
	PatternIntermittent Pattern = "intermittent"
)

const daysPerWeek = 7

// restRule reports whether the date is a rest day given the whole days elapsed
// since the contract start.
type restRule func(daysSince int, date time.Time) bool

var rules = map[Pattern]restRule{
	Pattern12x36:        func(d int, _ time.Time) bool { return d%2 == 1 },
	Pattern24x48:        func(d int, _ time.Time) bool { return d%3 != 0 },
	Pattern6x1:          func(d int, _ time.Time) bool { return d%daysPerWeek == 6 },
	Pattern5x2:          weekend,
	Pattern40hMonFri:    weekend,
	Pattern44hMonFriSat: sunday,
	Pattern36hMonSat:    sunday,
	// intermittent contracts have no schedule; every day is unscheduled
	PatternIntermittent: func(int, time.Time) bool { return true },
}

func weekend(_ int, date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func sunday(_ int, date time.Time) bool {
	return date.Weekday() == time.Sunday
}

// Parse maps a stored code onto the closed enumeration.
func Parse(code string) (Pattern, error) {
	p := Pattern(code)
	if _, ok := rules[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPattern, code)
	}
	return p, nil
}

// All returns every known pattern.
func All() []Pattern {
	return []Pattern{
		Pattern12x36, Pattern24x48, Pattern6x1, Pattern5x2,
		Pattern40hMonFri, Pattern44hMonFriSat, Pattern36hMonSat, PatternIntermittent,
	}
}

// IsScheduled reports whether the pattern ever produces work days. Intermittent
// contracts never do, so they never produce a falta.
func (p Pattern) IsScheduled() bool {
	return p != PatternIntermittent
}

// UnknownPatternPolicy selects what happens to a code outside the closed set.
type UnknownPatternPolicy string

const (
	// FailOpen treats an unknown pattern as never resting, so absences are
	// never excused silently.
	FailOpen UnknownPatternPolicy = "fail_open"
	// FailClosed rejects the computation with ErrUnknownPattern.
	FailClosed UnknownPatternPolicy = "fail_closed"
)

// Valid reports whether the policy is one of the named values.
func (p UnknownPatternPolicy) Valid() bool {
	return p == FailOpen || p == FailClosed
}

// Resolver applies the rest-day rules plus the unknown pattern policy.
type Resolver struct {
	policy UnknownPatternPolicy
}

// NewResolver creates a resolver; an empty policy means FailOpen.
func NewResolver(policy UnknownPatternPolicy) *Resolver {
	if policy == "" {
		policy = FailOpen
	}
	return &Resolver{policy: policy}
}

// Policy returns the unknown pattern policy in effect.
func (r *Resolver) Policy() UnknownPatternPolicy {
	return r.policy
}

// IsRestDay decides whether date is a rest day under a known pattern.
func (r *Resolver) IsRestDay(p Pattern, contractStart, date time.Time) (bool, error) {
	days, err := DaysSince(contractStart, date)
	if err != nil {
		return false, err
	}

	rule, ok := rules[p]
	if !ok {
		return r.unknown(string(p))
	}
	return rule(days, civil(date)), nil
}

// ResolveCode is IsRestDay over a raw stored code. Unknown codes go through
// the configured policy.
func (r *Resolver) ResolveCode(code string, contractStart, date time.Time) (bool, error) {
	p, err := Parse(code)
	if err != nil {
		if _, rangeErr := DaysSince(contractStart, date); rangeErr != nil {
			return false, rangeErr
		}
		return r.unknown(code)
	}
	return r.IsRestDay(p, contractStart, date)
}

func (r *Resolver) unknown(code string) (bool, error) {
	if r.policy == FailClosed {
		return false, fmt.Errorf("%w: %q", ErrUnknownPattern, code)
	}
	return false, nil
}

// ScheduledDays lists the work days of a pattern in [from, to], inclusive,
// skipping dates before the contract start.
func (r *Resolver) ScheduledDays(code string, contractStart, from, to time.Time) ([]time.Time, error) {
	var days []time.Time
	start := civil(from)
	if cs := civil(contractStart); start.Before(cs) {
		start = cs
	}

	for d := start; !d.After(civil(to)); d = d.AddDate(0, 0, 1) {
		rest, err := r.ResolveCode(code, contractStart, d)
		if err != nil {
			return nil, err
		}
		if !rest {
			days = append(days, d)
		}
	}
	return days, nil
}

// DaysSince returns the whole calendar days from contractStart to date. Both
// are reduced to their civil date first, so a DST change never shifts the
// count. A date before the contract start is an invalid range.
func DaysSince(contractStart, date time.Time) (int, error) {
	from := civil(contractStart)
	to := civil(date)
	if to.Before(from) {
		return 0, fmt.Errorf("%w: %s is before contract start %s",
			apperrors.ErrInvalidDateRange, to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	return int(to.Sub(from).Hours()) / 24, nil
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
