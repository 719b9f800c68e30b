// Package clocktime holds the wall-clock arithmetic used by the punch clock and
// payroll engines. Every value is an integer number of minutes; text conversion
// happens only at the edges.
package clocktime

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/carelog/carelog-backend/pkg/errors"
)

// MinutesPerDay is the length of a civil day in wall-clock minutes.
const MinutesPerDay = 1440

// Clock is a wall-clock value expressed as minutes since midnight (0..1439).
type Clock int

// String renders the clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Hour returns the hour component.
func (c Clock) Hour() int { return int(c) / 60 }

// Minute returns the minute component.
func (c Clock) Minute() int { return int(c) % 60 }

// New builds a Clock from hour and minute, normalizing into a single day.
func New(hour, minute int) Clock {
	return normalize(hour*60 + minute)
}

// ClockOf returns the minute of day of t in t's own location. Callers convert
// to the facility zone before calling.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// ParseClock parses "HH:MM" or "HH:MM:SS" (24-hour). Seconds are validated and
// then truncated.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", errors.ErrInvalidTimeFormat, s)
	}

	limits := []int{23, 59, 59}
	values := make([]int, len(parts))
	for i, p := range parts {
		if len(p) != 2 || p[0] < '0' || p[0] > '9' || p[1] < '0' || p[1] > '9' {
			return 0, fmt.Errorf("%w: %q", errors.ErrInvalidTimeFormat, s)
		}
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > limits[i] {
			return 0, fmt.Errorf("%w: %q", errors.ErrInvalidTimeFormat, s)
		}
		values[i] = v
	}

	return Clock(values[0]*60 + values[1]), nil
}

// MustParse is ParseClock for constants and tests.
func MustParse(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// DurationMinutes returns end-start in minutes. An end before start means the
// interval crosses midnight and 1440 is added.
func DurationMinutes(start, end Clock) int {
	d := int(end) - int(start)
	if d < 0 {
		d += MinutesPerDay
	}
	return d
}

// Window is a half-open [Start, End) range of the day. Start > End wraps
// around midnight; Start == End is empty.
type Window struct {
	Start Clock
	End   Clock
}

// IsNightMinute reports whether minuteOfDay falls inside the window.
func IsNightMinute(minuteOfDay Clock, w Window) bool {
	m := normalize(int(minuteOfDay))
	switch {
	case w.Start > w.End:
		return m >= w.Start || m < w.End
	case w.Start < w.End:
		return m >= w.Start && m < w.End
	default:
		return false
	}
}

// MinutesInNightWindow counts the minutes of [start, end) that fall inside the
// window, with end wrapping per DurationMinutes.
func MinutesInNightWindow(start, end Clock, w Window) int {
	return NightMinutesFrom(start, DurationMinutes(start, end), w)
}

// NightMinutesFrom counts night minutes in an interval given by its start and
// length. Lengths of a full day or more are supported.
func NightMinutesFrom(start Clock, length int, w Window) int {
	n := 0
	for i := 0; i < length; i++ {
		if IsNightMinute(Clock((int(start)+i)%MinutesPerDay), w) {
			n++
		}
	}
	return n
}

// NightMinutesExcluding counts night minutes of an interval of the given length
// starting at start, skipping the sub-interval [skipOffset, skipOffset+skipLength)
// measured in minutes from start.
func NightMinutesExcluding(start Clock, length, skipOffset, skipLength int, w Window) int {
	n := 0
	for i := 0; i < length; i++ {
		if i >= skipOffset && i < skipOffset+skipLength {
			continue
		}
		if IsNightMinute(Clock((int(start)+i)%MinutesPerDay), w) {
			n++
		}
	}
	return n
}

// FormatHHMMSS renders a minute count as HH:MM:SS. Hours are not capped at 24
// so monthly totals render as-is.
func FormatHHMMSS(minutes int) string {
	sign := ""
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	return fmt.Sprintf("%s%02d:%02d:00", sign, minutes/60, minutes%60)
}

func normalize(m int) Clock {
	m %= MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	return Clock(m)
}
