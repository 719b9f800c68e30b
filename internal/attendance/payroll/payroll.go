// Package payroll turns a month of punch records and absences into per-day
// minute buckets and month totals. All duration math is in whole minutes.
package payroll

import (
	"errors"
	"fmt"
	"time"

	"github.com/carelog/carelog-backend/internal/attendance/clocktime"
	"github.com/carelog/carelog-backend/internal/attendance/compliance"
	"github.com/carelog/carelog-backend/internal/attendance/punch"
	"github.com/carelog/carelog-backend/internal/attendance/shiftpattern"
	apperrors "github.com/carelog/carelog-backend/pkg/errors"
)

// ErrInconsistentData aborts a month whose stored data contradicts itself.
var ErrInconsistentData = errors.New("inconsistent attendance data")

// Status classifies one calendar day.
type Status string

const (
	StatusComplete      Status = "complete"
	StatusInProgress    Status = "in_progress"
	StatusAbsent        Status = "absent"
	StatusDayOff        Status = "day_off"
	StatusFalta         Status = "falta"
	StatusNotContracted Status = "not_contracted"
)

// Schedule is the wall-clock shape of a shift pattern. End before Start is an
// overnight shift; End equal to Start is a 24 hour shift.
type Schedule struct {
	Start      clocktime.Clock
	End        clocktime.Clock
	BreakStart *clocktime.Clock
	BreakEnd   *clocktime.Clock
}

// SpanMinutes is the length of the shift window including any break.
func (s Schedule) SpanMinutes() int {
	if s.Start == s.End {
		return clocktime.MinutesPerDay
	}
	return clocktime.DurationMinutes(s.Start, s.End)
}

// BreakMinutes is the length of the scheduled break, zero when unset.
func (s Schedule) BreakMinutes() int {
	if s.BreakStart == nil || s.BreakEnd == nil {
		return 0
	}
	return clocktime.DurationMinutes(*s.BreakStart, *s.BreakEnd)
}

// Minutes is the scheduled work time of one shift.
func (s Schedule) Minutes() int {
	m := s.SpanMinutes() - s.BreakMinutes()
	if m < 0 {
		return 0
	}
	return m
}

// Employee is the subset of employee data aggregation needs.
type Employee struct {
	ID            string
	ContractStart time.Time
	DeactivatedAt *time.Time
	PatternCode   string
	Schedule      Schedule
}

// Absence is an approved leave. Its end is derived from Days when set,
// otherwise from Hours.
type Absence struct {
	ID     string
	Reason string
	Paid   bool
	Start  time.Time
	Days   int
	Hours  int
}

// End returns the exclusive end instant of the absence.
func (a Absence) End() time.Time {
	if a.Days > 0 {
		return a.Start.AddDate(0, 0, a.Days)
	}
	return a.Start.Add(time.Duration(a.Hours) * time.Hour)
}

// Input is everything one month computation reads.
type Input struct {
	Employee Employee
	Year     int
	Month    time.Month
	Punches  []punch.Record
	Absences []Absence
	Config   *compliance.Config
}

// DayResult is the stable per-day record handed to export and reporting.
type DayResult struct {
	Date               string   `json:"date"`
	Status             Status   `json:"status"`
	OrdinaryMinutes    int      `json:"ordinaryMinutes"`
	NightMinutes       int      `json:"nightMinutes"`
	Overtime50Minutes  int      `json:"overtime50Minutes"`
	Overtime100Minutes int      `json:"overtime100Minutes"`
	WorkedMinutes      int      `json:"workedMinutes"`
	RequiredMinutes    int      `json:"requiredMinutes"`
	AbsenceMinutes     int      `json:"absenceMinutes,omitempty"`
	RestDayWorked      bool     `json:"restDayWorked,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`

	day       time.Time
	paidLeave bool
}

// Day returns the calendar date of the result.
func (d DayResult) Day() time.Time { return d.day }

// MonthTotals sums the counted days of a month.
type MonthTotals struct {
	OrdinaryMinutes     int `json:"ordinaryMinutes"`
	NightMinutes        int `json:"nightMinutes"`
	Overtime50Minutes   int `json:"overtime50Minutes"`
	Overtime100Minutes  int `json:"overtime100Minutes"`
	WorkedMinutes       int `json:"workedMinutes"`
	DiasTrabalhados     int `json:"diasTrabalhados"`
	TotalFaltas         int `json:"totalFaltas"`
	PaidLeaveDays       int `json:"paidLeaveDays"`
	UnpaidLeaveDays     int `json:"unpaidLeaveDays"`
	DaysOff             int `json:"daysOff"`
	InProgressDays      int `json:"inProgressDays"`
	UnresolvedBreakDays int `json:"unresolvedBreakDays"`
	ScheduledDays       int `json:"scheduledDays"`
}

// LeaveDays is the number of days fully covered by an absence.
func (t MonthTotals) LeaveDays() int { return t.PaidLeaveDays + t.UnpaidLeaveDays }

// MonthResult is the complete payroll view of one employee-month.
type MonthResult struct {
	EmployeeID string      `json:"employeeId"`
	Year       int         `json:"year"`
	Month      int         `json:"month"`
	Days       []DayResult `json:"days"`
	Totals     MonthTotals `json:"totals"`
}

// Faltas returns the dates classified as unexcused absences.
func (r *MonthResult) Faltas() []string {
	var out []string
	for _, d := range r.Days {
		if d.Status == StatusFalta {
			out = append(out, d.Date)
		}
	}
	return out
}

// Aggregate computes a month. Any inconsistency aborts the whole month; a
// partial result is never returned.
func Aggregate(in Input) (*MonthResult, error) {
	if in.Config == nil {
		return nil, apperrors.ErrMissingComplianceConfig
	}
	if in.Month < time.January || in.Month > time.December || in.Year < 1 {
		return nil, fmt.Errorf("%w: %d-%02d", apperrors.ErrInvalidDateRange, in.Year, int(in.Month))
	}

	a := &aggregator{
		in:       in,
		cfg:      in.Config,
		loc:      in.Config.Location(),
		resolver: in.Config.Resolver(),
	}

	byDate, err := a.indexPunches()
	if err != nil {
		return nil, err
	}
	for _, abs := range in.Absences {
		if abs.Days < 0 || abs.Hours < 0 {
			return nil, fmt.Errorf("%w: absence %s has a negative length", ErrInconsistentData, abs.ID)
		}
	}

	result := &MonthResult{
		EmployeeID: in.Employee.ID,
		Year:       in.Year,
		Month:      int(in.Month),
	}

	first := time.Date(in.Year, in.Month, 1, 0, 0, 0, 0, time.UTC)
	for d := first; d.Month() == in.Month; d = d.AddDate(0, 0, 1) {
		day, err := a.day(d, byDate[dateKey(d)])
		if err != nil {
			return nil, err
		}
		result.Days = append(result.Days, day)
		accumulate(&result.Totals, day)
	}

	scheduled, err := a.scheduledDays(first, first.AddDate(0, 1, -1))
	if err != nil {
		return nil, err
	}
	result.Totals.ScheduledDays = scheduled

	return result, nil
}

type aggregator struct {
	in       Input
	cfg      *compliance.Config
	loc      *time.Location
	resolver *shiftpattern.Resolver
}

func (a *aggregator) indexPunches() (map[string]*punch.Record, error) {
	byDate := make(map[string]*punch.Record, len(a.in.Punches))
	for i := range a.in.Punches {
		rec := &a.in.Punches[i]
		if rec.WorkDate.Year() != a.in.Year || rec.WorkDate.Month() != a.in.Month {
			continue
		}
		key := dateKey(rec.WorkDate)
		if _, dup := byDate[key]; dup {
			return nil, fmt.Errorf("%w: two punch records on %s", ErrInconsistentData, key)
		}
		if rec.ClockIn != nil && rec.ClockOut != nil && rec.ClockOut.Before(*rec.ClockIn) {
			return nil, fmt.Errorf("%w: clock-out before clock-in on %s", ErrInconsistentData, key)
		}
		byDate[key] = rec
	}
	return byDate, nil
}

func (a *aggregator) day(d time.Time, rec *punch.Record) (DayResult, error) {
	emp := a.in.Employee
	res := DayResult{Date: dateKey(d), day: d}

	if rec != nil && rec.ClockIn == nil {
		rec = nil
	}

	if !a.contracted(d) {
		if rec != nil {
			return res, fmt.Errorf("%w: punch on %s outside the employment contract", apperrors.ErrInvalidDateRange, res.Date)
		}
		res.Status = StatusNotContracted
		return res, nil
	}

	rest, err := a.resolver.ResolveCode(emp.PatternCode, emp.ContractStart, d)
	if err != nil {
		return res, err
	}
	pattern, _ := shiftpattern.Parse(emp.PatternCode)
	if pattern == shiftpattern.PatternIntermittent {
		// on-call contract: a punch makes it a regular work day
		rest = rec == nil
	}

	if rest && rec == nil {
		res.Status = StatusDayOff
		return res, nil
	}

	scheduled := emp.Schedule.Minutes()
	res.RequiredMinutes = scheduled
	if rest {
		res.RequiredMinutes = 0
		res.RestDayWorked = true
	} else {
		covered, paid := a.absenceCoverage(d)
		res.AbsenceMinutes = covered
		res.paidLeave = paid
		res.RequiredMinutes = max(0, scheduled-covered)

		if rec == nil {
			if covered > 0 && covered >= scheduled {
				res.Status = StatusAbsent
			} else {
				res.Status = StatusFalta
			}
			return res, nil
		}
	}

	if rec.ClockOut == nil {
		res.Status = StatusInProgress
		return res, nil
	}

	a.buckets(&res, rec)
	res.Status = StatusComplete
	return res, nil
}

// scheduledDays counts the pattern's work days of [from, to] that fall inside
// the employment contract.
func (a *aggregator) scheduledDays(from, to time.Time) (int, error) {
	emp := a.in.Employee
	if emp.DeactivatedAt != nil && civil(*emp.DeactivatedAt).Before(to) {
		to = civil(*emp.DeactivatedAt)
	}
	if to.Before(civil(emp.ContractStart)) {
		return 0, nil
	}
	days, err := a.resolver.ScheduledDays(emp.PatternCode, emp.ContractStart, from, to)
	if err != nil {
		return 0, err
	}
	return len(days), nil
}

func (a *aggregator) contracted(d time.Time) bool {
	emp := a.in.Employee
	if d.Before(civil(emp.ContractStart)) {
		return false
	}
	if emp.DeactivatedAt != nil && d.After(civil(*emp.DeactivatedAt)) {
		return false
	}
	return true
}

// absenceCoverage returns the minutes of the day's scheduled working time that
// approved absences cover, and whether any covering absence is paid. The
// scheduled break is never counted as covered.
func (a *aggregator) absenceCoverage(d time.Time) (int, bool) {
	windows := a.workWindows(d)

	covered := 0
	paid := false
	for _, abs := range a.in.Absences {
		minutes := 0
		for _, w := range windows {
			from := maxTime(w.start, abs.Start)
			to := minTime(w.end, abs.End())
			if to.After(from) {
				minutes += int(to.Sub(from) / time.Minute)
			}
		}
		if minutes == 0 {
			continue
		}
		covered += minutes
		paid = paid || abs.Paid
	}

	// overlapping absences must not count the same minute twice
	return min(covered, a.in.Employee.Schedule.Minutes()), paid
}

type window struct {
	start, end time.Time
}

// workWindows splits the shift starting on d around its scheduled break. A
// break that does not fall inside the shift is ignored.
func (a *aggregator) workWindows(d time.Time) []window {
	sched := a.in.Employee.Schedule
	start := time.Date(d.Year(), d.Month(), d.Day(), sched.Start.Hour(), sched.Start.Minute(), 0, 0, a.loc)
	span := sched.SpanMinutes()
	end := start.Add(time.Duration(span) * time.Minute)

	breakLen := sched.BreakMinutes()
	if breakLen == 0 {
		return []window{{start, end}}
	}
	offset := clocktime.DurationMinutes(sched.Start, *sched.BreakStart)
	if offset+breakLen > span {
		return []window{{start, end}}
	}
	breakStart := start.Add(time.Duration(offset) * time.Minute)
	breakEnd := breakStart.Add(time.Duration(breakLen) * time.Minute)
	return []window{{start, breakStart}, {breakEnd, end}}
}

func (a *aggregator) buckets(res *DayResult, rec *punch.Record) {
	in := rec.ClockIn.In(a.loc).Truncate(time.Minute)
	out := rec.ClockOut.In(a.loc).Truncate(time.Minute)
	span := int(out.Sub(in) / time.Minute)

	breakOffset, breakLen := 0, 0
	if rec.HasBreak() {
		breakOffset = int(rec.BreakStart.Sub(in) / time.Minute)
		breakLen = int(rec.BreakEnd.Sub(*rec.BreakStart) / time.Minute)
	}
	if rec.BreakUnresolved {
		res.Warnings = append(res.Warnings, punch.WarnBreakInferenceUnresolved)
	}

	worked := max(0, span-breakLen)
	res.WorkedMinutes = worked
	res.NightMinutes = clocktime.NightMinutesExcluding(clocktime.ClockOf(in), span, breakOffset, breakLen, a.cfg.NightWindow())

	if res.RestDayWorked {
		res.Overtime100Minutes = worked
		return
	}

	res.OrdinaryMinutes = min(worked, res.RequiredMinutes)
	overtime := worked - res.OrdinaryMinutes
	res.Overtime50Minutes = min(overtime, a.cfg.Overtime50LimitMinutes())
	res.Overtime100Minutes = overtime - res.Overtime50Minutes
}

func accumulate(t *MonthTotals, d DayResult) {
	switch d.Status {
	case StatusNotContracted:
		return
	case StatusDayOff:
		t.DaysOff++
		return
	case StatusAbsent:
		if d.paidLeave {
			t.PaidLeaveDays++
		} else {
			t.UnpaidLeaveDays++
		}
	case StatusFalta:
		t.TotalFaltas++
	case StatusInProgress:
		t.InProgressDays++
	case StatusComplete:
		t.DiasTrabalhados++
	}

	t.OrdinaryMinutes += d.OrdinaryMinutes
	t.NightMinutes += d.NightMinutes
	t.Overtime50Minutes += d.Overtime50Minutes
	t.Overtime100Minutes += d.Overtime100Minutes
	t.WorkedMinutes += d.WorkedMinutes
	if len(d.Warnings) > 0 {
		t.UnresolvedBreakDays++
	}
}

func dateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
