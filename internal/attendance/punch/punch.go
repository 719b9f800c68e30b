// Package punch implements the per-day punch clock: an explicit state tag on
// each record, a transition table, and break inference on clock-out.
package punch

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/carelog/carelog-backend/pkg/errors"
)

// State is the explicit position of a day record in the punch sequence.
type State string

const (
	NotStarted State = "not_started"
	ClockedIn  State = "clocked_in"
	OnBreak    State = "on_break"
	BreakEnded State = "break_ended"
	ClockedOut State = "clocked_out"
)

// Event is a punch submitted by an employee.
type Event string

const (
	EventClockIn    Event = "clock_in"
	EventBreakStart Event = "break_start"
	EventBreakEnd   Event = "break_end"
	EventClockOut   Event = "clock_out"
)

// Warnings attached to a record when a soft failure occurs.
const (
	WarnBreakInferenceUnresolved = "break_inference_unresolved"
	WarnGeolocationDropped       = "geolocation_dropped"
)

// ReasonTimeBeforePrevious marks a punch whose instant precedes the last one.
const ReasonTimeBeforePrevious = "time_before_previous_punch"

var transitions = map[State]map[Event]State{
	NotStarted: {EventClockIn: ClockedIn},
	ClockedIn:  {EventBreakStart: OnBreak, EventClockOut: ClockedOut},
	OnBreak:    {EventBreakEnd: BreakEnded},
	BreakEnded: {EventClockOut: ClockedOut},
	ClockedOut: {},
}

// eventOrder keeps AllowedEvents deterministic.
var eventOrder = []Event{EventClockIn, EventBreakStart, EventBreakEnd, EventClockOut}

// ParseEvent validates an event name.
func ParseEvent(s string) (Event, error) {
	for _, e := range eventOrder {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: unknown event %q", errors.ErrBadRequest, s)
}

// AllowedEvents returns the events legal from s, in punch order.
func AllowedEvents(s State) []Event {
	next := transitions[s]
	allowed := make([]Event, 0, len(next))
	for _, e := range eventOrder {
		if _, ok := next[e]; ok {
			allowed = append(allowed, e)
		}
	}
	return allowed
}

// Geo is an optional coordinate pair sent with a punch.
type Geo struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the pair is a real coordinate.
func (g Geo) Valid() bool {
	if math.IsNaN(g.Latitude) || math.IsNaN(g.Longitude) {
		return false
	}
	return g.Latitude >= -90 && g.Latitude <= 90 && g.Longitude >= -180 && g.Longitude <= 180
}

// Record is one employee's punches for one work date. The work date is the
// date of the clock-in, so an overnight shift stays on a single record.
type Record struct {
	ID              string     `db:"id" json:"id"`
	EmployeeID      string     `db:"employee_id" json:"employee_id"`
	WorkDate        time.Time  `db:"work_date" json:"work_date"`
	State           State      `db:"state" json:"state"`
	ClockIn         *time.Time `db:"entrada" json:"entrada,omitempty"`
	BreakStart      *time.Time `db:"intervalo_inicio" json:"intervalo_inicio,omitempty"`
	BreakEnd        *time.Time `db:"intervalo_fim" json:"intervalo_fim,omitempty"`
	ClockOut        *time.Time `db:"saida" json:"saida,omitempty"`
	BreakInferred   bool       `db:"intervalo_inferido" json:"intervalo_inferido"`
	BreakUnresolved bool       `db:"intervalo_nao_resolvido" json:"intervalo_nao_resolvido"`
	Latitude        *float64   `db:"latitude" json:"latitude,omitempty"`
	Longitude       *float64   `db:"longitude" json:"longitude,omitempty"`
	Version         int        `db:"version" json:"version"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// NewRecord returns an empty record for a work date.
func NewRecord(employeeID string, workDate time.Time) Record {
	return Record{EmployeeID: employeeID, WorkDate: workDate, State: NotStarted}
}

// Warnings lists the soft failures recorded on the day.
func (r Record) Warnings() []string {
	if r.BreakUnresolved {
		return []string{WarnBreakInferenceUnresolved}
	}
	return nil
}

// HasBreak reports whether both break fields are filled.
func (r Record) HasBreak() bool {
	return r.BreakStart != nil && r.BreakEnd != nil
}

// LastPunch returns the most recent filled timestamp.
func (r Record) LastPunch() *time.Time {
	for _, t := range []*time.Time{r.ClockOut, r.BreakEnd, r.BreakStart, r.ClockIn} {
		if t != nil {
			return t
		}
	}
	return nil
}

// IsOpen reports whether the record has a clock-in and no clock-out.
func (r Record) IsOpen() bool {
	return r.ClockIn != nil && r.ClockOut == nil
}

// Options carries the tenant rules a transition needs.
type Options struct {
	MinBreakMinutes       int
	BreakThresholdMinutes int
	Geo                   *Geo
}

// Outcome describes the side effects of a successful transition.
type Outcome struct {
	From          State
	To            State
	BreakInferred bool
	Warnings      []string
}

// TransitionError rejects an event without touching the record.
type TransitionError struct {
	State   State
	Event   Event
	Allowed []Event
	Reason  string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s while %s (allowed: %s)", e.Event, e.State, strings.Join(e.AllowedStrings(), ", "))
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	return errors.ErrInvalidPunchTransition
}

// AllowedStrings returns Allowed as plain strings.
func (e *TransitionError) AllowedStrings() []string {
	out := make([]string, len(e.Allowed))
	for i, a := range e.Allowed {
		out[i] = string(a)
	}
	return out
}

// Apply runs one event against rec and returns the updated copy. rec itself is
// never modified, so a rejected event leaves no partial write behind. Punch
// instants are truncated to the minute.
func Apply(rec Record, ev Event, at time.Time, opts Options) (Record, Outcome, error) {
	next, ok := transitions[rec.State][ev]
	if !ok {
		return rec, Outcome{}, &TransitionError{State: rec.State, Event: ev, Allowed: AllowedEvents(rec.State)}
	}

	at = at.Truncate(time.Minute)
	if last := rec.LastPunch(); last != nil && at.Before(*last) {
		return rec, Outcome{}, &TransitionError{
			State:   rec.State,
			Event:   ev,
			Allowed: AllowedEvents(rec.State),
			Reason:  ReasonTimeBeforePrevious,
		}
	}

	out := rec
	outcome := Outcome{From: rec.State, To: next}

	switch ev {
	case EventClockIn:
		out.ClockIn = &at
	case EventBreakStart:
		out.BreakStart = &at
	case EventBreakEnd:
		out.BreakEnd = &at
	case EventClockOut:
		out.ClockOut = &at
		if rec.State == ClockedIn {
			inferOnClockOut(&out, opts, &outcome)
		}
	}
	out.State = next

	if opts.Geo != nil {
		if opts.Geo.Valid() {
			lat, lon := opts.Geo.Latitude, opts.Geo.Longitude
			out.Latitude, out.Longitude = &lat, &lon
		} else {
			outcome.Warnings = append(outcome.Warnings, WarnGeolocationDropped)
		}
	}

	return out, outcome, nil
}

func inferOnClockOut(rec *Record, opts Options, outcome *Outcome) {
	brk, err := InferBreak(*rec.ClockIn, *rec.ClockOut, opts.MinBreakMinutes, opts.BreakThresholdMinutes)
	if err != nil {
		rec.BreakUnresolved = true
		outcome.Warnings = append(outcome.Warnings, WarnBreakInferenceUnresolved)
		return
	}
	if brk == nil {
		return
	}
	rec.BreakStart, rec.BreakEnd = &brk.Start, &brk.End
	rec.BreakInferred = true
	outcome.BreakInferred = true
}

// Break is a half-open break interval.
type Break struct {
	Start time.Time
	End   time.Time
}

// InferBreak places a break of minBreakMinutes centered on the midpoint of
// [clockIn, clockOut], kept at least one minute away from either end. Spans at
// or under thresholdMinutes need no break and return nil. A break that cannot
// fit returns ErrBreakInferenceUnresolved.
func InferBreak(clockIn, clockOut time.Time, minBreakMinutes, thresholdMinutes int) (*Break, error) {
	clockIn = clockIn.Truncate(time.Minute)
	clockOut = clockOut.Truncate(time.Minute)

	span := int(clockOut.Sub(clockIn) / time.Minute)
	if span <= thresholdMinutes {
		return nil, nil
	}
	if minBreakMinutes <= 0 {
		return nil, fmt.Errorf("%w: break width %d", errors.ErrBreakInferenceUnresolved, minBreakMinutes)
	}

	lo := 1
	hi := span - 1
	start := span/2 - minBreakMinutes/2
	if start < lo {
		start = lo
	}
	if start+minBreakMinutes > hi {
		start = hi - minBreakMinutes
	}
	if start < lo {
		return nil, fmt.Errorf("%w: %d minute break does not fit in %d minute span",
			errors.ErrBreakInferenceUnresolved, minBreakMinutes, span)
	}

	return &Break{
		Start: clockIn.Add(time.Duration(start) * time.Minute),
		End:   clockIn.Add(time.Duration(start+minBreakMinutes) * time.Minute),
	}, nil
}

// ResolveTarget picks the record a punch applies to. A clock-in always opens
// today's record. Other events go to today's record when it has started,
// otherwise to yesterday's if it is still open, which is how an overnight
// shift gets closed after midnight.
func ResolveTarget(ev Event, employeeID string, date time.Time, today, yesterday *Record) Record {
	if ev != EventClockIn {
		if (today == nil || today.State == NotStarted) && yesterday != nil && yesterday.IsOpen() {
			return *yesterday
		}
	}
	if today != nil {
		return *today
	}
	return NewRecord(employeeID, date)
}

// Fields are the raw timestamps of an administrative correction.
type Fields struct {
	ClockIn    *time.Time
	BreakStart *time.Time
	BreakEnd   *time.Time
	ClockOut   *time.Time
}

// FromFields rebuilds rec with corrected timestamps. The fields must respect
// punch order: each present field needs all earlier ones, except that both
// break fields may be absent. The state tag is derived from what is present.
func FromFields(rec Record, f Fields) (Record, error) {
	state, err := deriveState(f)
	if err != nil {
		return rec, err
	}

	ordered := []*time.Time{f.ClockIn, f.BreakStart, f.BreakEnd, f.ClockOut}
	var prev *time.Time
	for _, t := range ordered {
		if t == nil {
			continue
		}
		if prev != nil && t.Before(*prev) {
			return rec, fmt.Errorf("%w: punch times must be in order", errors.ErrValidation)
		}
		prev = t
	}

	out := rec
	out.ClockIn = truncPtr(f.ClockIn)
	out.BreakStart = truncPtr(f.BreakStart)
	out.BreakEnd = truncPtr(f.BreakEnd)
	out.ClockOut = truncPtr(f.ClockOut)
	out.State = state
	out.BreakInferred = false
	out.BreakUnresolved = false
	return out, nil
}

func deriveState(f Fields) (State, error) {
	in, bs, be, out := f.ClockIn != nil, f.BreakStart != nil, f.BreakEnd != nil, f.ClockOut != nil
	switch {
	case !in && !bs && !be && !out:
		return NotStarted, nil
	case in && !bs && !be && !out:
		return ClockedIn, nil
	case in && bs && !be && !out:
		return OnBreak, nil
	case in && bs && be && !out:
		return BreakEnded, nil
	case in && bs == be && out:
		return ClockedOut, nil
	default:
		return "", fmt.Errorf("%w: punch fields out of order", errors.ErrValidation)
	}
}

func truncPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.Truncate(time.Minute)
	return &v
}
