package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/carelog/carelog-backend/internal/attendance/events"
	"github.com/carelog/carelog-backend/internal/attendance/punch"
	"github.com/carelog/carelog-backend/internal/attendance/repository"
	"github.com/carelog/carelog-backend/internal/attendance/service"
	"github.com/carelog/carelog-backend/pkg/actor"
	"github.com/carelog/carelog-backend/pkg/errors"
	"github.com/carelog/carelog-backend/pkg/messaging"
	"github.com/carelog/carelog-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// America/Sao_Paulo is UTC-3 all year since 2019
func local(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh+3, mm, 0, 0, time.UTC)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

func caregiver(id string) *repository.Employee {
	return &repository.Employee{
		ID:            id,
		FirstName:     "Ana",
		LastName:      "Souza",
		RegistraPonto: true,
		ContractStart: day(2024, 1, 1),
		PatternCode:   strPtr("12x36"),
		ShiftStart:    strPtr("19:00"),
		ShiftEnd:      strPtr("07:00"),
	}
}

type punchFixture struct {
	svc        *service.PunchService
	punches    *fakePunches
	compliance *fakeCompliance
	clock      *testutil.FixedClock
	published  *testutil.MockPublisher
}

func newPunchFixture(t *testing.T, emps ...*repository.Employee) *punchFixture {
	t.Helper()
	f := &punchFixture{
		punches:    newFakePunches(),
		compliance: withDefaults(),
		clock:      &testutil.FixedClock{At: local(2024, 3, 4, 8, 0)},
		published:  testutil.NewMockPublisher(),
	}
	f.svc = service.NewPunchService(
		newFakeEmployees(emps...),
		f.punches,
		f.compliance,
		events.New(f.published, nil),
		f.clock,
		nil,
	)
	return f
}

func (f *punchFixture) punchAt(t *testing.T, at time.Time, ev punch.Event) (*service.PunchResult, error) {
	t.Helper()
	f.clock.At = at
	return f.svc.Punch(testutil.TestTenantContext(), "emp-1", ev, nil)
}

func TestPunch_ConcurrentClockOutLosesUpdate(t *testing.T) {
	f := newPunchFixture(t, caregiver("emp-1"))
	_, err := f.punchAt(t, local(2024, 3, 4, 8, 0), punch.EventClockIn)
	require.NoError(t, err)
	f.published.Reset()

	// the other clock-out read the same clocked-in record and commits first
	f.punches.beforeUpdate = func(fp *fakePunches) {
		rec, err := fp.GetByEmployeeAndDate(context.Background(), "emp-1", day(2024, 3, 4))
		require.NoError(t, err)
		require.NotNil(t, rec)
		out := local(2024, 3, 4, 17, 0)
		rec.ClockOut = &out
		require.NoError(t, fp.Update(context.Background(), rec))
	}

	_, err = f.punchAt(t, local(2024, 3, 4, 17, 5), punch.EventClockOut)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConflict)

	stored, err := f.punches.GetByEmployeeAndDate(context.Background(), "emp-1", day(2024, 3, 4))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 2, stored.Version)
	assert.True(t, stored.ClockOut.Equal(local(2024, 3, 4, 17, 0)))
	f.published.AssertNoEventsPublished(t)
}

func TestPunch_FullDay(t *testing.T) {
	f := newPunchFixture(t, caregiver("emp-1"))

	steps := []struct {
		at   time.Time
		ev   punch.Event
		want punch.State
	}{
		{local(2024, 3, 4, 8, 0), punch.EventClockIn, punch.ClockedIn},
		{local(2024, 3, 4, 12, 0), punch.EventBreakStart, punch.OnBreak},
		{local(2024, 3, 4, 13, 0), punch.EventBreakEnd, punch.BreakEnded},
		{local(2024, 3, 4, 17, 0), punch.EventClockOut, punch.ClockedOut},
	}

	var last *service.PunchResult
	for _, step := range steps {
		res, err := f.punchAt(t, step.at, step.ev)
		require.NoError(t, err, step.ev)
		assert.Equal(t, step.want, res.State)
		last = res
	}

	assert.Equal(t, day(2024, 3, 4), last.Record.WorkDate)
	assert.Equal(t, 4, last.Record.Version)
	assert.False(t, last.Record.BreakInferred)
	assert.Empty(t, last.Allowed)
	assert.Len(t, f.punches.records, 1)
	assert.Len(t, f.published.Events(), 4)
	f.published.AssertEventPublished(t, messaging.EventPunchRecorded)
}

func TestPunch_OvernightShiftClosesYesterday(t *testing.T) {
	f := newPunchFixture(t, caregiver("emp-1"))

	_, err := f.punchAt(t, local(2024, 3, 4, 19, 0), punch.EventClockIn)
	require.NoError(t, err)

	res, err := f.punchAt(t, local(2024, 3, 5, 7, 0), punch.EventClockOut)
	require.NoError(t, err)

	assert.Equal(t, day(2024, 3, 4), res.Record.WorkDate, "work date is the clock-in date")
	assert.Equal(t, punch.ClockedOut, res.State)
	assert.True(t, res.Record.BreakInferred, "a 12h span without a break gets one inferred")
	require.NotNil(t, res.Record.BreakStart)
	assert.Equal(t, 60, int(res.Record.BreakEnd.Sub(*res.Record.BreakStart).Minutes()))
	assert.Len(t, f.punches.records, 1)
}

func TestPunch_ClockInAfterMidnightOpensNewDay(t *testing.T) {
	f := newPunchFixture(t, caregiver("emp-1"))

	_, err := f.punchAt(t, local(2024, 3, 4, 19, 0), punch.EventClockIn)
	require.NoError(t, err)

	res, err := f.punchAt(t, local(2024, 3, 5, 19, 0), punch.EventClockIn)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 5), res.Record.WorkDate)
	assert.Len(t, f.punches.records, 2)
}

func TestPunch_Rejections(t *testing.T) {
	exempt := caregiver("emp-2")
	exempt.RegistraPonto = false

	tests := []struct {
		name    string
		setup   func(f *punchFixture)
		emp     string
		at      time.Time
		ev      punch.Event
		wantErr error
		check   func(t *testing.T, err error)
	}{
		{
			name:    "break before clock-in",
			emp:     "emp-1",
			at:      local(2024, 3, 4, 9, 0),
			ev:      punch.EventBreakStart,
			wantErr: errors.ErrInvalidPunchTransition,
			check: func(t *testing.T, err error) {
				var appErr *errors.AppError
				require.True(t, errors.As(err, &appErr))
				assert.Equal(t, 409, appErr.StatusCode)
				assert.Equal(t, "not_started", appErr.Details["state"])
				assert.Equal(t, "clock_in", appErr.Details["allowed"])
			},
		},
		{
			name:    "employee exempt from punching",
			emp:     "emp-2",
			at:      local(2024, 3, 4, 8, 0),
			ev:      punch.EventClockIn,
			wantErr: errors.ErrBadRequest,
		},
		{
			name:    "unknown employee",
			emp:     "ghost",
			at:      local(2024, 3, 4, 8, 0),
			ev:      punch.EventClockIn,
			wantErr: errors.ErrNotFound,
		},
		{
			name:    "no compliance config",
			setup:   func(f *punchFixture) { f.compliance.rec = nil },
			emp:     "emp-1",
			at:      local(2024, 3, 4, 8, 0),
			ev:      punch.EventClockIn,
			wantErr: errors.ErrMissingComplianceConfig,
		},
		{
			name:    "before contract start",
			emp:     "emp-1",
			at:      local(2023, 12, 31, 8, 0),
			ev:      punch.EventClockIn,
			wantErr: errors.ErrInvalidDateRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPunchFixture(t, caregiver("emp-1"), exempt)
			if tt.setup != nil {
				tt.setup(f)
			}
			f.clock.At = tt.at

			res, err := f.svc.Punch(testutil.TestTenantContext(), tt.emp, tt.ev, nil)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			if tt.check != nil {
				tt.check(t, err)
			}
			assert.Empty(t, f.punches.records, "a rejected punch writes nothing")
			f.published.AssertNoEventsPublished(t)
		})
	}
}

func TestPunch_SecondClockInIsRejected(t *testing.T) {
	f := newPunchFixture(t, caregiver("emp-1"))

	_, err := f.punchAt(t, local(2024, 3, 4, 8, 0), punch.EventClockIn)
	require.NoError(t, err)

	_, err = f.punchAt(t, local(2024, 3, 4, 8, 5), punch.EventClockIn)
	assert.True(t, errors.Is(err, errors.ErrInvalidPunchTransition))
}

func TestPunch_InvalidGeolocationIsDropped(t *testing.T) {
	f := newPunchFixture(t, caregiver("emp-1"))

	res, err := f.svc.Punch(testutil.TestTenantContext(), "emp-1", punch.EventClockIn, &punch.Geo{Latitude: 123, Longitude: 0})
	require.NoError(t, err)

	assert.Contains(t, res.Warnings, punch.WarnGeolocationDropped)
	assert.Nil(t, res.Record.Latitude)
	assert.Equal(t, punch.ClockedIn, res.State)
}

func TestStatus(t *testing.T) {
	f := newPunchFixture(t, caregiver("emp-1"))
	ctx := testutil.TestTenantContext()

	f.clock.At = local(2024, 3, 4, 7, 0)
	st, err := f.svc.Status(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, punch.NotStarted, st.State)
	assert.Equal(t, []punch.Event{punch.EventClockIn}, st.Allowed)

	_, err = f.punchAt(t, local(2024, 3, 4, 19, 0), punch.EventClockIn)
	require.NoError(t, err)

	f.clock.At = local(2024, 3, 5, 2, 0)
	st, err = f.svc.Status(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, punch.ClockedIn, st.State)
	assert.Equal(t, day(2024, 3, 4), st.Record.WorkDate)
	assert.Equal(t, []punch.Event{punch.EventClockIn, punch.EventBreakStart, punch.EventClockOut}, st.Allowed)
}

func TestCorrect(t *testing.T) {
	in := local(2024, 3, 4, 8, 0)
	out := local(2024, 3, 4, 17, 0)

	tests := []struct {
		name    string
		input   service.CorrectionInput
		wantErr error
	}{
		{
			name:  "adds a forgotten clock-out",
			input: service.CorrectionInput{Fields: punch.Fields{ClockIn: &in, ClockOut: &out}, Reason: "forgot to clock out"},
		},
		{
			name:    "reason is mandatory",
			input:   service.CorrectionInput{Fields: punch.Fields{ClockIn: &in, ClockOut: &out}, Reason: "  "},
			wantErr: errors.ErrValidation,
		},
		{
			name:    "stale version",
			input:   service.CorrectionInput{Fields: punch.Fields{ClockIn: &in}, Version: 7, Reason: "x"},
			wantErr: errors.ErrConflict,
		},
		{
			name:    "out of order",
			input:   service.CorrectionInput{Fields: punch.Fields{ClockIn: &out, ClockOut: &in}, Reason: "x"},
			wantErr: errors.ErrValidation,
		},
		{
			name: "clock-in moved to another day",
			input: service.CorrectionInput{
				Fields: punch.Fields{ClockIn: ptrTime(in.AddDate(0, 0, 1))},
				Reason: "x",
			},
			wantErr: errors.ErrInvalidDateRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPunchFixture(t, caregiver("emp-1"))
			stored := f.punches.put(punch.Record{
				EmployeeID: "emp-1", WorkDate: day(2024, 3, 4), State: punch.ClockedIn, ClockIn: &in,
			})

			ctx := actor.WithActor(testutil.TestTenantContext(), &actor.Actor{ID: "admin-1", Name: "Admin"})
			got, err := f.svc.Correct(ctx, stored.ID, tt.input)

			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Empty(t, f.punches.corrections)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, punch.ClockedOut, got.State)
			assert.Equal(t, 2, got.Version)
			require.Len(t, f.punches.corrections, 1)
			assert.Equal(t, "admin-1", f.punches.corrections[0].CorrectedBy)
			assert.Equal(t, "forgot to clock out", f.punches.corrections[0].Reason)
			f.published.AssertEventPublished(t, messaging.EventPunchCorrected)
		})
	}
}

func TestDeleteRecord(t *testing.T) {
	f := newPunchFixture(t, caregiver("emp-1"))
	in := local(2024, 3, 4, 8, 0)
	stored := f.punches.put(punch.Record{EmployeeID: "emp-1", WorkDate: day(2024, 3, 4), State: punch.ClockedIn, ClockIn: &in})
	ctx := testutil.TestTenantContext()

	err := f.svc.DeleteRecord(ctx, stored.ID, 0, "")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	err = f.svc.DeleteRecord(ctx, stored.ID, 0, "duplicate device punch")
	require.NoError(t, err)
	assert.Empty(t, f.punches.records)
	require.Len(t, f.punches.corrections, 1)
	assert.Equal(t, actor.SystemID, f.punches.corrections[0].CorrectedBy, "no actor means the system did it")

	corrections, err := f.svc.ListCorrections(ctx, "emp-1", day(2024, 3, 1), day(2024, 4, 1))
	require.NoError(t, err)
	assert.Len(t, corrections, 1)

	_, err = f.svc.ListCorrections(ctx, "emp-1", day(2024, 4, 1), day(2024, 3, 1))
	assert.True(t, errors.Is(err, errors.ErrInvalidDateRange))

	err = f.svc.DeleteRecord(context.Background(), "missing", 0, "x")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func ptrTime(t time.Time) *time.Time { return &t }
