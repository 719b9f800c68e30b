package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carelog/carelog-backend/internal/attendance/compliance"
	"github.com/carelog/carelog-backend/internal/attendance/export"
	"github.com/carelog/carelog-backend/internal/attendance/handler"
	"github.com/carelog/carelog-backend/internal/attendance/payroll"
	"github.com/carelog/carelog-backend/internal/attendance/punch"
	"github.com/carelog/carelog-backend/internal/attendance/repository"
	"github.com/carelog/carelog-backend/internal/attendance/service"
	"github.com/carelog/carelog-backend/pkg/actor"
	"github.com/carelog/carelog-backend/pkg/errors"
	"github.com/carelog/carelog-backend/pkg/httputil"
	"github.com/carelog/carelog-backend/pkg/i18n"
	"github.com/carelog/carelog-backend/pkg/tenant"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubPunches struct {
	punch       func(employeeID string, ev punch.Event, geo *punch.Geo) (*service.PunchResult, error)
	status      func(employeeID string) (*service.PunchResult, error)
	correct     func(recordID string, in service.CorrectionInput) (*punch.Record, error)
	deleteRec   func(recordID string, version int, reason string) error
	corrections func(employeeID string, from, to time.Time) ([]repository.Correction, error)
}

func (s *stubPunches) Punch(_ context.Context, employeeID string, ev punch.Event, geo *punch.Geo) (*service.PunchResult, error) {
	return s.punch(employeeID, ev, geo)
}

func (s *stubPunches) Status(_ context.Context, employeeID string) (*service.PunchResult, error) {
	return s.status(employeeID)
}

func (s *stubPunches) Correct(_ context.Context, recordID string, in service.CorrectionInput) (*punch.Record, error) {
	return s.correct(recordID, in)
}

func (s *stubPunches) DeleteRecord(_ context.Context, recordID string, version int, reason string) error {
	return s.deleteRec(recordID, version, reason)
}

func (s *stubPunches) ListCorrections(_ context.Context, employeeID string, from, to time.Time) ([]repository.Correction, error) {
	return s.corrections(employeeID, from, to)
}

type stubPayroll struct {
	monthly  func(employeeID string, year, month int) (*service.Timesheet, error)
	facility func(year, month int) (*service.FacilityTimesheets, error)
}

func (s *stubPayroll) MonthlyTimesheet(_ context.Context, employeeID string, year, month int) (*service.Timesheet, error) {
	return s.monthly(employeeID, year, month)
}

func (s *stubPayroll) FacilityTimesheets(_ context.Context, year, month int) (*service.FacilityTimesheets, error) {
	return s.facility(year, month)
}

type stubCompliance struct {
	get    func() (*repository.ComplianceRecord, error)
	update func(p compliance.Params) (*repository.ComplianceRecord, error)
	seed   func() (*repository.ComplianceRecord, error)
}

func (s *stubCompliance) Get(context.Context) (*repository.ComplianceRecord, error) { return s.get() }

func (s *stubCompliance) Update(_ context.Context, p compliance.Params) (*repository.ComplianceRecord, error) {
	return s.update(p)
}

func (s *stubCompliance) SeedDefaults(context.Context) (*repository.ComplianceRecord, error) {
	return s.seed()
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
	Warnings []string `json:"warnings"`
}

func newRouter(t *testing.T, p *stubPunches, pr *stubPayroll, c *stubCompliance) http.Handler {
	t.Helper()
	require.NoError(t, handler.RegisterValidators())

	if p == nil {
		p = &stubPunches{}
	}
	if pr == nil {
		pr = &stubPayroll{}
	}
	if c == nil {
		c = &stubCompliance{}
	}

	r := chi.NewRouter()
	r.Use(i18n.Middleware)
	r.Use(httputil.ActorMiddleware)
	r.Route("/api/v1/attendance", handler.Routes(
		handler.NewPunchHandler(p, nil),
		handler.NewTimesheetHandler(pr, nil),
		handler.NewComplianceHandler(c, nil),
	))
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	return doAs(t, h, nil, method, path, body)
}

// doAs sends the request with gateway user headers; nil runs as the system
func doAs(t *testing.T, h http.Handler, headers map[string]string, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestPunch(t *testing.T) {
	var gotEmployee string
	var gotEvent punch.Event
	var gotGeo *punch.Geo
	stub := &stubPunches{
		punch: func(employeeID string, ev punch.Event, geo *punch.Geo) (*service.PunchResult, error) {
			gotEmployee, gotEvent, gotGeo = employeeID, ev, geo
			return &service.PunchResult{
				Record:   punch.Record{ID: "rec-1", EmployeeID: employeeID, State: punch.ClockedIn},
				State:    punch.ClockedIn,
				Allowed:  punch.AllowedEvents(punch.ClockedIn),
				Warnings: []string{punch.WarnGeolocationDropped},
			}, nil
		},
	}
	h := newRouter(t, stub, nil, nil)

	rec, env := do(t, h, http.MethodPost, "/api/v1/attendance/employees/emp-1/punches",
		map[string]any{"event": "clock_in", "latitude": -23.5, "longitude": -46.6})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.Success)
	assert.Equal(t, []string{punch.WarnGeolocationDropped}, env.Warnings)
	assert.Equal(t, "emp-1", gotEmployee)
	assert.Equal(t, punch.EventClockIn, gotEvent)
	require.NotNil(t, gotGeo)
	assert.Equal(t, -23.5, gotGeo.Latitude)

	var data struct {
		State   string   `json:"state"`
		Allowed []string `json:"allowed_events"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "clocked_in", data.State)
	assert.Equal(t, []string{"break_start", "clock_out"}, data.Allowed)
}

func TestPunch_BadRequests(t *testing.T) {
	called := false
	stub := &stubPunches{
		punch: func(string, punch.Event, *punch.Geo) (*service.PunchResult, error) {
			called = true
			return nil, errors.InvalidPunchTransition("not_started", "break_start", []string{"clock_in"})
		},
	}
	h := newRouter(t, stub, nil, nil)

	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{name: "unknown event", body: map[string]any{"event": "lunch"}, wantCode: 400, wantErr: "VALIDATION_ERROR"},
		{name: "missing event", body: map[string]any{}, wantCode: 400, wantErr: "VALIDATION_ERROR"},
		{name: "unknown field", body: map[string]any{"event": "clock_in", "at": "2024-03-04T08:00:00Z"}, wantCode: 400, wantErr: "BAD_REQUEST"},
		{name: "not json", body: "{", wantCode: 400, wantErr: "BAD_REQUEST"},
		{name: "illegal transition", body: map[string]any{"event": "break_start"}, wantCode: 409, wantErr: "INVALID_PUNCH_TRANSITION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = false
			rec, env := do(t, h, http.MethodPost, "/api/v1/attendance/employees/emp-1/punches", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantErr, env.Error.Code)
			assert.Equal(t, tt.wantErr == "INVALID_PUNCH_TRANSITION", called)
			if called {
				assert.Equal(t, "clock_in", env.Error.Details["allowed"])
			}
		})
	}
}

func TestStatus(t *testing.T) {
	stub := &stubPunches{
		status: func(employeeID string) (*service.PunchResult, error) {
			if employeeID != "emp-1" {
				return nil, errors.NotFound("employee")
			}
			return &service.PunchResult{State: punch.NotStarted, Allowed: []punch.Event{punch.EventClockIn}}, nil
		},
	}
	h := newRouter(t, stub, nil, nil)

	rec, _ := do(t, h, http.MethodGet, "/api/v1/attendance/employees/emp-1/punch-status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, h, http.MethodGet, "/api/v1/attendance/employees/ghost/punch-status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestCorrectAndDelete(t *testing.T) {
	var got service.CorrectionInput
	var deleted struct {
		id      string
		version int
		reason  string
	}
	stub := &stubPunches{
		correct: func(recordID string, in service.CorrectionInput) (*punch.Record, error) {
			got = in
			return &punch.Record{ID: recordID, State: punch.ClockedOut, Version: 3}, nil
		},
		deleteRec: func(recordID string, version int, reason string) error {
			deleted.id, deleted.version, deleted.reason = recordID, version, reason
			return nil
		},
	}
	h := newRouter(t, stub, nil, nil)

	rec, env := do(t, h, http.MethodPut, "/api/v1/attendance/punches/rec-1", map[string]any{
		"clock_in":  "2024-03-04T11:00:00Z",
		"clock_out": "2024-03-04T20:00:00Z",
		"version":   2,
		"reason":    "forgot to clock out",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.Success)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "forgot to clock out", got.Reason)
	require.NotNil(t, got.Fields.ClockIn)
	assert.Equal(t, time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC), got.Fields.ClockIn.UTC())
	assert.Nil(t, got.Fields.BreakStart)

	rec, env = do(t, h, http.MethodPut, "/api/v1/attendance/punches/rec-1", map[string]any{"clock_in": "2024-03-04T11:00:00Z"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Details, "reason")

	rec, _ = do(t, h, http.MethodDelete, "/api/v1/attendance/punches/rec-1", map[string]any{"version": 3, "reason": "duplicate"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "rec-1", deleted.id)
	assert.Equal(t, 3, deleted.version)
	assert.Equal(t, "duplicate", deleted.reason)
}

func TestListCorrections(t *testing.T) {
	var gotFrom, gotTo time.Time
	stub := &stubPunches{
		corrections: func(employeeID string, from, to time.Time) ([]repository.Correction, error) {
			gotFrom, gotTo = from, to
			return []repository.Correction{{ID: "c-1", Action: repository.CorrectionUpdate}}, nil
		},
	}
	h := newRouter(t, stub, nil, nil)

	rec, _ := do(t, h, http.MethodGet, "/api/v1/attendance/employees/emp-1/corrections?from=2024-03-01&to=2024-04-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), gotFrom)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), gotTo)

	rec, env := do(t, h, http.MethodGet, "/api/v1/attendance/employees/emp-1/corrections?from=03/01/2024&to=2024-04-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Details, "from")

	rec, env = do(t, h, http.MethodGet, "/api/v1/attendance/employees/emp-1/corrections?from=2024-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Details, "to")
}

func march(employeeID string) *service.Timesheet {
	return &service.Timesheet{
		EmployeeName: "Ana Souza",
		MonthResult: &payroll.MonthResult{
			EmployeeID: employeeID,
			Year:       2024,
			Month:      3,
			Days:       []payroll.DayResult{{Date: "2024-03-01", Status: payroll.StatusFalta, RequiredMinutes: 480}},
			Totals:     payroll.MonthTotals{TotalFaltas: 1},
		},
	}
}

func TestTimesheets(t *testing.T) {
	stub := &stubPayroll{
		monthly: func(employeeID string, year, month int) (*service.Timesheet, error) {
			if month > 12 {
				return nil, errors.InvalidDateRange("invalid month")
			}
			return march(employeeID), nil
		},
		facility: func(year, month int) (*service.FacilityTimesheets, error) {
			return &service.FacilityTimesheets{
				Year:       year,
				Month:      month,
				Timesheets: []service.Timesheet{*march("emp-1"), *march("emp-2")},
				Failures:   []service.TimesheetFailure{{EmployeeID: "emp-3", Code: "BAD_REQUEST"}},
			}, nil
		},
	}
	h := newRouter(t, nil, stub, nil)

	t.Run("employee json", func(t *testing.T) {
		rec, env := do(t, h, http.MethodGet, "/api/v1/attendance/employees/emp-1/timesheets/2024/3", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var data struct {
			EmployeeName string `json:"employeeName"`
			EmployeeID   string `json:"employeeId"`
			Days         []struct {
				Date   string `json:"date"`
				Status string `json:"status"`
			} `json:"days"`
			Totals struct {
				TotalFaltas int `json:"totalFaltas"`
			} `json:"totals"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, "Ana Souza", data.EmployeeName)
		assert.Equal(t, "emp-1", data.EmployeeID)
		assert.Equal(t, "falta", data.Days[0].Status)
		assert.Equal(t, 1, data.Totals.TotalFaltas)
	})

	t.Run("bad path values", func(t *testing.T) {
		rec, env := do(t, h, http.MethodGet, "/api/v1/attendance/employees/emp-1/timesheets/2024/march", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, env.Error.Details, "month")

		rec, env = do(t, h, http.MethodGet, "/api/v1/attendance/employees/emp-1/timesheets/2024/13", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_DATE_RANGE", env.Error.Code)
	})

	t.Run("employee export", func(t *testing.T) {
		rec, _ := do(t, h, http.MethodGet, "/api/v1/attendance/employees/emp-1/timesheets/2024/3/export.xlsx", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "timesheet-emp-1-2024-03.xlsx")

		f, err := excelize.OpenReader(rec.Body)
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, []string{"Ana Souza 2024-03"}, f.GetSheetList())
	})

	t.Run("facility json keeps failures", func(t *testing.T) {
		rec, env := do(t, h, http.MethodGet, "/api/v1/attendance/timesheets/2024/3", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var data service.FacilityTimesheets
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Len(t, data.Timesheets, 2)
		require.Len(t, data.Failures, 1)
		assert.Equal(t, "emp-3", data.Failures[0].EmployeeID)
	})

	t.Run("facility export", func(t *testing.T) {
		rec, _ := do(t, h, http.MethodGet, "/api/v1/attendance/timesheets/2024/3/export.xlsx", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		f, err := excelize.OpenReader(rec.Body)
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, []string{"Summary", "Ana Souza 2024-03", "Ana Souza 2024-03 (2)"}, f.GetSheetList())
	})

	t.Run("facility export names the facility", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/timesheets/2024/3/export.xlsx", nil)
		req = req.WithContext(tenant.WithTenantContext(req.Context(), "t-1", "casa-aurora", "tenant_casa_aurora"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "timesheets-casa-aurora-2024-03.xlsx")
	})
}

func TestComplianceConfig(t *testing.T) {
	var got compliance.Params
	stub := &stubCompliance{
		get: func() (*repository.ComplianceRecord, error) {
			return nil, errors.MissingComplianceConfig()
		},
		update: func(p compliance.Params) (*repository.ComplianceRecord, error) {
			got = p
			return &repository.ComplianceRecord{ID: "cfg-1", Timezone: p.Timezone}, nil
		},
		seed: func() (*repository.ComplianceRecord, error) {
			return &repository.ComplianceRecord{ID: "cfg-1", Timezone: "America/Sao_Paulo"}, nil
		},
	}
	h := newRouter(t, nil, nil, stub)

	valid := map[string]any{
		"night_start":              "22:00",
		"night_end":                "05:00",
		"overtime50_limit_minutes": 120,
		"overtime50_premium":       "50",
		"overtime100_premium":      "100",
		"night_premium":            "20",
		"min_break_minutes":        60,
		"break_threshold_minutes":  360,
		"timezone":                 "America/Sao_Paulo",
		"unknown_pattern_policy":   "fail_closed",
	}

	rec, env := do(t, h, http.MethodGet, "/api/v1/attendance/compliance-config", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "MISSING_COMPLIANCE_CONFIG", env.Error.Code)

	rec, _ = do(t, h, http.MethodPut, "/api/v1/attendance/compliance-config", valid)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "22:00", got.NightStart)
	assert.Equal(t, 120, got.Overtime50LimitMinutes)
	assert.True(t, got.NightPremium.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "fail_closed", string(got.UnknownPatternPolicy))

	invalid := map[string]any{}
	for k, v := range valid {
		invalid[k] = v
	}
	invalid["night_start"] = "10pm"
	invalid["timezone"] = "Mars/Olympus"
	invalid["unknown_pattern_policy"] = "ignore"

	rec, env = do(t, h, http.MethodPut, "/api/v1/attendance/compliance-config", invalid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Details, "night_start")
	assert.Contains(t, env.Error.Details, "timezone")
	assert.Contains(t, env.Error.Details, "unknown_pattern_policy")

	rec, _ = do(t, h, http.MethodPost, "/api/v1/attendance/compliance-config/defaults", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestPermissions(t *testing.T) {
	stub := &stubPunches{
		punch: func(employeeID string, ev punch.Event, geo *punch.Geo) (*service.PunchResult, error) {
			return &service.PunchResult{State: punch.ClockedIn}, nil
		},
		correct: func(recordID string, in service.CorrectionInput) (*punch.Record, error) {
			t.Fatal("correction must not reach the service")
			return nil, nil
		},
	}
	h := newRouter(t, stub, nil, nil)
	caregiver := map[string]string{
		actor.HeaderUserID:      "user-1",
		actor.HeaderPermissions: "attendance.punch,attendance.read",
	}

	rec, _ := doAs(t, h, caregiver, http.MethodPost, "/api/v1/attendance/employees/emp-1/punches", map[string]any{"event": "clock_in"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := doAs(t, h, caregiver, http.MethodPut, "/api/v1/attendance/punches/rec-1", map[string]any{"reason": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "attendance.correct", env.Error.Details["required"])

	rec, _ = doAs(t, h, caregiver, http.MethodPut, "/api/v1/attendance/compliance-config", map[string]any{})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
