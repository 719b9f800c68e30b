package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/carelog/carelog-backend/internal/attendance/export"
	"github.com/carelog/carelog-backend/internal/attendance/service"
	"github.com/carelog/carelog-backend/pkg/errors"
	"github.com/carelog/carelog-backend/pkg/httputil"
	"github.com/carelog/carelog-backend/pkg/logger"
	"github.com/carelog/carelog-backend/pkg/tenant"
	"github.com/go-chi/chi/v5"
)

// PayrollService is what the timesheet endpoints need from the service layer
type PayrollService interface {
	MonthlyTimesheet(ctx context.Context, employeeID string, year, month int) (*service.Timesheet, error)
	FacilityTimesheets(ctx context.Context, year, month int) (*service.FacilityTimesheets, error)
}

// TimesheetHandler serves computed months as JSON and as spreadsheets
type TimesheetHandler struct {
	service PayrollService
	logger  *logger.Logger
}

// NewTimesheetHandler creates a new timesheet handler
func NewTimesheetHandler(svc PayrollService, log *logger.Logger) *TimesheetHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &TimesheetHandler{
		service: svc,
		logger:  log,
	}
}

// Employee returns one employee's month
// GET /api/v1/attendance/employees/{id}/timesheets/{year}/{month}
func (h *TimesheetHandler) Employee(w http.ResponseWriter, r *http.Request) {
	ts, ok := h.employeeMonth(w, r)
	if !ok {
		return
	}
	httputil.JSON(w, http.StatusOK, ts)
}

// EmployeeExport returns one employee's month as xlsx
// GET /api/v1/attendance/employees/{id}/timesheets/{year}/{month}/export.xlsx
func (h *TimesheetHandler) EmployeeExport(w http.ResponseWriter, r *http.Request) {
	ts, ok := h.employeeMonth(w, r)
	if !ok {
		return
	}

	wb := export.NewTimesheetWorkbook()
	defer wb.Close()
	if err := wb.AddMonth(export.Month{EmployeeName: ts.EmployeeName, Result: ts.MonthResult}); err != nil {
		h.logger.Error().Err(err).Str("employee_id", ts.EmployeeID).Msg("failed to render timesheet")
		httputil.ErrorLocalized(w, r, errors.Internal("failed to render timesheet"))
		return
	}

	filename := fmt.Sprintf("timesheet-%s-%04d-%02d.xlsx", ts.EmployeeID, ts.Year, ts.Month)
	h.attach(w, filename, wb)
}

// Facility returns the month of every punching employee
// GET /api/v1/attendance/timesheets/{year}/{month}
func (h *TimesheetHandler) Facility(w http.ResponseWriter, r *http.Request) {
	out, ok := h.facilityMonth(w, r)
	if !ok {
		return
	}
	httputil.JSON(w, http.StatusOK, out)
}

// FacilityExport returns the facility month as xlsx: a summary sheet plus a
// sheet per employee. Failed employees are left out of the workbook.
// GET /api/v1/attendance/timesheets/{year}/{month}/export.xlsx
func (h *TimesheetHandler) FacilityExport(w http.ResponseWriter, r *http.Request) {
	out, ok := h.facilityMonth(w, r)
	if !ok {
		return
	}

	months := make([]export.Month, len(out.Timesheets))
	for i, ts := range out.Timesheets {
		months[i] = export.Month{EmployeeName: ts.EmployeeName, Result: ts.MonthResult}
	}

	wb := export.NewTimesheetWorkbook()
	defer wb.Close()
	if err := renderFacility(wb, months); err != nil {
		h.logger.Error().Err(err).Msg("failed to render facility timesheets")
		httputil.ErrorLocalized(w, r, errors.Internal("failed to render timesheets"))
		return
	}

	if len(out.Failures) > 0 {
		h.logger.Warn().Int("failures", len(out.Failures)).Msg("facility export left out employees that failed")
	}

	filename := fmt.Sprintf("timesheets-%04d-%02d.xlsx", out.Year, out.Month)
	if slug := tenant.TenantSlug(r.Context()); slug != "" {
		filename = fmt.Sprintf("timesheets-%s-%04d-%02d.xlsx", slug, out.Year, out.Month)
	}
	h.attach(w, filename, wb)
}

func renderFacility(wb *export.TimesheetWorkbook, months []export.Month) error {
	if err := wb.AddSummary(months); err != nil {
		return err
	}
	for _, m := range months {
		if err := wb.AddMonth(m); err != nil {
			return err
		}
	}
	return nil
}

func (h *TimesheetHandler) employeeMonth(w http.ResponseWriter, r *http.Request) (*service.Timesheet, bool) {
	employeeID := chi.URLParam(r, "id")
	year, month, err := parseYearMonth(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return nil, false
	}

	ts, err := h.service.MonthlyTimesheet(r.Context(), employeeID, year, month)
	if err != nil {
		h.logger.Error().Err(err).Str("employee_id", employeeID).Int("year", year).Int("month", month).Msg("failed to compute timesheet")
		httputil.ErrorLocalized(w, r, err)
		return nil, false
	}
	return ts, true
}

func (h *TimesheetHandler) facilityMonth(w http.ResponseWriter, r *http.Request) (*service.FacilityTimesheets, bool) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return nil, false
	}

	out, err := h.service.FacilityTimesheets(r.Context(), year, month)
	if err != nil {
		h.logger.Error().Err(err).Int("year", year).Int("month", month).Msg("failed to compute facility timesheets")
		httputil.ErrorLocalized(w, r, err)
		return nil, false
	}
	return out, true
}

func (h *TimesheetHandler) attach(w http.ResponseWriter, filename string, wb *export.TimesheetWorkbook) {
	err := httputil.Attachment(w, filename, export.ContentType, func(out io.Writer) error {
		_, err := wb.WriteTo(out)
		return err
	})
	if err != nil {
		// headers are already sent
		h.logger.Error().Err(err).Str("filename", filename).Msg("failed to stream workbook")
	}
}

func parseYearMonth(r *http.Request) (int, int, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return 0, 0, errors.Validation(map[string]string{"year": "must be a number"})
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return 0, 0, errors.Validation(map[string]string{"month": "must be a number"})
	}
	return year, month, nil
}
