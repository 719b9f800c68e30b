package service

import (
	"context"
	"fmt"
	"time"

	"github.com/carelog/carelog-backend/internal/attendance/clocktime"
	"github.com/carelog/carelog-backend/internal/attendance/compliance"
	"github.com/carelog/carelog-backend/internal/attendance/payroll"
	"github.com/carelog/carelog-backend/internal/attendance/repository"
	"github.com/carelog/carelog-backend/pkg/errors"
	"github.com/carelog/carelog-backend/pkg/logger"
	"github.com/carelog/carelog-backend/pkg/tenant"
)

// Timesheet is a computed month for one employee, with its money value when
// the employee has an hourly rate.
type Timesheet struct {
	EmployeeName string `json:"employeeName"`
	*payroll.MonthResult
	Valuation *payroll.Valuation `json:"valuation,omitempty"`
}

// TimesheetFailure records an employee whose month could not be computed
type TimesheetFailure struct {
	EmployeeID   string `json:"employeeId"`
	EmployeeName string `json:"employeeName"`
	Code         string `json:"code"`
	Message      string `json:"message"`
}

// FacilityTimesheets is the month of every punching employee. One broken
// month does not hide the others.
type FacilityTimesheets struct {
	Year       int                `json:"year"`
	Month      int                `json:"month"`
	Timesheets []Timesheet        `json:"timesheets"`
	Failures   []TimesheetFailure `json:"failures"`
}

// PayrollService computes monthly timesheets
type PayrollService struct {
	employees  EmployeeStore
	punches    PunchStore
	absences   AbsenceStore
	compliance ComplianceStore
	events     EventPublisher
	logger     *logger.Logger
}

// NewPayrollService creates a new payroll service
func NewPayrollService(
	employees EmployeeStore,
	punches PunchStore,
	absences AbsenceStore,
	complianceStore ComplianceStore,
	events EventPublisher,
	log *logger.Logger,
) *PayrollService {
	if log == nil {
		log = logger.Nop()
	}
	return &PayrollService{
		employees:  employees,
		punches:    punches,
		absences:   absences,
		compliance: complianceStore,
		events:     events,
		logger:     log.WithComponent("payroll-service"),
	}
}

// MonthlyTimesheet computes one employee's month
func (s *PayrollService) MonthlyTimesheet(ctx context.Context, employeeID string, year, month int) (*Timesheet, error) {
	from, to, err := monthRange(year, month)
	if err != nil {
		return nil, err
	}

	emp, err := s.employees.GetByID(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	cfg, err := activeConfig(ctx, s.compliance)
	if err != nil {
		return nil, err
	}

	return s.compute(ctx, emp, cfg, from, to)
}

// FacilityTimesheets computes the month of every employee who records
// punches and was under contract during it.
func (s *PayrollService) FacilityTimesheets(ctx context.Context, year, month int) (*FacilityTimesheets, error) {
	from, to, err := monthRange(year, month)
	if err != nil {
		return nil, err
	}

	cfg, err := activeConfig(ctx, s.compliance)
	if err != nil {
		return nil, err
	}

	employees, err := s.employees.ListPunching(ctx, from, to)
	if err != nil {
		return nil, err
	}

	out := &FacilityTimesheets{
		Year:       year,
		Month:      month,
		Timesheets: make([]Timesheet, 0, len(employees)),
		Failures:   []TimesheetFailure{},
	}
	for i := range employees {
		emp := &employees[i]
		ts, err := s.compute(ctx, emp, cfg, from, to)
		if err != nil {
			var appErr *errors.AppError
			if !errors.As(err, &appErr) {
				return nil, err
			}
			out.Failures = append(out.Failures, TimesheetFailure{
				EmployeeID:   emp.ID,
				EmployeeName: emp.FullName(),
				Code:         appErr.Code,
				Message:      appErr.Message,
			})
			continue
		}
		out.Timesheets = append(out.Timesheets, *ts)
	}
	return out, nil
}

func (s *PayrollService) compute(ctx context.Context, emp *repository.Employee, cfg *compliance.Config, from, to time.Time) (*Timesheet, error) {
	pe, err := toPayrollEmployee(emp)
	if err != nil {
		return nil, err
	}

	records, err := s.punches.ListByEmployee(ctx, emp.ID, from, to)
	if err != nil {
		return nil, err
	}

	rows, err := s.absences.ListOverlapping(ctx, emp.ID, from, to)
	if err != nil {
		return nil, err
	}
	absences := make([]payroll.Absence, len(rows))
	for i, a := range rows {
		absences[i] = a.ToPayroll()
	}

	res, err := payroll.Aggregate(payroll.Input{
		Employee: pe,
		Year:     from.Year(),
		Month:    from.Month(),
		Punches:  records,
		Absences: absences,
		Config:   cfg,
	})
	if err != nil {
		return nil, mapError(err)
	}

	ts := &Timesheet{EmployeeName: emp.FullName(), MonthResult: res}
	if emp.HourlyRate.Valid {
		v := payroll.Valuate(res.Totals, emp.HourlyRate.Decimal, cfg)
		ts.Valuation = &v
	}

	log := s.logger.WithEmployee(emp.ID)
	if tenantID, err := tenant.TenantID(ctx); err == nil {
		log = log.WithTenant(tenantID)
	}
	log.Info().
		Str("month", from.Format("2006-01")).
		Int("worked_minutes", res.Totals.WorkedMinutes).
		Int("ordinary_minutes", res.Totals.OrdinaryMinutes).
		Int("night_minutes", res.Totals.NightMinutes).
		Int("overtime50_minutes", res.Totals.Overtime50Minutes).
		Int("overtime100_minutes", res.Totals.Overtime100Minutes).
		Int("dias_trabalhados", res.Totals.DiasTrabalhados).
		Int("total_faltas", res.Totals.TotalFaltas).
		Msg("timesheet computed")
	if res.Totals.UnresolvedBreakDays > 0 {
		log.Warn().
			Int("unresolved_break_days", res.Totals.UnresolvedBreakDays).
			Msg("timesheet has days with an unresolved break")
	}

	s.events.PublishTimesheetComputed(ctx, res)
	return ts, nil
}

// toPayrollEmployee reads the stored shift pattern into an engine schedule
func toPayrollEmployee(emp *repository.Employee) (payroll.Employee, error) {
	if emp.PatternCode == nil || emp.ShiftStart == nil || emp.ShiftEnd == nil {
		appErr := errors.BadRequest("employee has no shift pattern")
		appErr.MessageKey = "errors.no_shift_pattern"
		return payroll.Employee{}, appErr
	}

	start, err := parseStoredClock(*emp.ShiftStart)
	if err != nil {
		return payroll.Employee{}, err
	}
	end, err := parseStoredClock(*emp.ShiftEnd)
	if err != nil {
		return payroll.Employee{}, err
	}

	sched := payroll.Schedule{Start: start, End: end}
	if emp.BreakStart != nil && emp.BreakEnd != nil {
		bs, err := parseStoredClock(*emp.BreakStart)
		if err != nil {
			return payroll.Employee{}, err
		}
		be, err := parseStoredClock(*emp.BreakEnd)
		if err != nil {
			return payroll.Employee{}, err
		}
		sched.BreakStart, sched.BreakEnd = &bs, &be
	}

	return payroll.Employee{
		ID:            emp.ID,
		ContractStart: emp.ContractStart,
		DeactivatedAt: emp.DeactivatedAt,
		PatternCode:   *emp.PatternCode,
		Schedule:      sched,
	}, nil
}

func parseStoredClock(s string) (clocktime.Clock, error) {
	c, err := clocktime.ParseClock(s)
	if err != nil {
		return 0, errors.InvalidTimeFormat(s)
	}
	return c, nil
}

// monthRange returns [first day, first day of next month) as civil dates
func monthRange(year, month int) (time.Time, time.Time, error) {
	if month < 1 || month > 12 || year < 1900 || year > 9999 {
		return time.Time{}, time.Time{}, errors.InvalidDateRange(fmt.Sprintf("invalid month %d-%02d", year, month))
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0), nil
}
