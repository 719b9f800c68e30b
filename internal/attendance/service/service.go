// Package service runs the attendance use cases: punching, monthly
// timesheets and the facility compliance configuration. It loads data
// through the repositories, hands it to the pure engine packages and maps
// their errors to application errors.
package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/carelog/carelog-backend/internal/attendance/compliance"
	"github.com/carelog/carelog-backend/internal/attendance/payroll"
	"github.com/carelog/carelog-backend/internal/attendance/punch"
	"github.com/carelog/carelog-backend/internal/attendance/repository"
	"github.com/carelog/carelog-backend/internal/attendance/shiftpattern"
	"github.com/carelog/carelog-backend/pkg/errors"
)

// Clock supplies the current instant
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns time.Now
func (SystemClock) Now() time.Time { return time.Now() }

// EmployeeStore reads employees with their shift pattern
type EmployeeStore interface {
	GetByID(ctx context.Context, id string) (*repository.Employee, error)
	ListPunching(ctx context.Context, from, to time.Time) ([]repository.Employee, error)
}

// PunchStore persists punch records and their corrections
type PunchStore interface {
	GetByID(ctx context.Context, id string) (*punch.Record, error)
	GetByEmployeeAndDate(ctx context.Context, employeeID string, workDate time.Time) (*punch.Record, error)
	ListByEmployee(ctx context.Context, employeeID string, from, to time.Time) ([]punch.Record, error)
	Create(ctx context.Context, rec *punch.Record) error
	Update(ctx context.Context, rec *punch.Record) error
	Correct(ctx context.Context, original punch.Record, corrected *punch.Record, c *repository.Correction) error
	Delete(ctx context.Context, rec punch.Record, c *repository.Correction) error
	ListCorrections(ctx context.Context, employeeID string, from, to time.Time) ([]repository.Correction, error)
}

// AbsenceStore reads approved absences
type AbsenceStore interface {
	ListOverlapping(ctx context.Context, employeeID string, from, to time.Time) ([]repository.Absence, error)
}

// ComplianceStore stores the facility configuration
type ComplianceStore interface {
	Get(ctx context.Context) (*repository.ComplianceRecord, error)
	Upsert(ctx context.Context, p compliance.Params, updatedBy string) (*repository.ComplianceRecord, error)
	Exists(ctx context.Context) (bool, error)
}

// EventPublisher announces attendance changes. Implementations must not
// fail the caller.
type EventPublisher interface {
	PublishPunchRecorded(ctx context.Context, rec punch.Record, ev punch.Event, at time.Time, outcome punch.Outcome)
	PublishPunchCorrected(ctx context.Context, rec punch.Record, action, reason, correctedBy string)
	PublishTimesheetComputed(ctx context.Context, res *payroll.MonthResult)
}

// activeConfig loads and validates the tenant's configuration. A stored row
// that no longer validates is reported as missing.
func activeConfig(ctx context.Context, store ComplianceStore) (*compliance.Config, error) {
	rec, err := store.Get(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := compliance.New(rec.Params())
	if err != nil {
		appErr := errors.MissingComplianceConfig()
		appErr.Message = "stored compliance configuration is invalid: " + err.Error()
		return nil, appErr
	}
	return cfg, nil
}

// mapError turns an engine error into an AppError. AppErrors and unknown
// errors pass through.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	var te *punch.TransitionError
	if errors.As(err, &te) {
		mapped := errors.InvalidPunchTransition(string(te.State), string(te.Event), te.AllowedStrings())
		if te.Reason != "" {
			mapped.Details["reason"] = te.Reason
		}
		return mapped
	}

	var cv *compliance.ValidationError
	if errors.As(err, &cv) {
		return errors.Validation(problemDetails(cv.Problems))
	}

	switch {
	case errors.Is(err, errors.ErrInvalidTimeFormat):
		mapped := errors.New("INVALID_TIME_FORMAT", err.Error(), http.StatusBadRequest)
		mapped.Err = err
		return mapped
	case errors.Is(err, errors.ErrInvalidDateRange):
		return errors.InvalidDateRange(err.Error())
	case errors.Is(err, payroll.ErrInconsistentData):
		return errors.InconsistentData(err)
	case errors.Is(err, shiftpattern.ErrUnknownPattern):
		return errors.UnknownShiftPattern(err)
	case errors.Is(err, errors.ErrValidation):
		return errors.Validation(map[string]string{"punches": err.Error()})
	case errors.Is(err, errors.ErrBadRequest):
		return errors.BadRequest(err.Error())
	}
	return err
}

// problemDetails keys each problem by the field name it starts with
func problemDetails(problems []string) map[string]string {
	details := make(map[string]string, len(problems))
	for _, p := range problems {
		field := p
		if i := strings.IndexAny(p, ": "); i > 0 {
			field = p[:i]
		}
		details[field] = p
	}
	return details
}

// civilDate is midnight UTC of t's calendar date in t's location. Work
// dates are stored and compared in this form.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
