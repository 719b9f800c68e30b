package service

import (
	"context"
	"strings"
	"time"

	"github.com/carelog/carelog-backend/internal/attendance/compliance"
	"github.com/carelog/carelog-backend/internal/attendance/punch"
	"github.com/carelog/carelog-backend/internal/attendance/repository"
	"github.com/carelog/carelog-backend/pkg/actor"
	"github.com/carelog/carelog-backend/pkg/errors"
	"github.com/carelog/carelog-backend/pkg/logger"
	"github.com/carelog/carelog-backend/pkg/tenant"
)

const dateLayout = "2006-01-02"

// PunchResult is what a punch or a status query reports back
type PunchResult struct {
	Record   punch.Record  `json:"record"`
	State    punch.State   `json:"state"`
	Allowed  []punch.Event `json:"allowed_events"`
	Warnings []string      `json:"warnings,omitempty"`
}

// CorrectionInput is an administrative rewrite of a record's timestamps.
// Version, when set, must match the stored record.
type CorrectionInput struct {
	Fields  punch.Fields
	Version int
	Reason  string
}

// PunchService records punches and administrative corrections
type PunchService struct {
	employees  EmployeeStore
	punches    PunchStore
	compliance ComplianceStore
	events     EventPublisher
	clock      Clock
	logger     *logger.Logger
}

// NewPunchService creates a new punch service
func NewPunchService(
	employees EmployeeStore,
	punches PunchStore,
	complianceStore ComplianceStore,
	events EventPublisher,
	clock Clock,
	log *logger.Logger,
) *PunchService {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PunchService{
		employees:  employees,
		punches:    punches,
		compliance: complianceStore,
		events:     events,
		clock:      clock,
		logger:     log.WithComponent("punch-service"),
	}
}

// Punch applies ev for the employee at the current instant. The instant is
// read in the facility's time zone, which decides the work date.
func (s *PunchService) Punch(ctx context.Context, employeeID string, ev punch.Event, geo *punch.Geo) (*PunchResult, error) {
	emp, err := s.employees.GetByID(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if !emp.RegistraPonto {
		appErr := errors.BadRequest("employee does not record punches")
		appErr.MessageKey = "errors.punch_not_required"
		return nil, appErr
	}

	cfg, err := activeConfig(ctx, s.compliance)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().In(cfg.Location())
	target, err := s.target(ctx, employeeID, ev, civilDate(now))
	if err != nil {
		return nil, err
	}
	if err := checkContract(emp, target.WorkDate); err != nil {
		return nil, err
	}

	next, outcome, err := punch.Apply(target, ev, now, punch.Options{
		MinBreakMinutes:       cfg.MinBreakMinutes(),
		BreakThresholdMinutes: cfg.BreakThresholdMinutes(),
		Geo:                   geo,
	})
	if err != nil {
		return nil, mapError(err)
	}

	if next.ID == "" {
		err = s.punches.Create(ctx, &next)
	} else {
		err = s.punches.Update(ctx, &next)
	}
	if err != nil {
		return nil, err
	}

	log := s.scoped(ctx, employeeID)
	log.Info().
		Str("event", string(ev)).
		Str("date", next.WorkDate.Format(dateLayout)).
		Str("from", string(outcome.From)).
		Str("to", string(outcome.To)).
		Bool("break_inferred", outcome.BreakInferred).
		Msg("punch recorded")
	for _, w := range outcome.Warnings {
		log.Warn().
			Str("warning", w).
			Str("date", next.WorkDate.Format(dateLayout)).
			Msg("punch recorded with warning")
	}

	s.events.PublishPunchRecorded(ctx, next, ev, now, outcome)

	return &PunchResult{
		Record:   next,
		State:    next.State,
		Allowed:  punch.AllowedEvents(next.State),
		Warnings: outcome.Warnings,
	}, nil
}

// Status reports the record the employee's next punch would act on and the
// events it accepts.
func (s *PunchService) Status(ctx context.Context, employeeID string) (*PunchResult, error) {
	if _, err := s.employees.GetByID(ctx, employeeID); err != nil {
		return nil, err
	}

	cfg, err := activeConfig(ctx, s.compliance)
	if err != nil {
		return nil, err
	}

	today := civilDate(s.clock.Now().In(cfg.Location()))
	target, err := s.target(ctx, employeeID, punch.EventClockOut, today)
	if err != nil {
		return nil, err
	}

	allowed := punch.AllowedEvents(target.State)
	if !target.WorkDate.Equal(today) {
		// an overnight record is still open; clocking in opens today's instead
		allowed = append([]punch.Event{punch.EventClockIn}, allowed...)
	}

	return &PunchResult{
		Record:   target,
		State:    target.State,
		Allowed:  allowed,
		Warnings: target.Warnings(),
	}, nil
}

// target loads today's record and, when ev may close an overnight shift,
// yesterday's.
func (s *PunchService) target(ctx context.Context, employeeID string, ev punch.Event, today time.Time) (punch.Record, error) {
	todayRec, err := s.punches.GetByEmployeeAndDate(ctx, employeeID, today)
	if err != nil {
		return punch.Record{}, err
	}

	var yesterdayRec *punch.Record
	if ev != punch.EventClockIn && (todayRec == nil || todayRec.State == punch.NotStarted) {
		yesterdayRec, err = s.punches.GetByEmployeeAndDate(ctx, employeeID, today.AddDate(0, 0, -1))
		if err != nil {
			return punch.Record{}, err
		}
	}

	return punch.ResolveTarget(ev, employeeID, today, todayRec, yesterdayRec), nil
}

// Correct rewrites the timestamps of a record and audits the change
func (s *PunchService) Correct(ctx context.Context, recordID string, in CorrectionInput) (*punch.Record, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, errors.Validation(map[string]string{"reason": "a correction needs a reason"})
	}

	rec, err := s.punches.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if in.Version != 0 && in.Version != rec.Version {
		return nil, errors.Conflict("punch record was changed by another request")
	}

	cfg, err := activeConfig(ctx, s.compliance)
	if err != nil {
		return nil, err
	}

	corrected, err := punch.FromFields(*rec, in.Fields)
	if err != nil {
		return nil, mapError(err)
	}
	if err := checkWorkDate(corrected, cfg); err != nil {
		return nil, err
	}

	c := &repository.Correction{Reason: reason, CorrectedBy: actor.IDFromContext(ctx)}
	if err := s.punches.Correct(ctx, *rec, &corrected, c); err != nil {
		return nil, err
	}

	s.scoped(ctx, rec.EmployeeID).Info().
		Str("record_id", rec.ID).
		Str("date", rec.WorkDate.Format(dateLayout)).
		Str("from", string(rec.State)).
		Str("to", string(corrected.State)).
		Str("corrected_by", c.CorrectedBy).
		Msg("punch record corrected")

	s.events.PublishPunchCorrected(ctx, corrected, repository.CorrectionUpdate, reason, c.CorrectedBy)
	return &corrected, nil
}

// DeleteRecord removes a record and audits the deletion
func (s *PunchService) DeleteRecord(ctx context.Context, recordID string, version int, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return errors.Validation(map[string]string{"reason": "a deletion needs a reason"})
	}

	rec, err := s.punches.GetByID(ctx, recordID)
	if err != nil {
		return err
	}
	if version != 0 && version != rec.Version {
		return errors.Conflict("punch record was changed by another request")
	}

	c := &repository.Correction{Reason: reason, CorrectedBy: actor.IDFromContext(ctx)}
	if err := s.punches.Delete(ctx, *rec, c); err != nil {
		return err
	}

	s.scoped(ctx, rec.EmployeeID).Info().
		Str("record_id", rec.ID).
		Str("date", rec.WorkDate.Format(dateLayout)).
		Str("corrected_by", c.CorrectedBy).
		Msg("punch record deleted")

	s.events.PublishPunchCorrected(ctx, *rec, repository.CorrectionDelete, reason, c.CorrectedBy)
	return nil
}

// ListCorrections lists the audit trail of an employee for work dates in [from, to)
func (s *PunchService) ListCorrections(ctx context.Context, employeeID string, from, to time.Time) ([]repository.Correction, error) {
	if !from.Before(to) {
		return nil, errors.InvalidDateRange("from must be before to")
	}
	if _, err := s.employees.GetByID(ctx, employeeID); err != nil {
		return nil, err
	}
	corrections, err := s.punches.ListCorrections(ctx, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	if corrections == nil {
		corrections = []repository.Correction{}
	}
	return corrections, nil
}

func (s *PunchService) scoped(ctx context.Context, employeeID string) *logger.Logger {
	log := s.logger.WithEmployee(employeeID)
	if tenantID, err := tenant.TenantID(ctx); err == nil {
		log = log.WithTenant(tenantID)
	}
	return log
}

// checkContract rejects punches dated before the contract or after deactivation
func checkContract(emp *repository.Employee, workDate time.Time) error {
	if workDate.Before(civilDate(emp.ContractStart)) {
		return errors.InvalidDateRange("work date " + workDate.Format(dateLayout) + " is before the contract start")
	}
	if emp.DeactivatedAt != nil && workDate.After(civilDate(*emp.DeactivatedAt)) {
		return errors.InvalidDateRange("work date " + workDate.Format(dateLayout) + " is after deactivation")
	}
	return nil
}

// checkWorkDate keeps a corrected clock-in on the record's work date
func checkWorkDate(rec punch.Record, cfg *compliance.Config) error {
	if rec.ClockIn == nil {
		return nil
	}
	if !civilDate(rec.ClockIn.In(cfg.Location())).Equal(civilDate(rec.WorkDate)) {
		return errors.InvalidDateRange("clock-in must fall on the record's work date " + rec.WorkDate.Format(dateLayout))
	}
	return nil
}
