package events

import (
	"context"
	"time"

	"github.com/carelog/carelog-backend/internal/attendance/payroll"
	"github.com/carelog/carelog-backend/internal/attendance/punch"
	"github.com/carelog/carelog-backend/pkg/logger"
	"github.com/carelog/carelog-backend/pkg/messaging"
)

const workDateLayout = "2006-01-02"

// AttendanceEventPublisher publishes punch and timesheet events. Publishing
// never fails the request; errors are logged at warn and dropped.
type AttendanceEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewAttendanceEventPublisher declares the attendance exchange and returns a
// publisher bound to it.
func NewAttendanceEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*AttendanceEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeAttendanceEvents, "attendance-service", log)
	if err != nil {
		return nil, err
	}
	return New(publisher, log), nil
}

// New wraps any EventPublisher
func New(publisher messaging.EventPublisher, log *logger.Logger) *AttendanceEventPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &AttendanceEventPublisher{
		publisher: publisher,
		logger:    log.WithComponent("attendance-events"),
	}
}

// PublishPunchRecorded publishes a punch recorded event
func (p *AttendanceEventPublisher) PublishPunchRecorded(ctx context.Context, rec punch.Record, ev punch.Event, at time.Time, outcome punch.Outcome) {
	data := messaging.PunchRecordedEvent{
		RecordID:      rec.ID,
		EmployeeID:    rec.EmployeeID,
		WorkDate:      rec.WorkDate.Format(workDateLayout),
		Event:         string(ev),
		From:          string(outcome.From),
		To:            string(outcome.To),
		At:            at.UTC(),
		BreakInferred: outcome.BreakInferred,
		Warnings:      outcome.Warnings,
	}

	if err := p.publisher.Publish(ctx, messaging.EventPunchRecorded, data); err != nil {
		p.logger.Warn().Err(err).Str("employee_id", rec.EmployeeID).Msg("failed to publish punch recorded event")
	}
}

// PublishPunchCorrected publishes a punch corrected event
func (p *AttendanceEventPublisher) PublishPunchCorrected(ctx context.Context, rec punch.Record, action, reason, correctedBy string) {
	data := messaging.PunchCorrectedEvent{
		RecordID:    rec.ID,
		EmployeeID:  rec.EmployeeID,
		WorkDate:    rec.WorkDate.Format(workDateLayout),
		Action:      action,
		Reason:      reason,
		CorrectedBy: correctedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventPunchCorrected, data); err != nil {
		p.logger.Warn().Err(err).Str("employee_id", rec.EmployeeID).Msg("failed to publish punch corrected event")
	}
}

// PublishTimesheetComputed publishes the month totals and the dates of every falta
func (p *AttendanceEventPublisher) PublishTimesheetComputed(ctx context.Context, res *payroll.MonthResult) {
	data := messaging.TimesheetComputedEvent{
		EmployeeID:      res.EmployeeID,
		Year:            res.Year,
		Month:           res.Month,
		WorkedMinutes:   res.Totals.WorkedMinutes,
		DiasTrabalhados: res.Totals.DiasTrabalhados,
		TotalFaltas:     res.Totals.TotalFaltas,
		Faltas:          res.Faltas(),
	}
	if data.Faltas == nil {
		data.Faltas = []string{}
	}

	if err := p.publisher.Publish(ctx, messaging.EventTimesheetComputed, data); err != nil {
		p.logger.Warn().Err(err).Str("employee_id", res.EmployeeID).Msg("failed to publish timesheet computed event")
	}
}
