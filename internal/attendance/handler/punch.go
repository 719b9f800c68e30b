package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/carelog/carelog-backend/internal/attendance/punch"
	"github.com/carelog/carelog-backend/internal/attendance/repository"
	"github.com/carelog/carelog-backend/internal/attendance/service"
	"github.com/carelog/carelog-backend/pkg/errors"
	"github.com/carelog/carelog-backend/pkg/httputil"
	"github.com/carelog/carelog-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

const dateLayout = "2006-01-02"

// PunchService is what the punch endpoints need from the service layer
type PunchService interface {
	Punch(ctx context.Context, employeeID string, ev punch.Event, geo *punch.Geo) (*service.PunchResult, error)
	Status(ctx context.Context, employeeID string) (*service.PunchResult, error)
	Correct(ctx context.Context, recordID string, in service.CorrectionInput) (*punch.Record, error)
	DeleteRecord(ctx context.Context, recordID string, version int, reason string) error
	ListCorrections(ctx context.Context, employeeID string, from, to time.Time) ([]repository.Correction, error)
}

// PunchHandler handles punch clock endpoints
type PunchHandler struct {
	service PunchService
	logger  *logger.Logger
}

// NewPunchHandler creates a new punch handler
func NewPunchHandler(svc PunchService, log *logger.Logger) *PunchHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &PunchHandler{
		service: svc,
		logger:  log,
	}
}

// PunchRequest is the body of a punch. Coordinates are optional; a pair
// outside the valid range is dropped with a warning, not rejected.
type PunchRequest struct {
	Event     string   `json:"event" validate:"required,oneof=clock_in break_start break_end clock_out"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Punch records a punch for an employee at the current instant
// POST /api/v1/attendance/employees/{id}/punches
func (h *PunchHandler) Punch(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")

	var req PunchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	ev, err := punch.ParseEvent(req.Event)
	if err != nil {
		httputil.ErrorLocalized(w, r, errors.BadRequest(err.Error()))
		return
	}

	var geo *punch.Geo
	if req.Latitude != nil && req.Longitude != nil {
		geo = &punch.Geo{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	result, err := h.service.Punch(r.Context(), employeeID, ev, geo)
	if err != nil {
		h.logFailure(err, employeeID, "failed to record punch")
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSONWithWarnings(w, http.StatusOK, result, result.Warnings)
}

// Status returns the employee's current punch state and the allowed events
// GET /api/v1/attendance/employees/{id}/punch-status
func (h *PunchHandler) Status(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")

	result, err := h.service.Status(r.Context(), employeeID)
	if err != nil {
		h.logFailure(err, employeeID, "failed to read punch status")
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// CorrectionRequest replaces all four timestamps of a record. Omitted
// timestamps are cleared.
type CorrectionRequest struct {
	ClockIn    *time.Time `json:"clock_in"`
	BreakStart *time.Time `json:"break_start"`
	BreakEnd   *time.Time `json:"break_end"`
	ClockOut   *time.Time `json:"clock_out"`
	Version    int        `json:"version" validate:"gte=0"`
	Reason     string     `json:"reason" validate:"required,max=500"`
}

// Correct rewrites a punch record
// PUT /api/v1/attendance/punches/{id}
func (h *PunchHandler) Correct(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "id")

	var req CorrectionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	rec, err := h.service.Correct(r.Context(), recordID, service.CorrectionInput{
		Fields: punch.Fields{
			ClockIn:    req.ClockIn,
			BreakStart: req.BreakStart,
			BreakEnd:   req.BreakEnd,
			ClockOut:   req.ClockOut,
		},
		Version: req.Version,
		Reason:  req.Reason,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("record_id", recordID).Msg("failed to correct punch record")
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSONWithWarnings(w, http.StatusOK, rec, rec.Warnings())
}

// DeleteRequest is the body of a record deletion
type DeleteRequest struct {
	Version int    `json:"version" validate:"gte=0"`
	Reason  string `json:"reason" validate:"required,max=500"`
}

// Delete removes a punch record
// DELETE /api/v1/attendance/punches/{id}
func (h *PunchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "id")

	var req DeleteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	if err := h.service.DeleteRecord(r.Context(), recordID, req.Version, req.Reason); err != nil {
		h.logger.Error().Err(err).Str("record_id", recordID).Msg("failed to delete punch record")
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.NoContent(w)
}

// ListCorrections returns the audit trail for work dates in [from, to)
// GET /api/v1/attendance/employees/{id}/corrections?from=2024-03-01&to=2024-04-01
func (h *PunchHandler) ListCorrections(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")

	from, err := parseDateParam(r, "from")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	corrections, err := h.service.ListCorrections(r.Context(), employeeID, from, to)
	if err != nil {
		h.logFailure(err, employeeID, "failed to list corrections")
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, corrections)
}

// logFailure logs server faults at error and client mistakes at debug
func (h *PunchHandler) logFailure(err error, employeeID, msg string) {
	var appErr *errors.AppError
	if errors.As(err, &appErr) && appErr.StatusCode < http.StatusInternalServerError {
		h.logger.Debug().Err(err).Str("employee_id", employeeID).Msg(msg)
		return
	}
	h.logger.Error().Err(err).Str("employee_id", employeeID).Msg(msg)
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, errors.Validation(map[string]string{name: "this field is required"})
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, errors.Validation(map[string]string{name: "must be a date YYYY-MM-DD"})
	}
	return d, nil
}
