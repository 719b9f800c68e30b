package handler

import (
	"context"
	"net/http"

	"github.com/carelog/carelog-backend/internal/attendance/compliance"
	"github.com/carelog/carelog-backend/internal/attendance/repository"
	"github.com/carelog/carelog-backend/internal/attendance/shiftpattern"
	"github.com/carelog/carelog-backend/pkg/httputil"
	"github.com/carelog/carelog-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// ComplianceService is what the compliance endpoints need from the service layer
type ComplianceService interface {
	Get(ctx context.Context) (*repository.ComplianceRecord, error)
	Update(ctx context.Context, p compliance.Params) (*repository.ComplianceRecord, error)
	SeedDefaults(ctx context.Context) (*repository.ComplianceRecord, error)
}

// ComplianceHandler handles the facility's labor-law configuration
type ComplianceHandler struct {
	service ComplianceService
	logger  *logger.Logger
}

// NewComplianceHandler creates a new compliance handler
func NewComplianceHandler(svc ComplianceService, log *logger.Logger) *ComplianceHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ComplianceHandler{
		service: svc,
		logger:  log,
	}
}

// ComplianceConfigRequest replaces the whole configuration. Premiums are
// percentages, so 50 means +50%.
type ComplianceConfigRequest struct {
	NightStart             string          `json:"night_start" validate:"required,clock"`
	NightEnd               string          `json:"night_end" validate:"required,clock"`
	Overtime50LimitMinutes int             `json:"overtime50_limit_minutes" validate:"gte=0"`
	Overtime50Premium      decimal.Decimal `json:"overtime50_premium"`
	Overtime100Premium     decimal.Decimal `json:"overtime100_premium"`
	NightPremium           decimal.Decimal `json:"night_premium"`
	MinBreakMinutes        int             `json:"min_break_minutes" validate:"gt=0"`
	BreakThresholdMinutes  int             `json:"break_threshold_minutes" validate:"gte=0"`
	Timezone               string          `json:"timezone" validate:"required,timezone"`
	UnknownPatternPolicy   string          `json:"unknown_pattern_policy" validate:"required,oneof=fail_open fail_closed"`
}

func (req ComplianceConfigRequest) params() compliance.Params {
	return compliance.Params{
		NightStart:             req.NightStart,
		NightEnd:               req.NightEnd,
		Overtime50LimitMinutes: req.Overtime50LimitMinutes,
		Overtime50Premium:      req.Overtime50Premium,
		Overtime100Premium:     req.Overtime100Premium,
		NightPremium:           req.NightPremium,
		MinBreakMinutes:        req.MinBreakMinutes,
		BreakThresholdMinutes:  req.BreakThresholdMinutes,
		Timezone:               req.Timezone,
		UnknownPatternPolicy:   shiftpattern.UnknownPatternPolicy(req.UnknownPatternPolicy),
	}
}

// Get returns the active configuration
// GET /api/v1/attendance/compliance-config
func (h *ComplianceHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context())
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rec)
}

// Update replaces the configuration
// PUT /api/v1/attendance/compliance-config
func (h *ComplianceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req ComplianceConfigRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	rec, err := h.service.Update(r.Context(), req.params())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to update compliance config")
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rec)
}

// SeedDefaults creates the first configuration of a facility from the
// documented defaults
// POST /api/v1/attendance/compliance-config/defaults
func (h *ComplianceHandler) SeedDefaults(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.SeedDefaults(r.Context())
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, rec)
}
