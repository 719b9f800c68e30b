package service

import (
	"context"

	"github.com/carelog/carelog-backend/internal/attendance/compliance"
	"github.com/carelog/carelog-backend/internal/attendance/repository"
	"github.com/carelog/carelog-backend/pkg/actor"
	"github.com/carelog/carelog-backend/pkg/errors"
	"github.com/carelog/carelog-backend/pkg/logger"
)

// ComplianceService manages the facility's labor-law parameters
type ComplianceService struct {
	store        ComplianceStore
	seedDefaults bool
	logger       *logger.Logger
}

// NewComplianceService creates a new compliance service. seedDefaults
// enables SeedDefaults.
func NewComplianceService(store ComplianceStore, seedDefaults bool, log *logger.Logger) *ComplianceService {
	if log == nil {
		log = logger.Nop()
	}
	return &ComplianceService{
		store:        store,
		seedDefaults: seedDefaults,
		logger:       log.WithComponent("compliance-service"),
	}
}

// Get returns the stored configuration
func (s *ComplianceService) Get(ctx context.Context) (*repository.ComplianceRecord, error) {
	return s.store.Get(ctx)
}

// Update validates p and replaces the configuration
func (s *ComplianceService) Update(ctx context.Context, p compliance.Params) (*repository.ComplianceRecord, error) {
	cfg, err := compliance.New(p)
	if err != nil {
		return nil, mapError(err)
	}

	actorID := actor.IDFromContext(ctx)
	rec, err := s.store.Upsert(ctx, cfg.Params(), actorID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("actor_id", actorID).
		Str("timezone", rec.Timezone).
		Str("unknown_pattern_policy", rec.UnknownPatternPolicy).
		Msg("compliance config updated")
	return rec, nil
}

// SeedDefaults stores the documented defaults for a tenant that has no
// configuration yet. It never overwrites an existing one.
func (s *ComplianceService) SeedDefaults(ctx context.Context) (*repository.ComplianceRecord, error) {
	if !s.seedDefaults {
		return nil, errors.Forbidden("seeding default compliance configuration is disabled")
	}

	exists, err := s.store.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.Conflict("this facility already has a compliance configuration")
	}

	rec, err := s.store.Upsert(ctx, compliance.DefaultParams(), actor.IDFromContext(ctx))
	if err != nil {
		return nil, err
	}

	s.logger.Info().Msg("default compliance config seeded")
	return rec, nil
}
