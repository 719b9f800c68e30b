package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/carelog/carelog-backend/internal/attendance/compliance"
	"github.com/carelog/carelog-backend/internal/attendance/shiftpattern"
	"github.com/carelog/carelog-backend/pkg/database"
	"github.com/carelog/carelog-backend/pkg/errors"
	"github.com/carelog/carelog-backend/pkg/tenant"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ComplianceRecord is the stored compliance configuration of a tenant.
// Each tenant schema holds at most one row.
type ComplianceRecord struct {
	ID                     string          `db:"id" json:"id"`
	NightStart             string          `db:"night_start" json:"night_start"`
	NightEnd               string          `db:"night_end" json:"night_end"`
	Overtime50LimitMinutes int             `db:"overtime50_limit_minutes" json:"overtime50_limit_minutes"`
	Overtime50Premium      decimal.Decimal `db:"overtime50_premium" json:"overtime50_premium"`
	Overtime100Premium     decimal.Decimal `db:"overtime100_premium" json:"overtime100_premium"`
	NightPremium           decimal.Decimal `db:"night_premium" json:"night_premium"`
	MinBreakMinutes        int             `db:"min_break_minutes" json:"min_break_minutes"`
	BreakThresholdMinutes  int             `db:"break_threshold_minutes" json:"break_threshold_minutes"`
	Timezone               string          `db:"timezone" json:"timezone"`
	UnknownPatternPolicy   string          `db:"unknown_pattern_policy" json:"unknown_pattern_policy"`
	UpdatedBy              *string         `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt              time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time       `db:"updated_at" json:"updated_at"`
}

// Params returns the row as compliance parameters
func (c *ComplianceRecord) Params() compliance.Params {
	return compliance.Params{
		NightStart:             c.NightStart,
		NightEnd:               c.NightEnd,
		Overtime50LimitMinutes: c.Overtime50LimitMinutes,
		Overtime50Premium:      c.Overtime50Premium,
		Overtime100Premium:     c.Overtime100Premium,
		NightPremium:           c.NightPremium,
		MinBreakMinutes:        c.MinBreakMinutes,
		BreakThresholdMinutes:  c.BreakThresholdMinutes,
		Timezone:               c.Timezone,
		UnknownPatternPolicy:   shiftpattern.UnknownPatternPolicy(c.UnknownPatternPolicy),
	}
}

// ComplianceRepository stores the compliance configuration
type ComplianceRepository struct {
	db *database.DB
}

// NewComplianceRepository creates a new compliance repository
func NewComplianceRepository(db *database.DB) *ComplianceRepository {
	return &ComplianceRepository{db: db}
}

// Get returns the tenant's configuration. A tenant without one gets
// MissingComplianceConfig, never a default.
// TENANT-ISOLATED: Queries only the tenant's schema
func (r *ComplianceRepository) Get(ctx context.Context) (*ComplianceRecord, error) {
	tenantSchema, err := tenant.TenantSchema(ctx)
	if err != nil {
		return nil, err
	}

	var rec ComplianceRecord

	err = r.db.WithTenantSchema(ctx, tenantSchema, func(ctx context.Context) error {
		query := `
			SELECT id,
			       to_char(night_start, 'HH24:MI') AS night_start,
			       to_char(night_end, 'HH24:MI') AS night_end,
			       overtime50_limit_minutes, overtime50_premium, overtime100_premium, night_premium,
			       min_break_minutes, break_threshold_minutes, timezone, unknown_pattern_policy,
			       updated_by, created_at, updated_at
			FROM compliance_configs
			LIMIT 1
		`
		return r.db.GetContext(ctx, &rec, query)
	})

	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.MissingComplianceConfig()
	}
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// Upsert replaces the tenant's configuration, creating it when absent.
// TENANT-ISOLATED: Writes only in the tenant's schema
func (r *ComplianceRepository) Upsert(ctx context.Context, p compliance.Params, updatedBy string) (*ComplianceRecord, error) {
	tenantSchema, err := tenant.TenantSchema(ctx)
	if err != nil {
		return nil, err
	}

	rec := ComplianceRecord{
		ID:                     uuid.New().String(),
		NightStart:             p.NightStart,
		NightEnd:               p.NightEnd,
		Overtime50LimitMinutes: p.Overtime50LimitMinutes,
		Overtime50Premium:      p.Overtime50Premium,
		Overtime100Premium:     p.Overtime100Premium,
		NightPremium:           p.NightPremium,
		MinBreakMinutes:        p.MinBreakMinutes,
		BreakThresholdMinutes:  p.BreakThresholdMinutes,
		Timezone:               p.Timezone,
		UnknownPatternPolicy:   string(p.UnknownPatternPolicy),
		UpdatedBy:              &updatedBy,
	}

	err = r.db.WithTenantSchema(ctx, tenantSchema, func(ctx context.Context) error {
		query := `
			INSERT INTO compliance_configs (
				id, night_start, night_end, overtime50_limit_minutes, overtime50_premium,
				overtime100_premium, night_premium, min_break_minutes, break_threshold_minutes,
				timezone, unknown_pattern_policy, updated_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (singleton) DO UPDATE SET
				night_start = EXCLUDED.night_start,
				night_end = EXCLUDED.night_end,
				overtime50_limit_minutes = EXCLUDED.overtime50_limit_minutes,
				overtime50_premium = EXCLUDED.overtime50_premium,
				overtime100_premium = EXCLUDED.overtime100_premium,
				night_premium = EXCLUDED.night_premium,
				min_break_minutes = EXCLUDED.min_break_minutes,
				break_threshold_minutes = EXCLUDED.break_threshold_minutes,
				timezone = EXCLUDED.timezone,
				unknown_pattern_policy = EXCLUDED.unknown_pattern_policy,
				updated_by = EXCLUDED.updated_by,
				updated_at = NOW()
			RETURNING id, created_at, updated_at
		`
		return r.db.QueryRowxContext(ctx, query,
			rec.ID, rec.NightStart, rec.NightEnd, rec.Overtime50LimitMinutes, rec.Overtime50Premium,
			rec.Overtime100Premium, rec.NightPremium, rec.MinBreakMinutes, rec.BreakThresholdMinutes,
			rec.Timezone, rec.UnknownPatternPolicy, rec.UpdatedBy,
		).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	})

	if appErr := database.MapPQError(err); appErr != nil {
		return nil, appErr
	}
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// Exists reports whether the tenant has a configuration.
// TENANT-ISOLATED: Queries only the tenant's schema
func (r *ComplianceRepository) Exists(ctx context.Context) (bool, error) {
	tenantSchema, err := tenant.TenantSchema(ctx)
	if err != nil {
		return false, err
	}

	var exists bool
	err = r.db.WithTenantSchema(ctx, tenantSchema, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM compliance_configs)`)
	})
	return exists, err
}
