package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/carelog/carelog-backend/pkg/database"
	"github.com/carelog/carelog-backend/pkg/errors"
	"github.com/carelog/carelog-backend/pkg/tenant"
	"github.com/shopspring/decimal"
)

// Employee is an employee joined with their shift pattern. Pattern columns
// are nil when no pattern is assigned.
type Employee struct {
	ID             string              `db:"id" json:"id"`
	FirstName      string              `db:"first_name" json:"first_name"`
	LastName       string              `db:"last_name" json:"last_name"`
	RegistraPonto  bool                `db:"registra_ponto" json:"registra_ponto"`
	ContractStart  time.Time           `db:"contract_start_date" json:"contract_start_date"`
	DeactivatedAt  *time.Time          `db:"deactivated_at" json:"deactivated_at,omitempty"`
	HourlyRate     decimal.NullDecimal `db:"hourly_rate" json:"hourly_rate"`
	ShiftPatternID *string             `db:"shift_pattern_id" json:"shift_pattern_id,omitempty"`

	// Joined from shift_patterns, clock columns formatted HH:MM
	PatternCode *string `db:"jornada_trabalho" json:"jornada_trabalho,omitempty"`
	ShiftStart  *string `db:"start_time" json:"start_time,omitempty"`
	ShiftEnd    *string `db:"end_time" json:"end_time,omitempty"`
	BreakStart  *string `db:"break_start" json:"break_start,omitempty"`
	BreakEnd    *string `db:"break_end" json:"break_end,omitempty"`
}

// FullName returns first and last name
func (e *Employee) FullName() string {
	return e.FirstName + " " + e.LastName
}

// EmployeeRepository reads the employee data attendance needs
type EmployeeRepository struct {
	db *database.DB
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db *database.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

const employeeColumns = `
	e.id, e.first_name, e.last_name, e.registra_ponto, e.contract_start_date,
	e.deactivated_at, e.hourly_rate, e.shift_pattern_id,
	sp.jornada_trabalho,
	to_char(sp.start_time, 'HH24:MI') AS start_time,
	to_char(sp.end_time, 'HH24:MI') AS end_time,
	to_char(sp.break_start, 'HH24:MI') AS break_start,
	to_char(sp.break_end, 'HH24:MI') AS break_end
`

// GetByID gets an employee with their shift pattern
// TENANT-ISOLATED: Queries only the tenant's schema
func (r *EmployeeRepository) GetByID(ctx context.Context, id string) (*Employee, error) {
	tenantSchema, err := tenant.TenantSchema(ctx)
	if err != nil {
		return nil, err
	}

	var emp Employee

	err = r.db.WithTenantSchema(ctx, tenantSchema, func(ctx context.Context) error {
		query := `SELECT ` + employeeColumns + `
			FROM employees e
			LEFT JOIN shift_patterns sp ON sp.id = e.shift_pattern_id
			WHERE e.id = $1 AND e.deleted_at IS NULL
		`
		return r.db.GetContext(ctx, &emp, query, id)
	})

	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("employee")
	}
	if err != nil {
		return nil, err
	}

	return &emp, nil
}

// ListPunching lists the employees who record punches and were under
// contract at some point in [from, to).
// TENANT-ISOLATED: Queries only the tenant's schema
func (r *EmployeeRepository) ListPunching(ctx context.Context, from, to time.Time) ([]Employee, error) {
	tenantSchema, err := tenant.TenantSchema(ctx)
	if err != nil {
		return nil, err
	}

	var employees []Employee

	err = r.db.WithTenantSchema(ctx, tenantSchema, func(ctx context.Context) error {
		query := `SELECT ` + employeeColumns + `
			FROM employees e
			LEFT JOIN shift_patterns sp ON sp.id = e.shift_pattern_id
			WHERE e.deleted_at IS NULL
			  AND e.registra_ponto
			  AND e.contract_start_date < $2
			  AND (e.deactivated_at IS NULL OR e.deactivated_at >= $1)
			ORDER BY e.last_name, e.first_name
		`
		return r.db.SelectContext(ctx, &employees, query, from, to)
	})
	if err != nil {
		return nil, err
	}

	return employees, nil
}
