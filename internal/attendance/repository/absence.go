package repository

import (
	"context"
	"time"

	"github.com/carelog/carelog-backend/internal/attendance/payroll"
	"github.com/carelog/carelog-backend/pkg/database"
	"github.com/carelog/carelog-backend/pkg/tenant"
)

// Absence is an approved leave row
type Absence struct {
	ID         string    `db:"id" json:"id"`
	EmployeeID string    `db:"employee_id" json:"employee_id"`
	Reason     string    `db:"reason" json:"reason"`
	Paid       bool      `db:"paid" json:"paid"`
	StartsAt   time.Time `db:"starts_at" json:"starts_at"`
	Days       int       `db:"days" json:"days"`
	Hours      int       `db:"hours" json:"hours"`
}

// ToPayroll converts the row for aggregation
func (a Absence) ToPayroll() payroll.Absence {
	return payroll.Absence{
		ID:     a.ID,
		Reason: a.Reason,
		Paid:   a.Paid,
		Start:  a.StartsAt,
		Days:   a.Days,
		Hours:  a.Hours,
	}
}

// AbsenceRepository reads absences
type AbsenceRepository struct {
	db *database.DB
}

// NewAbsenceRepository creates a new absence repository
func NewAbsenceRepository(db *database.DB) *AbsenceRepository {
	return &AbsenceRepository{db: db}
}

// ListOverlapping lists the absences of an employee that intersect [from, to).
// An absence ends at starts_at plus its days, or plus its hours when days is 0.
// TENANT-ISOLATED: Queries only the tenant's schema
func (r *AbsenceRepository) ListOverlapping(ctx context.Context, employeeID string, from, to time.Time) ([]Absence, error) {
	tenantSchema, err := tenant.TenantSchema(ctx)
	if err != nil {
		return nil, err
	}

	var absences []Absence

	err = r.db.WithTenantSchema(ctx, tenantSchema, func(ctx context.Context) error {
		query := `
			SELECT id, employee_id, reason, paid, starts_at, days, hours
			FROM absences
			WHERE employee_id = $1
			  AND deleted_at IS NULL
			  AND starts_at < $3
			  AND CASE WHEN days > 0
			           THEN starts_at + make_interval(days => days)
			           ELSE starts_at + make_interval(hours => hours)
			      END > $2
			ORDER BY starts_at
		`
		return r.db.SelectContext(ctx, &absences, query, employeeID, from, to)
	})
	if err != nil {
		return nil, err
	}

	return absences, nil
}
