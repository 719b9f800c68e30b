package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carelog/carelog-backend/internal/attendance/punch"
	"github.com/carelog/carelog-backend/pkg/database"
	"github.com/carelog/carelog-backend/pkg/errors"
	"github.com/carelog/carelog-backend/pkg/tenant"
	"github.com/google/uuid"
)

// Correction actions
const (
	CorrectionUpdate = "update"
	CorrectionDelete = "delete"
)

// Correction is the audit entry for an administrative change to a punch
// record. Original and Corrected are JSON snapshots of the record.
type Correction struct {
	ID            string    `db:"id" json:"id"`
	PunchRecordID string    `db:"punch_record_id" json:"punch_record_id"`
	EmployeeID    string    `db:"employee_id" json:"employee_id"`
	WorkDate      time.Time `db:"work_date" json:"work_date"`
	Action        string    `db:"action" json:"action"`
	Original      Snapshot  `db:"original" json:"original"`
	Corrected     Snapshot  `db:"corrected" json:"corrected,omitempty"`
	Reason        string    `db:"reason" json:"reason"`
	CorrectedBy   string    `db:"corrected_by" json:"corrected_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// PunchRepository stores punch records
type PunchRepository struct {
	db *database.DB
}

// NewPunchRepository creates a new punch repository
func NewPunchRepository(db *database.DB) *PunchRepository {
	return &PunchRepository{db: db}
}

const punchColumns = `
	id, employee_id, work_date, state, entrada, intervalo_inicio, intervalo_fim, saida,
	intervalo_inferido, intervalo_nao_resolvido, latitude, longitude, version,
	created_at, updated_at
`

// GetByID gets a punch record by ID
// TENANT-ISOLATED: Queries only the tenant's schema
func (r *PunchRepository) GetByID(ctx context.Context, id string) (*punch.Record, error) {
	tenantSchema, err := tenant.TenantSchema(ctx)
	if err != nil {
		return nil, err
	}

	var rec punch.Record

	err = r.db.WithTenantSchema(ctx, tenantSchema, func(ctx context.Context) error {
		query := `SELECT ` + punchColumns + ` FROM punch_records WHERE id = $1`
		return r.db.GetContext(ctx, &rec, query, id)
	})

	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("punch_record")
	}
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// GetByEmployeeAndDate gets the record of an employee for a work date.
// Returns nil when the employee has not punched that day.
// TENANT-ISOLATED: Queries only the tenant's schema
func (r *PunchRepository) GetByEmployeeAndDate(ctx context.Context, employeeID string, workDate time.Time) (*punch.Record, error) {
	tenantSchema, err := tenant.TenantSchema(ctx)
	if err != nil {
		return nil, err
	}

	var rec punch.Record

	err = r.db.WithTenantSchema(ctx, tenantSchema, func(ctx context.Context) error {
		query := `SELECT ` + punchColumns + `
			FROM punch_records
			WHERE employee_id = $1 AND work_date = $2
		`
		return r.db.GetContext(ctx, &rec, query, employeeID, workDate)
	})

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// ListByEmployee lists records with from <= work_date < to, oldest first
// TENANT-ISOLATED: Queries only the tenant's schema
func (r *PunchRepository) ListByEmployee(ctx context.Context, employeeID string, from, to time.Time) ([]punch.Record, error) {
	tenantSchema, err := tenant.TenantSchema(ctx)
	if err != nil {
		return nil, err
	}

	var records []punch.Record

	err = r.db.WithTenantSchema(ctx, tenantSchema, func(ctx context.Context) error {
		query := `SELECT ` + punchColumns + `
			FROM punch_records
			WHERE employee_id = $1 AND work_date >= $2 AND work_date < $3
			ORDER BY work_date
		`
		return r.db.SelectContext(ctx, &records, query, employeeID, from, to)
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Create inserts a new record at version 1. A second record for the same
// employee and date is a Conflict.
// TENANT-ISOLATED: Inserts into the tenant's schema
func (r *PunchRepository) Create(ctx context.Context, rec *punch.Record) error {
	tenantSchema, err := tenant.TenantSchema(ctx)
	if err != nil {
		return err
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.Version = 1

	err = r.db.WithTenantSchema(ctx, tenantSchema, func(ctx context.Context) error {
		query := `
			INSERT INTO punch_records (
				id, employee_id, work_date, state, entrada, intervalo_inicio, intervalo_fim, saida,
				intervalo_inferido, intervalo_nao_resolvido, latitude, longitude, version
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING created_at, updated_at
		`
		return r.db.QueryRowxContext(ctx, query,
			rec.ID, rec.EmployeeID, rec.WorkDate, rec.State, rec.ClockIn, rec.BreakStart, rec.BreakEnd, rec.ClockOut,
			rec.BreakInferred, rec.BreakUnresolved, rec.Latitude, rec.Longitude, rec.Version,
		).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	})

	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// Update writes rec if nobody changed it since it was read. On success
// rec.Version is advanced; a stale version is a Conflict.
// TENANT-ISOLATED: Updates only in the tenant's schema
func (r *PunchRepository) Update(ctx context.Context, rec *punch.Record) error {
	tenantSchema, err := tenant.TenantSchema(ctx)
	if err != nil {
		return err
	}

	err = r.db.WithTenantSchema(ctx, tenantSchema, func(ctx context.Context) error {
		query := `
			UPDATE punch_records SET
				state = $3, entrada = $4, intervalo_inicio = $5, intervalo_fim = $6, saida = $7,
				intervalo_inferido = $8, intervalo_nao_resolvido = $9, latitude = $10, longitude = $11,
				version = version + 1, updated_at = NOW()
			WHERE id = $1 AND version = $2
			RETURNING version, updated_at
		`
		return r.db.QueryRowxContext(ctx, query,
			rec.ID, rec.Version, rec.State, rec.ClockIn, rec.BreakStart, rec.BreakEnd, rec.ClockOut,
			rec.BreakInferred, rec.BreakUnresolved, rec.Latitude, rec.Longitude,
		).Scan(&rec.Version, &rec.UpdatedAt)
	})

	if errors.Is(err, sql.ErrNoRows) {
		return errors.Conflict("punch record was changed by another request")
	}
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// Correct updates a record and writes its audit entry in one transaction.
// TENANT-ISOLATED: Updates only in the tenant's schema
func (r *PunchRepository) Correct(ctx context.Context, original punch.Record, corrected *punch.Record, c *Correction) error {
	tenantSchema, err := tenant.TenantSchema(ctx)
	if err != nil {
		return err
	}

	return r.db.WithTenantSchema(ctx, tenantSchema, func(ctx context.Context) error {
		if err := r.Update(ctx, corrected); err != nil {
			return err
		}
		return r.insertCorrection(ctx, CorrectionUpdate, original, corrected, c)
	})
}

// Delete removes a record and writes its audit entry in one transaction.
// TENANT-ISOLATED: Deletes only in the tenant's schema
func (r *PunchRepository) Delete(ctx context.Context, rec punch.Record, c *Correction) error {
	tenantSchema, err := tenant.TenantSchema(ctx)
	if err != nil {
		return err
	}

	return r.db.WithTenantSchema(ctx, tenantSchema, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx,
			`DELETE FROM punch_records WHERE id = $1 AND version = $2`, rec.ID, rec.Version)
		if err != nil {
			return err
		}

		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.Conflict("punch record was changed by another request")
		}

		return r.insertCorrection(ctx, CorrectionDelete, rec, nil, c)
	})
}

func (r *PunchRepository) insertCorrection(ctx context.Context, action string, original punch.Record, corrected *punch.Record, c *Correction) error {
	before, err := json.Marshal(original)
	if err != nil {
		return err
	}
	var after []byte
	if corrected != nil {
		if after, err = json.Marshal(corrected); err != nil {
			return err
		}
	}

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.PunchRecordID = original.ID
	c.EmployeeID = original.EmployeeID
	c.WorkDate = original.WorkDate
	c.Action = action
	c.Original = before
	c.Corrected = after

	query := `
		INSERT INTO punch_corrections (
			id, punch_record_id, employee_id, work_date, action, original, corrected, reason, corrected_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	return r.db.QueryRowxContext(ctx, query,
		c.ID, c.PunchRecordID, c.EmployeeID, c.WorkDate, c.Action, c.Original, c.Corrected, c.Reason, c.CorrectedBy,
	).Scan(&c.CreatedAt)
}

// ListCorrections lists the audit entries of an employee with
// from <= work_date < to, newest first
// TENANT-ISOLATED: Queries only the tenant's schema
func (r *PunchRepository) ListCorrections(ctx context.Context, employeeID string, from, to time.Time) ([]Correction, error) {
	tenantSchema, err := tenant.TenantSchema(ctx)
	if err != nil {
		return nil, err
	}

	var corrections []Correction

	err = r.db.WithTenantSchema(ctx, tenantSchema, func(ctx context.Context) error {
		query := `
			SELECT id, punch_record_id, employee_id, work_date, action, original, corrected,
			       reason, corrected_by, created_at
			FROM punch_corrections
			WHERE employee_id = $1 AND work_date >= $2 AND work_date < $3
			ORDER BY created_at DESC
		`
		return r.db.SelectContext(ctx, &corrections, query, employeeID, from, to)
	})
	if err != nil {
		return nil, err
	}

	return corrections, nil
}

// Snapshot is a JSONB column holding a copy of a punch record.
type Snapshot []byte

// Scan copies the driver bytes, which may be reused after the row advances.
func (s *Snapshot) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
	case []byte:
		*s = append(Snapshot(nil), v...)
	case string:
		*s = Snapshot(v)
	default:
		return fmt.Errorf("snapshot: unsupported type %T", src)
	}
	return nil
}

// Value stores an empty snapshot as NULL.
func (s Snapshot) Value() (driver.Value, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return []byte(s), nil
}

// MarshalJSON embeds the snapshot as-is.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return s, nil
}
