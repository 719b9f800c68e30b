package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/carelog/carelog-backend/pkg/database"
	"github.com/carelog/carelog-backend/pkg/tenant"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ShiftPatternFixture is a shift_patterns row
type ShiftPatternFixture struct {
	ID         string
	Name       string
	Code       string
	Start      string
	End        string
	BreakStart *string
	BreakEnd   *string
}

// EmployeeFixture is an employees row
type EmployeeFixture struct {
	ID             string
	FirstName      string
	LastName       string
	RegistraPonto  bool
	ContractStart  time.Time
	DeactivatedAt  *time.Time
	ShiftPatternID *string
	HourlyRate     *decimal.Decimal
}

// AbsenceFixture is an absences row
type AbsenceFixture struct {
	ID         string
	EmployeeID string
	Reason     string
	Paid       bool
	StartsAt   time.Time
	Days       int
	Hours      int
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{}
}

func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// OfficePattern is a 5x2 08:00-17:00 pattern with lunch 12:00-13:00
func (f *FixtureFactory) OfficePattern() ShiftPatternFixture {
	return ShiftPatternFixture{
		ID:         uuid.New().String(),
		Name:       fmt.Sprintf("Administrativo %d", f.nextSeq()),
		Code:       "5x2",
		Start:      "08:00",
		End:        "17:00",
		BreakStart: PtrString("12:00"),
		BreakEnd:   PtrString("13:00"),
	}
}

// NightPattern is a 12x36 19:00-07:00 pattern without a scheduled break
func (f *FixtureFactory) NightPattern() ShiftPatternFixture {
	return ShiftPatternFixture{
		ID:    uuid.New().String(),
		Name:  fmt.Sprintf("Plantão noturno %d", f.nextSeq()),
		Code:  "12x36",
		Start: "19:00",
		End:   "07:00",
	}
}

// Employee returns a punching employee starting on contractStart
func (f *FixtureFactory) Employee(contractStart time.Time, opts ...func(*EmployeeFixture)) EmployeeFixture {
	seq := f.nextSeq()
	e := EmployeeFixture{
		ID:            uuid.New().String(),
		FirstName:     "Cuidadora",
		LastName:      fmt.Sprintf("Teste %d", seq),
		RegistraPonto: true,
		ContractStart: contractStart,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// WithPattern assigns a shift pattern
func WithPattern(p ShiftPatternFixture) func(*EmployeeFixture) {
	return func(e *EmployeeFixture) {
		e.ShiftPatternID = &p.ID
	}
}

// WithHourlyRate sets the hourly rate
func WithHourlyRate(rate string) func(*EmployeeFixture) {
	return func(e *EmployeeFixture) {
		d := decimal.RequireFromString(rate)
		e.HourlyRate = &d
	}
}

// WithoutPunching marks the employee as exempt from the punch clock
func WithoutPunching() func(*EmployeeFixture) {
	return func(e *EmployeeFixture) {
		e.RegistraPonto = false
	}
}

// Seeder writes fixtures into the tenant schema of a context
type Seeder struct {
	DB *database.DB
}

// ShiftPattern inserts a shift pattern
func (s *Seeder) ShiftPattern(ctx context.Context, p ShiftPatternFixture) error {
	return s.exec(ctx, `
		INSERT INTO shift_patterns (id, name, jornada_trabalho, start_time, end_time, break_start, break_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Name, p.Code, p.Start, p.End, p.BreakStart, p.BreakEnd)
}

// Employee inserts an employee
func (s *Seeder) Employee(ctx context.Context, e EmployeeFixture) error {
	return s.exec(ctx, `
		INSERT INTO employees (id, first_name, last_name, registra_ponto, contract_start_date,
		                       deactivated_at, shift_pattern_id, hourly_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.FirstName, e.LastName, e.RegistraPonto, e.ContractStart, e.DeactivatedAt, e.ShiftPatternID, e.HourlyRate)
}

// Absence inserts an absence
func (s *Seeder) Absence(ctx context.Context, a AbsenceFixture) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return s.exec(ctx, `
		INSERT INTO absences (id, employee_id, reason, paid, starts_at, days, hours)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.EmployeeID, a.Reason, a.Paid, a.StartsAt, a.Days, a.Hours)
}

func (s *Seeder) exec(ctx context.Context, query string, args ...any) error {
	schema, err := tenant.TenantSchema(ctx)
	if err != nil {
		return err
	}
	return s.DB.WithTenantSchema(ctx, schema, func(ctx context.Context) error {
		_, err := s.DB.ExecContext(ctx, query, args...)
		return err
	})
}
