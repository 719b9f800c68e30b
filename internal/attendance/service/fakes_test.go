package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carelog/carelog-backend/internal/attendance/compliance"
	"github.com/carelog/carelog-backend/internal/attendance/punch"
	"github.com/carelog/carelog-backend/internal/attendance/repository"
	"github.com/carelog/carelog-backend/pkg/errors"
)

type fakeEmployees struct {
	byID map[string]*repository.Employee
}

func newFakeEmployees(emps ...*repository.Employee) *fakeEmployees {
	f := &fakeEmployees{byID: map[string]*repository.Employee{}}
	for _, e := range emps {
		f.byID[e.ID] = e
	}
	return f
}

func (f *fakeEmployees) GetByID(_ context.Context, id string) (*repository.Employee, error) {
	e, ok := f.byID[id]
	if !ok {
		return nil, errors.NotFound("employee")
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEmployees) ListPunching(_ context.Context, from, to time.Time) ([]repository.Employee, error) {
	var out []repository.Employee
	for _, e := range f.byID {
		if !e.RegistraPonto || !e.ContractStart.Before(to) {
			continue
		}
		if e.DeactivatedAt != nil && e.DeactivatedAt.Before(from) {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakePunches struct {
	mu          sync.Mutex
	records     map[string]punch.Record
	corrections []repository.Correction
	seq         int

	// beforeUpdate runs ahead of the version check, standing in for a
	// request that commits between our read and our write
	beforeUpdate func(f *fakePunches)
}

func newFakePunches() *fakePunches {
	return &fakePunches{records: map[string]punch.Record{}}
}

func (f *fakePunches) put(rec punch.Record) punch.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID == "" {
		f.seq++
		rec.ID = fmt.Sprintf("rec-%d", f.seq)
	}
	if rec.Version == 0 {
		rec.Version = 1
	}
	f.records[rec.ID] = rec
	return rec
}

func (f *fakePunches) GetByID(_ context.Context, id string) (*punch.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, errors.NotFound("punch_record")
	}
	return &rec, nil
}

func (f *fakePunches) GetByEmployeeAndDate(_ context.Context, employeeID string, workDate time.Time) (*punch.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.EmployeeID == employeeID && rec.WorkDate.Equal(workDate) {
			r := rec
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakePunches) ListByEmployee(_ context.Context, employeeID string, from, to time.Time) ([]punch.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []punch.Record
	for _, rec := range f.records {
		if rec.EmployeeID == employeeID && !rec.WorkDate.Before(from) && rec.WorkDate.Before(to) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkDate.Before(out[j].WorkDate) })
	return out, nil
}

func (f *fakePunches) Create(_ context.Context, rec *punch.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.EmployeeID == rec.EmployeeID && r.WorkDate.Equal(rec.WorkDate) {
			return errors.Conflict("a punch record for this employee and date already exists")
		}
	}
	f.seq++
	rec.ID = fmt.Sprintf("rec-%d", f.seq)
	rec.Version = 1
	f.records[rec.ID] = *rec
	return nil
}

func (f *fakePunches) Update(_ context.Context, rec *punch.Record) error {
	if hook := f.beforeUpdate; hook != nil {
		f.beforeUpdate = nil
		hook(f)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.update(rec)
}

func (f *fakePunches) update(rec *punch.Record) error {
	stored, ok := f.records[rec.ID]
	if !ok || stored.Version != rec.Version {
		return errors.Conflict("punch record was changed by another request")
	}
	rec.Version++
	f.records[rec.ID] = *rec
	return nil
}

func (f *fakePunches) Correct(_ context.Context, original punch.Record, corrected *punch.Record, c *repository.Correction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.update(corrected); err != nil {
		return err
	}
	c.Action = repository.CorrectionUpdate
	c.PunchRecordID = original.ID
	c.EmployeeID = original.EmployeeID
	c.WorkDate = original.WorkDate
	f.corrections = append(f.corrections, *c)
	return nil
}

func (f *fakePunches) Delete(_ context.Context, rec punch.Record, c *repository.Correction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.records[rec.ID]
	if !ok || stored.Version != rec.Version {
		return errors.Conflict("punch record was changed by another request")
	}
	delete(f.records, rec.ID)
	c.Action = repository.CorrectionDelete
	c.PunchRecordID = rec.ID
	c.EmployeeID = rec.EmployeeID
	c.WorkDate = rec.WorkDate
	f.corrections = append(f.corrections, *c)
	return nil
}

func (f *fakePunches) ListCorrections(_ context.Context, employeeID string, from, to time.Time) ([]repository.Correction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Correction
	for _, c := range f.corrections {
		if c.EmployeeID == employeeID && !c.WorkDate.Before(from) && c.WorkDate.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeAbsences struct {
	rows []repository.Absence
}

func (f *fakeAbsences) ListOverlapping(_ context.Context, employeeID string, from, to time.Time) ([]repository.Absence, error) {
	var out []repository.Absence
	for _, a := range f.rows {
		if a.EmployeeID == employeeID && a.StartsAt.Before(to) && a.ToPayroll().End().After(from) {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeCompliance struct {
	rec *repository.ComplianceRecord
}

func withDefaults() *fakeCompliance {
	f := &fakeCompliance{}
	f.set(compliance.DefaultParams(), "seed")
	return f
}

func (f *fakeCompliance) set(p compliance.Params, by string) *repository.ComplianceRecord {
	id := "cfg-1"
	if f.rec != nil {
		id = f.rec.ID
	}
	f.rec = &repository.ComplianceRecord{
		ID:                     id,
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
		UpdatedBy:              &by,
	}
	return f.rec
}

func (f *fakeCompliance) Get(context.Context) (*repository.ComplianceRecord, error) {
	if f.rec == nil {
		return nil, errors.MissingComplianceConfig()
	}
	cp := *f.rec
	return &cp, nil
}

func (f *fakeCompliance) Upsert(_ context.Context, p compliance.Params, updatedBy string) (*repository.ComplianceRecord, error) {
	rec := f.set(p, updatedBy)
	cp := *rec
	return &cp, nil
}

func (f *fakeCompliance) Exists(context.Context) (bool, error) {
	return f.rec != nil, nil
}
