// Package export renders computed months as spreadsheets. Rows carry the
// same fields as the JSON day records; there is no styling.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/carelog/carelog-backend/internal/attendance/payroll"
	"github.com/xuri/excelize/v2"
)

// ContentType is the MIME type of the rendered workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	defaultSheet   = "Sheet1"
	summarySheet   = "Summary"
	maxSheetName   = 31
	invalidInSheet = `:\/?*[]`
)

var dayHeader = []interface{}{
	"date",
	"status",
	"ordinaryMinutes",
	"nightMinutes",
	"overtime50Minutes",
	"overtime100Minutes",
	"workedMinutes",
	"requiredMinutes",
	"absenceMinutes",
	"warnings",
}

var totalsHeader = []interface{}{
	"ordinaryMinutes",
	"nightMinutes",
	"overtime50Minutes",
	"overtime100Minutes",
	"workedMinutes",
	"diasTrabalhados",
	"totalFaltas",
	"paidLeaveDays",
	"unpaidLeaveDays",
	"daysOff",
	"inProgressDays",
	"unresolvedBreakDays",
	"scheduledDays",
}

// Month is one computed employee-month to render.
type Month struct {
	EmployeeName string
	Result       *payroll.MonthResult
}

// TimesheetWorkbook builds an xlsx file with one sheet per employee-month and
// an optional facility summary sheet.
type TimesheetWorkbook struct {
	f      *excelize.File
	names  map[string]bool
	sheets int
}

// NewTimesheetWorkbook creates an empty workbook. Close releases it.
func NewTimesheetWorkbook() *TimesheetWorkbook {
	return &TimesheetWorkbook{
		f:     excelize.NewFile(),
		names: make(map[string]bool),
	}
}

// AddSummary writes one totals row per month on a sheet named Summary.
func (w *TimesheetWorkbook) AddSummary(months []Month) error {
	sheet, err := w.sheet(summarySheet)
	if err != nil {
		return err
	}

	sw, err := w.f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open summary sheet: %w", err)
	}

	header := append([]interface{}{"employeeId", "employeeName", "year", "month"}, totalsHeader...)
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	for i, m := range months {
		row := append([]interface{}{m.Result.EmployeeID, m.EmployeeName, m.Result.Year, m.Result.Month}, totalsRow(m.Result.Totals)...)
		if err := sw.SetRow(cell(1, i+2), row); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}
	return sw.Flush()
}

// AddMonth writes a month on its own sheet: a header, one row per calendar
// day, a blank row, then the totals.
func (w *TimesheetWorkbook) AddMonth(m Month) error {
	if m.Result == nil {
		return fmt.Errorf("month for %q has no result", m.EmployeeName)
	}

	name := fmt.Sprintf("%s %04d-%02d", m.EmployeeName, m.Result.Year, m.Result.Month)
	sheet, err := w.sheet(name)
	if err != nil {
		return err
	}

	sw, err := w.f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open sheet %q: %w", sheet, err)
	}

	row := 1
	if err := sw.SetRow(cell(1, row), dayHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, d := range m.Result.Days {
		row++
		values := []interface{}{
			d.Date,
			string(d.Status),
			d.OrdinaryMinutes,
			d.NightMinutes,
			d.Overtime50Minutes,
			d.Overtime100Minutes,
			d.WorkedMinutes,
			d.RequiredMinutes,
			d.AbsenceMinutes,
			strings.Join(d.Warnings, ","),
		}
		if err := sw.SetRow(cell(1, row), values); err != nil {
			return fmt.Errorf("write %s: %w", d.Date, err)
		}
	}

	row += 2
	if err := sw.SetRow(cell(1, row), totalsHeader); err != nil {
		return fmt.Errorf("write totals header: %w", err)
	}
	row++
	if err := sw.SetRow(cell(1, row), totalsRow(m.Result.Totals)); err != nil {
		return fmt.Errorf("write totals: %w", err)
	}
	return sw.Flush()
}

// WriteTo writes the xlsx bytes.
func (w *TimesheetWorkbook) WriteTo(out io.Writer) (int64, error) {
	if w.sheets > 0 {
		if idx, err := w.f.GetSheetIndex(w.f.GetSheetList()[0]); err == nil {
			w.f.SetActiveSheet(idx)
		}
	}
	return w.f.WriteTo(out)
}

// Close releases the workbook's temporary files.
func (w *TimesheetWorkbook) Close() error {
	return w.f.Close()
}

// sheet creates a uniquely named sheet. The first one takes over the default
// sheet excelize starts with.
func (w *TimesheetWorkbook) sheet(want string) (string, error) {
	name := w.uniqueName(sanitizeSheetName(want))

	if w.sheets == 0 {
		if err := w.f.SetSheetName(defaultSheet, name); err != nil {
			return "", fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := w.f.NewSheet(name); err != nil {
		return "", fmt.Errorf("create sheet %q: %w", name, err)
	}

	w.names[strings.ToLower(name)] = true
	w.sheets++
	return name, nil
}

func (w *TimesheetWorkbook) uniqueName(base string) string {
	if !w.names[strings.ToLower(base)] {
		return base
	}
	for n := 2; ; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		candidate := truncateRunes(base, maxSheetName-len(suffix)) + suffix
		if !w.names[strings.ToLower(candidate)] {
			return candidate
		}
	}
}

// sanitizeSheetName drops characters Excel rejects and keeps the 31 rune limit
func sanitizeSheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidInSheet, r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(s))
	s = strings.Trim(s, "'")
	if s == "" {
		s = "Timesheet"
	}
	return truncateRunes(s, maxSheetName)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func totalsRow(t payroll.MonthTotals) []interface{} {
	return []interface{}{
		t.OrdinaryMinutes,
		t.NightMinutes,
		t.Overtime50Minutes,
		t.Overtime100Minutes,
		t.WorkedMinutes,
		t.DiasTrabalhados,
		t.TotalFaltas,
		t.PaidLeaveDays,
		t.UnpaidLeaveDays,
		t.DaysOff,
		t.InProgressDays,
		t.UnresolvedBreakDays,
		t.ScheduledDays,
	}
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
