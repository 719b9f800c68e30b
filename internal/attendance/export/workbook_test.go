package export_test

import (
	"bytes"
	"testing"

	"github.com/carelog/carelog-backend/internal/attendance/export"
	"github.com/carelog/carelog-backend/internal/attendance/payroll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleMonth(employeeID string) *payroll.MonthResult {
	return &payroll.MonthResult{
		EmployeeID: employeeID,
		Year:       2024,
		Month:      3,
		Days: []payroll.DayResult{
			{Date: "2024-03-01", Status: payroll.StatusFalta, RequiredMinutes: 480},
			{Date: "2024-03-02", Status: payroll.StatusDayOff},
			{
				Date:              "2024-03-03",
				Status:            payroll.StatusComplete,
				OrdinaryMinutes:   480,
				NightMinutes:      60,
				Overtime50Minutes: 30,
				WorkedMinutes:     510,
				RequiredMinutes:   480,
				Warnings:          []string{"break_inference_unresolved"},
			},
		},
		Totals: payroll.MonthTotals{
			OrdinaryMinutes:     480,
			NightMinutes:        60,
			Overtime50Minutes:   30,
			WorkedMinutes:       510,
			DiasTrabalhados:     1,
			TotalFaltas:         1,
			DaysOff:             1,
			UnresolvedBreakDays: 1,
			ScheduledDays:       2,
		},
	}
}

func render(t *testing.T, build func(w *export.TimesheetWorkbook)) *excelize.File {
	t.Helper()
	w := export.NewTimesheetWorkbook()
	defer w.Close()
	build(w)

	var buf bytes.Buffer
	_, err := w.WriteTo(&buf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestAddMonth(t *testing.T) {
	f := render(t, func(w *export.TimesheetWorkbook) {
		require.NoError(t, w.AddMonth(export.Month{EmployeeName: "Ana Souza", Result: sampleMonth("emp-1")}))
	})

	assert.Equal(t, []string{"Ana Souza 2024-03"}, f.GetSheetList())

	rows, err := f.GetRows("Ana Souza 2024-03")
	require.NoError(t, err)
	require.Len(t, rows, 7)

	assert.Equal(t, []string{
		"date", "status", "ordinaryMinutes", "nightMinutes", "overtime50Minutes",
		"overtime100Minutes", "workedMinutes", "requiredMinutes", "absenceMinutes", "warnings",
	}, rows[0])
	assert.Equal(t, []string{"2024-03-01", "falta", "0", "0", "0", "0", "0", "480", "0"}, rows[1][:9])
	assert.Equal(t, "2024-03-03", rows[3][0])
	assert.Equal(t, "510", rows[3][6])
	assert.Equal(t, "break_inference_unresolved", rows[3][9])

	assert.Empty(t, rows[4], "blank row before totals")
	assert.Equal(t, "diasTrabalhados", rows[5][5])
	assert.Equal(t, "1", rows[6][5])
	assert.Equal(t, "1", rows[6][6])
	assert.Equal(t, "scheduledDays", rows[5][12])
	assert.Equal(t, "2", rows[6][12])
}

func TestAddSummary(t *testing.T) {
	months := []export.Month{
		{EmployeeName: "Ana Souza", Result: sampleMonth("emp-1")},
		{EmployeeName: "Bruno Lima", Result: sampleMonth("emp-2")},
	}
	f := render(t, func(w *export.TimesheetWorkbook) {
		require.NoError(t, w.AddSummary(months))
		for _, m := range months {
			require.NoError(t, w.AddMonth(m))
		}
	})

	assert.Equal(t, []string{"Summary", "Ana Souza 2024-03", "Bruno Lima 2024-03"}, f.GetSheetList())

	rows, err := f.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"employeeId", "employeeName", "year", "month"}, rows[0][:4])
	assert.Equal(t, []string{"emp-2", "Bruno Lima", "2024", "3", "480"}, rows[2][:5])
}

func TestSheetNames(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  []string
	}{
		{
			name:  "forbidden characters",
			names: []string{"A/B: C?"},
			want:  []string{"A-B- C- 2024-03"},
		},
		{
			name:  "long names are cut to 31 characters",
			names: []string{"Maria Aparecida dos Santos Oliveira"},
			want:  []string{"Maria Aparecida dos Santos Oliv"},
		},
		{
			name:  "same name twice",
			names: []string{"Ana Souza", "Ana Souza"},
			want:  []string{"Ana Souza 2024-03", "Ana Souza 2024-03 (2)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := render(t, func(w *export.TimesheetWorkbook) {
				for _, n := range tt.names {
					require.NoError(t, w.AddMonth(export.Month{EmployeeName: n, Result: sampleMonth("emp")}))
				}
			})
			assert.Equal(t, tt.want, f.GetSheetList())
		})
	}
}

func TestAddMonth_NilResult(t *testing.T) {
	w := export.NewTimesheetWorkbook()
	defer w.Close()
	assert.Error(t, w.AddMonth(export.Month{EmployeeName: "Ana"}))
}
