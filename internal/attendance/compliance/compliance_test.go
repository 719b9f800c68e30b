package compliance_test

import (
	"testing"

	"github.com/carelog/carelog-backend/internal/attendance/clocktime"
	"github.com/carelog/carelog-backend/internal/attendance/compliance"
	"github.com/carelog/carelog-backend/internal/attendance/shiftpattern"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := compliance.Defaults()
	require.NoError(t, err)

	assert.Equal(t, clocktime.Window{Start: clocktime.New(22, 0), End: clocktime.New(5, 0)}, cfg.NightWindow())
	assert.Equal(t, 120, cfg.Overtime50LimitMinutes())
	assert.True(t, cfg.Overtime50Premium().Equal(decimal.NewFromInt(50)))
	assert.True(t, cfg.Overtime100Premium().Equal(decimal.NewFromInt(100)))
	assert.True(t, cfg.NightPremium().Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 60, cfg.MinBreakMinutes())
	assert.Equal(t, 360, cfg.BreakThresholdMinutes())
	assert.Equal(t, "America/Sao_Paulo", cfg.Location().String())
	assert.Equal(t, shiftpattern.FailOpen, cfg.UnknownPatternPolicy())
	assert.Equal(t, shiftpattern.FailOpen, cfg.Resolver().Policy())
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *compliance.Params)
		problem string
	}{
		{name: "bad night start", mutate: func(p *compliance.Params) { p.NightStart = "25:00" }, problem: "night_start"},
		{name: "bad night end", mutate: func(p *compliance.Params) { p.NightEnd = "5h" }, problem: "night_end"},
		{name: "zero min break", mutate: func(p *compliance.Params) { p.MinBreakMinutes = 0 }, problem: "min_break_minutes"},
		{name: "negative threshold", mutate: func(p *compliance.Params) { p.BreakThresholdMinutes = -1 }, problem: "break_threshold_minutes"},
		{name: "negative tier boundary", mutate: func(p *compliance.Params) { p.Overtime50LimitMinutes = -10 }, problem: "overtime50_limit_minutes"},
		{name: "negative night premium", mutate: func(p *compliance.Params) { p.NightPremium = decimal.NewFromInt(-1) }, problem: "night_premium"},
		{name: "unknown timezone", mutate: func(p *compliance.Params) { p.Timezone = "Mars/Olympus" }, problem: "timezone"},
		{name: "empty timezone", mutate: func(p *compliance.Params) { p.Timezone = "" }, problem: "timezone is required"},
		{name: "unknown policy", mutate: func(p *compliance.Params) { p.UnknownPatternPolicy = "guess" }, problem: "unknown_pattern_policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := compliance.DefaultParams()
			tt.mutate(&p)

			cfg, err := compliance.New(p)
			require.Error(t, err)
			assert.Nil(t, cfg)

			var verr *compliance.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Len(t, verr.Problems, 1)
			assert.Contains(t, verr.Problems[0], tt.problem)
		})
	}
}

func TestParamsRoundTrip(t *testing.T) {
	p := compliance.DefaultParams()
	p.NightStart = "21:30"
	p.Overtime50LimitMinutes = 60

	cfg, err := compliance.New(p)
	require.NoError(t, err)

	back := cfg.Params()
	assert.Equal(t, "21:30", back.NightStart)
	assert.Equal(t, "05:00", back.NightEnd)
	assert.Equal(t, 60, back.Overtime50LimitMinutes)
	assert.Equal(t, p.Timezone, back.Timezone)
}
