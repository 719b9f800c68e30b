package payroll

import (
	"github.com/carelog/carelog-backend/internal/attendance/compliance"
	"github.com/shopspring/decimal"
)

var (
	sixty   = decimal.NewFromInt(60)
	hundred = decimal.NewFromInt(100)
)

// Valuation is the money side of a month. Minutes stay integers until this
// point; only amounts are decimal.
type Valuation struct {
	HourlyRate   decimal.Decimal `json:"hourlyRate"`
	Ordinary     decimal.Decimal `json:"ordinary"`
	NightPremium decimal.Decimal `json:"nightPremium"`
	Overtime50   decimal.Decimal `json:"overtime50"`
	Overtime100  decimal.Decimal `json:"overtime100"`
	Total        decimal.Decimal `json:"total"`
}

// Valuate prices month totals at an hourly rate. Overtime minutes are paid at
// the base rate plus their tier premium. The night premium is paid on top for
// every night minute, ordinary or overtime.
func Valuate(t MonthTotals, hourlyRate decimal.Decimal, cfg *compliance.Config) Valuation {
	perMinute := hourlyRate.Div(sixty)

	base := func(minutes int) decimal.Decimal {
		return perMinute.Mul(decimal.NewFromInt(int64(minutes)))
	}
	withPremium := func(minutes int, pct decimal.Decimal) decimal.Decimal {
		return base(minutes).Mul(hundred.Add(pct)).Div(hundred)
	}

	v := Valuation{
		HourlyRate:   hourlyRate,
		Ordinary:     base(t.OrdinaryMinutes).Round(2),
		NightPremium: base(t.NightMinutes).Mul(cfg.NightPremium()).Div(hundred).Round(2),
		Overtime50:   withPremium(t.Overtime50Minutes, cfg.Overtime50Premium()).Round(2),
		Overtime100:  withPremium(t.Overtime100Minutes, cfg.Overtime100Premium()).Round(2),
	}
	v.Total = v.Ordinary.Add(v.NightPremium).Add(v.Overtime50).Add(v.Overtime100)
	return v
}
