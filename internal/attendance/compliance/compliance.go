// Package compliance holds the tenant's labor-law parameters. A Config is
// immutable once built and is safe to share between goroutines.
package compliance

import (
	"fmt"
	"sort"
	"strings"
	"time"
	// facility zones must resolve in minimal container images
	_ "time/tzdata"

	"github.com/carelog/carelog-backend/internal/attendance/clocktime"
	"github.com/carelog/carelog-backend/internal/attendance/shiftpattern"
	"github.com/shopspring/decimal"
)

// Params is the mutable input used to build a Config. It mirrors the stored
// configuration row.
type Params struct {
	NightStart             string                            `json:"night_start" validate:"required"`
	NightEnd               string                            `json:"night_end" validate:"required"`
	Overtime50LimitMinutes int                               `json:"overtime50_limit_minutes" validate:"gte=0"`
	Overtime50Premium      decimal.Decimal                   `json:"overtime50_premium"`
	Overtime100Premium     decimal.Decimal                   `json:"overtime100_premium"`
	NightPremium           decimal.Decimal                   `json:"night_premium"`
	MinBreakMinutes        int                               `json:"min_break_minutes" validate:"gt=0"`
	BreakThresholdMinutes  int                               `json:"break_threshold_minutes" validate:"gte=0"`
	Timezone               string                            `json:"timezone" validate:"required"`
	UnknownPatternPolicy   shiftpattern.UnknownPatternPolicy `json:"unknown_pattern_policy" validate:"required"`
}

// Config is the validated, read-only form of Params.
type Config struct {
	night                  clocktime.Window
	overtime50LimitMinutes int
	overtime50Premium      decimal.Decimal
	overtime100Premium     decimal.Decimal
	nightPremium           decimal.Decimal
	minBreakMinutes        int
	breakThresholdMinutes  int
	location               *time.Location
	policy                 shiftpattern.UnknownPatternPolicy
}

// DefaultParams returns the values used to seed a facility's first
// configuration. They are never used as a fallback for a missing one.
func DefaultParams() Params {
	return Params{
		NightStart:             "22:00",
		NightEnd:               "05:00",
		Overtime50LimitMinutes: 120,
		Overtime50Premium:      decimal.NewFromInt(50),
		Overtime100Premium:     decimal.NewFromInt(100),
		NightPremium:           decimal.NewFromInt(20),
		MinBreakMinutes:        60,
		BreakThresholdMinutes:  360,
		Timezone:               "America/Sao_Paulo",
		UnknownPatternPolicy:   shiftpattern.FailOpen,
	}
}

// Defaults builds a Config from DefaultParams.
func Defaults() (*Config, error) {
	return New(DefaultParams())
}

// New validates p and freezes it into a Config.
func New(p Params) (*Config, error) {
	var problems []string

	start, err := clocktime.ParseClock(p.NightStart)
	if err != nil {
		problems = append(problems, "night_start: "+err.Error())
	}
	end, err := clocktime.ParseClock(p.NightEnd)
	if err != nil {
		problems = append(problems, "night_end: "+err.Error())
	}
	if p.MinBreakMinutes <= 0 {
		problems = append(problems, "min_break_minutes must be positive")
	}
	if p.BreakThresholdMinutes < 0 {
		problems = append(problems, "break_threshold_minutes must not be negative")
	}
	if p.Overtime50LimitMinutes < 0 {
		problems = append(problems, "overtime50_limit_minutes must not be negative")
	}
	for name, v := range map[string]decimal.Decimal{
		"overtime50_premium":  p.Overtime50Premium,
		"overtime100_premium": p.Overtime100Premium,
		"night_premium":       p.NightPremium,
	} {
		if v.IsNegative() {
			problems = append(problems, name+" must not be negative")
		}
	}
	if !p.UnknownPatternPolicy.Valid() {
		problems = append(problems, fmt.Sprintf("unknown_pattern_policy %q is not one of fail_open, fail_closed", p.UnknownPatternPolicy))
	}

	var loc *time.Location
	if p.Timezone == "" {
		problems = append(problems, "timezone is required")
	} else if loc, err = time.LoadLocation(p.Timezone); err != nil {
		problems = append(problems, "timezone: "+err.Error())
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, &ValidationError{Problems: problems}
	}

	return &Config{
		night:                  clocktime.Window{Start: start, End: end},
		overtime50LimitMinutes: p.Overtime50LimitMinutes,
		overtime50Premium:      p.Overtime50Premium,
		overtime100Premium:     p.Overtime100Premium,
		nightPremium:           p.NightPremium,
		minBreakMinutes:        p.MinBreakMinutes,
		breakThresholdMinutes:  p.BreakThresholdMinutes,
		location:               loc,
		policy:                 p.UnknownPatternPolicy,
	}, nil
}

// ValidationError lists every problem found in a Params value.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid compliance config: " + strings.Join(e.Problems, "; ")
}

func (c *Config) NightWindow() clocktime.Window       { return c.night }
func (c *Config) Overtime50LimitMinutes() int         { return c.overtime50LimitMinutes }
func (c *Config) Overtime50Premium() decimal.Decimal  { return c.overtime50Premium }
func (c *Config) Overtime100Premium() decimal.Decimal { return c.overtime100Premium }
func (c *Config) NightPremium() decimal.Decimal       { return c.nightPremium }
func (c *Config) MinBreakMinutes() int                { return c.minBreakMinutes }
func (c *Config) BreakThresholdMinutes() int          { return c.breakThresholdMinutes }
func (c *Config) Location() *time.Location            { return c.location }
func (c *Config) UnknownPatternPolicy() shiftpattern.UnknownPatternPolicy {
	return c.policy
}

// Resolver returns a shift pattern resolver bound to this config's policy.
func (c *Config) Resolver() *shiftpattern.Resolver {
	return shiftpattern.NewResolver(c.policy)
}

// Params returns the config back in its storable form.
func (c *Config) Params() Params {
	return Params{
		NightStart:             c.night.Start.String(),
		NightEnd:               c.night.End.String(),
		Overtime50LimitMinutes: c.overtime50LimitMinutes,
		Overtime50Premium:      c.overtime50Premium,
		Overtime100Premium:     c.overtime100Premium,
		NightPremium:           c.nightPremium,
		MinBreakMinutes:        c.minBreakMinutes,
		BreakThresholdMinutes:  c.breakThresholdMinutes,
		Timezone:               c.location.String(),
		UnknownPatternPolicy:   c.policy,
	}
}

