// Package handler exposes the attendance engine over HTTP. Handlers decode
// and validate input, call the service layer and write the standard
// response envelope.
package handler

import (
	"reflect"
	"sync"

	"github.com/carelog/carelog-backend/internal/attendance/clocktime"
	"github.com/carelog/carelog-backend/pkg/httputil"
	"github.com/carelog/carelog-backend/pkg/permissions"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators adds the clock tag used by request bodies. Safe to
// call more than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		err = httputil.RegisterCustomValidation("clock", validClock)
	})
	return err
}

func validClock(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	_, err := clocktime.ParseClock(fl.Field().String())
	return err == nil
}

// Routes mounts the attendance endpoints under the caller's prefix. The
// actor middleware must run first.
func Routes(punches *PunchHandler, timesheets *TimesheetHandler, cfg *ComplianceHandler) func(chi.Router) {
	read := permissions.Require(permissions.AttendanceRead)
	correct := permissions.Require(permissions.AttendanceCorrect)
	configure := permissions.Require(permissions.AttendanceConfigure)

	return func(r chi.Router) {
		r.Route("/employees/{id}", func(r chi.Router) {
			r.With(permissions.Require(permissions.AttendancePunch)).Post("/punches", punches.Punch)
			r.With(read).Get("/punch-status", punches.Status)
			r.With(read).Get("/corrections", punches.ListCorrections)
			r.With(read).Get("/timesheets/{year}/{month}", timesheets.Employee)
			r.With(read).Get("/timesheets/{year}/{month}/export.xlsx", timesheets.EmployeeExport)
		})

		r.Route("/punches/{id}", func(r chi.Router) {
			r.Use(correct)
			r.Put("/", punches.Correct)
			r.Delete("/", punches.Delete)
		})

		r.With(read).Get("/timesheets/{year}/{month}", timesheets.Facility)
		r.With(read).Get("/timesheets/{year}/{month}/export.xlsx", timesheets.FacilityExport)

		r.Route("/compliance-config", func(r chi.Router) {
			r.With(read).Get("/", cfg.Get)
			r.With(configure).Put("/", cfg.Update)
			r.With(configure).Post("/defaults", cfg.SeedDefaults)
		})
	}
}
