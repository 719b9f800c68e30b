package database

import (
	"strings"

	"github.com/carelog/carelog-backend/pkg/errors"
	"github.com/lib/pq"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "state_valid"):
		return errors.Validation(map[string]string{
			"state": "must be one of: not_started, clocked_in, on_break, break_ended, clocked_out",
		})

	case strings.Contains(constraint, "punch_order"):
		return errors.Validation(map[string]string{
			"saida": "punch times must be in order",
		})

	case strings.Contains(constraint, "absence_span"):
		return errors.Validation(map[string]string{
			"days": "an absence needs a positive number of days or hours",
		})

	case strings.Contains(constraint, "policy_valid"):
		return errors.Validation(map[string]string{
			"unknown_pattern_policy": "must be one of: fail_open, fail_closed",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "employee_date"):
		return "a punch record for this employee and date already exists"
	case strings.Contains(constraint, "compliance_configs"):
		return "this facility already has a compliance configuration"
	default:
		return "a record with these values already exists"
	}
}
