package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/carelog/carelog-backend/pkg/i18n"
)

// Standard error types
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("resource conflict")
	ErrInternal     = errors.New("internal server error")
	ErrValidation   = errors.New("validation error")
)

// Attendance engine error kinds
var (
	ErrInvalidTimeFormat        = errors.New("invalid time format")
	ErrInvalidPunchTransition   = errors.New("invalid punch transition")
	ErrInvalidDateRange         = errors.New("invalid date range")
	ErrMissingComplianceConfig  = errors.New("missing compliance config")
	ErrBreakInferenceUnresolved = errors.New("break inference unresolved")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	MessageKey string            `json:"-"` // i18n key for localization
	Params     map[string]string `json:"-"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Localize returns a localized version of the error message
func (e *AppError) Localize(ctx context.Context) string {
	if e.MessageKey == "" {
		return e.Message
	}
	return i18n.TFromContext(ctx, e.MessageKey, e.Params)
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		MessageKey: "errors.not_found",
		Params:     map[string]string{"resource": resource},
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		MessageKey: "errors.unauthorized",
		StatusCode: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		MessageKey: "errors.forbidden",
		StatusCode: http.StatusForbidden,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		MessageKey: "errors.bad_request",
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		MessageKey: "errors.conflict",
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		MessageKey: "errors.internal",
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		MessageKey: "errors.validation_failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// InvalidTimeFormat is returned at the input boundary for malformed clock text
func InvalidTimeFormat(value string) *AppError {
	return &AppError{
		Err:        ErrInvalidTimeFormat,
		Code:       "INVALID_TIME_FORMAT",
		Message:    fmt.Sprintf("invalid clock time %q, expected HH:MM or HH:MM:SS", value),
		MessageKey: "errors.invalid_time_format",
		Params:     map[string]string{"value": value},
		StatusCode: http.StatusBadRequest,
	}
}

// InvalidPunchTransition carries the current state and the events allowed from it
// so the caller can offer a corrective choice.
func InvalidPunchTransition(state, event string, allowed []string) *AppError {
	return &AppError{
		Err:        ErrInvalidPunchTransition,
		Code:       "INVALID_PUNCH_TRANSITION",
		Message:    fmt.Sprintf("%s is not allowed while %s", event, state),
		MessageKey: "errors.invalid_punch_transition",
		Params:     map[string]string{"event": event, "state": state},
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"state":   state,
			"event":   event,
			"allowed": strings.Join(allowed, ","),
		},
	}
}

func InvalidDateRange(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidDateRange,
		Code:       "INVALID_DATE_RANGE",
		Message:    message,
		MessageKey: "errors.invalid_date_range",
		StatusCode: http.StatusBadRequest,
	}
}

func MissingComplianceConfig() *AppError {
	return &AppError{
		Err:        ErrMissingComplianceConfig,
		Code:       "MISSING_COMPLIANCE_CONFIG",
		Message:    "no active compliance configuration for this facility",
		MessageKey: "errors.missing_compliance_config",
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// InconsistentData aborts a month computation. err is the underlying cause,
// so errors.Is still sees the core sentinel.
func InconsistentData(err error) *AppError {
	return &AppError{
		Err:        err,
		Code:       "INCONSISTENT_ATTENDANCE_DATA",
		Message:    err.Error(),
		MessageKey: "errors.inconsistent_data",
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func UnknownShiftPattern(err error) *AppError {
	return &AppError{
		Err:        err,
		Code:       "UNKNOWN_SHIFT_PATTERN",
		Message:    err.Error(),
		MessageKey: "errors.unknown_shift_pattern",
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
