package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/carelog/carelog-backend/pkg/errors"
	"github.com/carelog/carelog-backend/pkg/i18n"
)

// Response is a standard API response
type Response struct {
	Success  bool       `json:"success"`
	Data     any        `json:"data,omitempty"`
	Error    *ErrorBody `json:"error,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
}

// ErrorBody represents an error in the response
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func write(w http.ResponseWriter, statusCode int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, statusCode int, data any) {
	write(w, statusCode, Response{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
	})
}

// JSONWithWarnings sends a successful response that also carries soft
// failures the caller should see, such as an unresolved break.
func JSONWithWarnings(w http.ResponseWriter, statusCode int, data any, warnings []string) {
	write(w, statusCode, Response{
		Success:  statusCode >= 200 && statusCode < 300,
		Data:     data,
		Warnings: warnings,
	})
}

// Error sends an error response with the default locale message
func Error(w http.ResponseWriter, err error) {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		write(w, appErr.StatusCode, Response{
			Error: &ErrorBody{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details},
		})
		return
	}

	write(w, http.StatusInternalServerError, Response{
		Error: &ErrorBody{Code: "INTERNAL_ERROR", Message: "an unexpected error occurred"},
	})
}

// ErrorLocalized sends an error response localized for the request
func ErrorLocalized(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		write(w, appErr.StatusCode, Response{
			Error: &ErrorBody{Code: appErr.Code, Message: appErr.Localize(r.Context()), Details: appErr.Details},
		})
		return
	}

	localizer := i18n.LocalizerFromContext(r.Context())
	write(w, http.StatusInternalServerError, Response{
		Error: &ErrorBody{Code: "INTERNAL_ERROR", Message: localizer.T("errors.internal")},
	})
}

// NoContent sends a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Created sends a 201 Created response
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// Attachment streams a file download. render is called after the headers are
// set, so it must not fail halfway for reasons it could have checked earlier.
func Attachment(w http.ResponseWriter, filename, contentType string, render func(io.Writer) error) error {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	return render(w)
}

// DecodeJSON decodes the request body with a localized error. Unknown fields
// are rejected.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		localizer := i18n.LocalizerFromContext(r.Context())
		return errors.BadRequest(localizer.T("errors.invalid_json"))
	}
	return nil
}
