package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/easel-api/internal/service"
)

// MapErrorToStatusCode maps service errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Conflict errors
	case errors.Is(err, service.ErrAlreadyRunning),
		errors.Is(err, service.ErrConfigurationNameTaken):
		return http.StatusConflict

	// Not found errors
	case errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, service.ErrConfigurationNotFound),
		errors.Is(err, service.ErrImageNotFound),
		errors.Is(err, service.ErrBackupNotFound):
		return http.StatusNotFound

	// Bad request errors
	case errors.Is(err, service.ErrInvalidConfiguration),
		errors.Is(err, service.ErrInvalidQCStatus):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, service.ErrAlreadyRunning):
		return "A job is already running"

	case errors.Is(err, service.ErrJobNotFound):
		return "Job execution not found"

	case errors.Is(err, service.ErrConfigurationNotFound):
		return "Configuration not found"

	case errors.Is(err, service.ErrConfigurationNameTaken):
		return "Configuration name already in use"

	case errors.Is(err, service.ErrInvalidConfiguration):
		return "Invalid configuration"

	case errors.Is(err, service.ErrImageNotFound):
		return "Image not found"

	case errors.Is(err, service.ErrInvalidQCStatus):
		return "Invalid quality-control status"

	case errors.Is(err, service.ErrBackupNotFound):
		return "Backup not found"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	if strings.Contains(errMsg, "Field validation") {
		// Example format: "Key: 'StartJobRequest.ConfigurationID' Error:Field
		// validation for 'ConfigurationID' failed on the 'required' tag"
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "gt", "gte":
		return "too small"
	case "oneof":
		return "invalid value"
	case "uuid":
		return "invalid identifier"
	default:
		return "validation failed"
	}
}
