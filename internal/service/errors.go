// Package service is the application facade over the job runner, the
// stores, and the maintenance machinery. The API layer talks only to this
// package and to the stable sentinels below; provider and store internals
// never leak past it.
package service

import (
	"errors"
	"fmt"
)

// Common service errors - sentinel errors the API layer maps to HTTP
// statuses with errors.Is().
var (
	// ErrAlreadyRunning indicates a job is active and the single-flight
	// invariant rejects a second one. Maps to HTTP 409 Conflict.
	ErrAlreadyRunning = errors.New("a job is already running")

	// ErrJobNotFound indicates the referenced execution does not exist.
	// Maps to HTTP 404 Not Found.
	ErrJobNotFound = errors.New("job execution not found")

	// ErrConfigurationNotFound indicates the referenced configuration does
	// not exist. Maps to HTTP 404 Not Found.
	ErrConfigurationNotFound = errors.New("job configuration not found")

	// ErrConfigurationNameTaken indicates the configuration name is already
	// in use. Maps to HTTP 409 Conflict.
	ErrConfigurationNameTaken = errors.New("configuration name already in use")

	// ErrInvalidConfiguration indicates the configuration failed validation.
	// Maps to HTTP 400 Bad Request.
	ErrInvalidConfiguration = errors.New("invalid job configuration")

	// ErrImageNotFound indicates the referenced image does not exist.
	// Maps to HTTP 404 Not Found.
	ErrImageNotFound = errors.New("generated image not found")

	// ErrInvalidQCStatus indicates an unknown quality-control status value.
	// Maps to HTTP 400 Bad Request.
	ErrInvalidQCStatus = errors.New("invalid quality-control status")

	// ErrBackupNotFound indicates the referenced snapshot does not exist.
	// Maps to HTTP 404 Not Found.
	ErrBackupNotFound = errors.New("backup snapshot not found")
)

// JobServiceError wraps unexpected failures with the operation that
// produced them.
type JobServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *JobServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("job service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *JobServiceError) Unwrap() error {
	return e.Err
}

// NewJobServiceError creates a new JobServiceError.
func NewJobServiceError(operation, message string, err error) *JobServiceError {
	return &JobServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
