package app

import (
	"errors"
	"fmt"
	"net/http"

	"fipsync/internal/config"
	"fipsync/internal/runstate"
)

// DomainError carries the HTTP status and machine-readable code for an error
// the caller can act on.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func validationError(message string, details any) *DomainError {
	return &DomainError{
		Status:  http.StatusUnprocessableEntity,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, runstate.ErrRunInProgress) {
		return http.StatusConflict, "SYNC_IN_PROGRESS", "A sync is already running for this repository", nil
	}
	var configErr *config.ConfigError
	if errors.As(err, &configErr) {
		return http.StatusInternalServerError, "CONFIG_ERROR", configErr.Error(), map[string]any{"field": configErr.Field}
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
