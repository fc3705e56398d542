// Package streamerr adapts the teacher's pkg/errors AppError pattern to
// the error families this pipeline's transport layer actually needs:
// validation (oversize batch, malformed event), not-found (a DLQ
// entry_id with no match), service-unavailable (the log service is
// unreachable), and a catch-all internal error.
package streamerr

import (
	"errors"
	"fmt"
	"net/http"
)

type AppErrorType string

const (
	ValidationError    AppErrorType = "VALIDATION_ERROR"
	NotFoundError      AppErrorType = "NOT_FOUND_ERROR"
	ServiceUnavailable AppErrorType = "SERVICE_UNAVAILABLE_ERROR"
	InternalError      AppErrorType = "INTERNAL_ERROR"
)

// AppError is a typed error carrying the HTTP status its transport
// mapping resolves to.
type AppError struct {
	Err        error        `json:"-"`
	Type       AppErrorType `json:"type"`
	Message    string       `json:"message"`
	Details    string       `json:"details,omitempty"`
	StatusCode int          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError builds an AppError, resolving StatusCode from errorType.
func NewAppError(errorType AppErrorType, message, details string, err error) *AppError {
	appErr := &AppError{Type: errorType, Message: message, Details: details, Err: err}

	switch errorType {
	case ValidationError:
		appErr.StatusCode = http.StatusBadRequest
	case NotFoundError:
		appErr.StatusCode = http.StatusNotFound
	case ServiceUnavailable:
		appErr.StatusCode = http.StatusServiceUnavailable
	default:
		appErr.StatusCode = http.StatusInternalServerError
	}

	return appErr
}

func NewValidationError(message, details string) *AppError {
	return NewAppError(ValidationError, message, details, nil)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(NotFoundError, resource+" not found", "", nil)
}

func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(ServiceUnavailable, message, "", nil)
}

func NewInternalError(message string, err error) *AppError {
	return NewAppError(InternalError, message, "", err)
}

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func GetStatusCode(err error) int {
	if appErr, ok := IsAppError(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
