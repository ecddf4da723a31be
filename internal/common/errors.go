package common

import (
	"errors"
	"net/http"
)

// Error kinds shared by every engine component. Callers match them with errors.Is.
var (
	// ErrInvalidInput marks malformed line items, unknown store references or bad coordinates.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPolicyInconsistency marks a store that has no delivery policy on record.
	ErrPolicyInconsistency = errors.New("delivery policy missing")
	// ErrUpstreamUnavailable marks a persistence, geocoding or AI collaborator failure. Retryable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrArithmeticAnomaly marks a total that went negative and was clamped. Reported as a warning.
	ErrArithmeticAnomaly = errors.New("arithmetic anomaly")
	// ErrNotFound marks a missing resource such as a user without an active cart.
	ErrNotFound = errors.New("not found")
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Retryable reports whether the caller may retry the failed operation unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}

// Classify maps an error onto the canonical code and HTTP status.
func Classify(err error) (code string, status int) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		status = appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		return appErr.Code, status
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT", http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND", http.StatusNotFound
	case errors.Is(err, ErrPolicyInconsistency):
		return "POLICY_INCONSISTENCY", http.StatusUnprocessableEntity
	case errors.Is(err, ErrUpstreamUnavailable):
		return "UPSTREAM_UNAVAILABLE", http.StatusServiceUnavailable
	default:
		return "INTERNAL", http.StatusInternalServerError
	}
}
