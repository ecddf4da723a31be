package common

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorBody represents a consistent error payload returned by the API.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Data wraps v in the canonical {"data": ...} envelope.
func Data(w http.ResponseWriter, status int, v any) {
	JSON(w, status, map[string]any{"data": v})
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]any{
		"error": ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// WriteError classifies err and renders it. Upstream failures carry a Retry-After hint.
func WriteError(w http.ResponseWriter, err error) {
	if err == nil {
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	code, status := Classify(err)
	message := err.Error()
	var details any
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Message != "" {
			message = appErr.Message
		}
		details = appErr.Details
	}
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	retry := Retryable(err)
	if retry {
		w.Header().Set("Retry-After", "1")
	}
	JSON(w, status, map[string]any{
		"error": ErrorBody{
			Code:      code,
			Message:   message,
			Retryable: retry,
			Details:   details,
		},
	})
}

// DecodeJSON decodes the request body into dst rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return NewAppError("BAD_REQUEST", "invalid payload", http.StatusBadRequest, errors.Join(ErrInvalidInput, err))
	}
	return nil
}
