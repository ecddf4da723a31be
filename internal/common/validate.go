package common

import (
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// FieldError describes a single failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// Validate checks struct tags on v and converts failures into an INVALID_INPUT AppError.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewAppError("INVALID_INPUT", err.Error(), http.StatusBadRequest, errors.Join(ErrInvalidInput, err))
	}
	details := make([]FieldError, 0, len(verrs))
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{Field: fe.Namespace(), Rule: fe.Tag()})
		fields = append(fields, fe.Field())
	}
	appErr := NewAppError("INVALID_INPUT", "invalid fields: "+strings.Join(fields, ", "), http.StatusBadRequest, errors.Join(ErrInvalidInput, err))
	appErr.Details = details
	return appErr
}
