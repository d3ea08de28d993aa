package handler

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ValidationError reports one rejected request field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var validationMessages = map[string]string{
	"required": "field is required",
	"oneof":    "value is not one of the allowed options",
	"min":      "value is too short",
	"max":      "value is too long",
}

// NewValidationErrorResponse turns a binding error into a response. Validator
// errors become per-field messages; anything else keeps its error text.
func NewValidationErrorResponse(err error) *Response {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return NewErrorResponse(err.Error())
	}

	fields := make([]ValidationError, 0, len(validationErrs))
	for _, e := range validationErrs {
		msg := validationMessages[e.Tag()]
		if msg == "" {
			msg = fmt.Sprintf("failed %s validation", e.Tag())
		}
		fields = append(fields, ValidationError{Field: e.Field(), Message: msg})
	}

	return &Response{
		Status:  "error",
		Message: "validation failed",
		Data:    fields,
	}
}
