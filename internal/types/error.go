package types

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// JSON body of every error response
type Error struct {
	Fields  *map[string]string `json:"fields,omitempty"`
	Message string             `json:"message"`
}

func StringError(err string) Error {
	return Error{Message: err}
}

func ValidationError(err error) Error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return Error{Message: "validation error"}
	}

	errorMap := make(map[string]string, len(validationErrors))
	for _, fieldError := range validationErrors {
		errorMap[fieldError.Field()] = fmt.Sprintf(
			"Failed to validate while checking condition: %s",
			fieldError.Tag(),
		)
	}

	return Error{Message: "validation error", Fields: &errorMap}
}
