package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/go-playground/validator/v10"
)

const msgAllFieldsRequired = "All fields are required"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return field.Name
		}
		return name
	})

	// notblank rejects values made only of whitespace
	if err := v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	}); err != nil {
		panic(err)
	}

	return v
}

// validateStruct turns validator errors into a field-level ValidationError.
func validateStruct(req interface{}, message string) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return entity.NewValidationError(message, nil)
	}

	fields := make(map[string]string, len(fieldErrors))
	missing := false
	for _, fe := range fieldErrors {
		switch fe.Tag() {
		case "required", "notblank":
			missing = true
			fields[fe.Field()] = "is required"
		case "email":
			fields[fe.Field()] = "must be a valid email address"
		case "min":
			fields[fe.Field()] = "must be at least " + fe.Param()
		case "max":
			fields[fe.Field()] = "must be at most " + fe.Param()
		default:
			fields[fe.Field()] = "is invalid"
		}
	}

	if missing {
		message = msgAllFieldsRequired
	}
	return entity.NewValidationError(message, fields)
}
