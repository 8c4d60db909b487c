package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Validator struct {
	validate *validator.Validate
}

// NewValidator reports fields by their json tag, falling back to the env
// tag used on configuration structs.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]; name != "" {
			if name == "-" {
				return ""
			}
			return name
		}
		if env := fld.Tag.Get("env"); env != "" {
			return env
		}
		return strings.ToLower(fld.Name)
	})

	return &Validator{
		validate: v,
	}
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return formatValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func formatValidationErrors(errs validator.ValidationErrors) error {
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		var message string
		field := err.Field()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", field)
		case "min":
			message = fmt.Sprintf("%s must be at least %s", field, err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of [%s]", field, err.Param())
		case "gt", "gte":
			message = fmt.Sprintf("%s must be greater than %s", field, err.Param())
		default:
			message = fmt.Sprintf("%s failed validation for %s", field, err.Tag())
		}
		messages = append(messages, message)
	}

	return errors.New(strings.Join(messages, "; "))
}
