package models

import (
	"regexp"

	"todoapi/internal/domain/errors"

	"github.com/go-playground/validator"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

// Validate runs the struct tag rules and maps the first failing field to a
// domain validation error.
func Validate(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return validationErrorToDomain(err)
	}
	return nil
}

func validationErrorToDomain(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, verr := range verrs {
			switch verr.Field() {
			case "Username":
				return errors.ErrInvalidUsername
			case "Email":
				return errors.ErrInvalidEmail
			case "Password":
				return errors.ErrInvalidPassword
			case "Title":
				return errors.ErrInvalidTitle
			case "Description":
				return errors.ErrInvalidDescription
			}
		}
	}
	return errors.ErrValidationFailed
}
