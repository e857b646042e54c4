package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrUserAlreadyExists  = errors.New("username or email already registered")
	ErrInactiveUser       = errors.New("inactive user")
	ErrValidationFailed   = errors.New("validation failed")
	ErrUnauthorized       = errors.New("could not validate credentials")
	ErrInternalServer     = errors.New("internal server error")
	ErrBadRequest         = errors.New("bad request")
	ErrNotFound           = errors.New("todo not found")

	ErrConfigFileReadFailed = errors.New("failed to read config file")
	ErrConfigParseFailed    = errors.New("failed to parse config file")
	ErrConfigInvalidFormat  = errors.New("invalid config value")

	ErrInvalidGzipRequest    = errors.New("invalid gzip request body")
	ErrGzipCompressionFailed = errors.New("gzip compression failed")
)

// Validation errors. Each wraps ErrValidationFailed so callers can match the
// whole family with errors.Is.
var (
	ErrInvalidUsername     = validation("username must be 3-50 characters of letters, digits, underscores or hyphens")
	ErrInvalidEmail        = validation("email is not a valid address")
	ErrInvalidPassword     = validation("password must be 8-128 characters")
	ErrInvalidTitle        = validation("title must be 1-200 characters and cannot be empty")
	ErrInvalidDescription  = validation("description must be at most 1000 characters")
	ErrInvalidCompleted    = validation("completed must be a boolean")
	ErrInvalidSkip         = validation("skip must be an integer greater than or equal to 0")
	ErrInvalidLimit        = validation("limit must be an integer between 1 and 100")
	ErrInvalidSortOrder    = validation("sort_order must match ^(asc|desc)$")
	ErrInvalidExportFormat = validation("Invalid format. Use 'json' or 'csv'.")
	ErrInvalidPatch        = validation("update body must be a JSON object")
)

func validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, msg)
}

// IsValidation reports whether err belongs to the validation family.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidationFailed)
}

// Message returns the part of a validation error meant for the client.
func Message(err error) string {
	return strings.TrimPrefix(err.Error(), ErrValidationFailed.Error()+": ")
}
