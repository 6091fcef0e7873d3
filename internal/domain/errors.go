package domain

import (
	"errors"
	"fmt"
)

// ErrUploadNotFound signals that no upload exists for the given id. The
// boundary layer maps it to a 404 response.
var ErrUploadNotFound = errors.New("upload not found")

// ValidationError marks caller input rejected before any work runs. The
// boundary layer maps it to a 400 response.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
