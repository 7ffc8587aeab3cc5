// Package fault defines the error categories shared by all services.
// Handlers map these to HTTP status codes in pkg/web.
package fault

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
)

// NotFound wraps ErrNotFound with the name of the missing resource.
func NotFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

// Forbidden wraps ErrForbidden with the reason the action was denied.
func Forbidden(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrForbidden)
}

// InvalidState wraps ErrInvalidState with a description of the conflict.
func InvalidState(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrInvalidState)
}

// Invalid wraps ErrValidation with the failing field or rule.
func Invalid(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrValidation)
}
