package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyIdentifier is returned when a principal identifier is blank.
	ErrEmptyIdentifier = errors.New("identifier cannot be empty")

	// ErrInvalidIdentifier is returned when an identifier is not an email address.
	ErrInvalidIdentifier = errors.New("identifier must be a valid email address")

	// ErrEmptyCredentialHash is returned when a principal has no stored hash.
	ErrEmptyCredentialHash = errors.New("credential hash cannot be empty")

	// ErrInvalidRole is returned when a role is not one of the known roles.
	ErrInvalidRole = errors.New("invalid role")
)

// ValidationError carries the field that failed validation alongside a
// sentinel error for errors.Is matching.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Unwrap returns the wrapped sentinel.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is reports every ValidationError as ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
