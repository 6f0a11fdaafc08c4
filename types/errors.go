package types

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownUser is returned when a request names a user the registry does not know.
	ErrUnknownUser = errors.New("unknown user")

	// ErrInvalidArgument is returned when a request fails boundary validation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUserExists is returned when registering a user twice.
	ErrUserExists = errors.New("user already registered")
)

// UnknownUserError carries the id that failed the registry lookup.
type UnknownUserError struct {
	UserID string
}

func (e *UnknownUserError) Error() string {
	return fmt.Sprintf("unknown user %q", e.UserID)
}

func (e *UnknownUserError) Unwrap() error {
	return ErrUnknownUser
}

// InvalidArgumentError describes which input was rejected and why.
type InvalidArgumentError struct {
	Field   string
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Message)
}

func (e *InvalidArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// NewInvalidArgumentError creates a new InvalidArgumentError.
func NewInvalidArgumentError(field, message string) *InvalidArgumentError {
	return &InvalidArgumentError{Field: field, Message: message}
}
