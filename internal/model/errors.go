package model

import (
	"errors"
	"fmt"
)

var (
	// ErrPermission is returned when the actor lacks the role or ownership an
	// operation requires.
	ErrPermission = errors.New("permission denied")

	// ErrInvalidState is returned when an operation is not legal for the
	// report's current lifecycle state.
	ErrInvalidState = errors.New("invalid state")

	// ErrUnauthenticated is returned when an operation needs an identified actor
	// and none was supplied.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrNotFound is returned when a report or user id matches no record.
	ErrNotFound = errors.New("not found")

	// ErrStorage wraps substrate read/write failures.
	ErrStorage = errors.New("storage failure")
)

// ValidationError reports malformed input. Field names the offending field
// using its serialized (JSON) name.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// Invalid is shorthand for constructing a *ValidationError.
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
