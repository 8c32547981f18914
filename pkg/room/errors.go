package room

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no room exists for an interaction id
	ErrNotFound = errors.New("room not found")

	// ErrAlreadyExists is returned when creating a room whose
	// interaction id is already registered
	ErrAlreadyExists = errors.New("room already exists")

	// ErrParticipantNotFound is returned when a user is not in the room
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrPermissionDenied is returned when a caller lacks the right to
	// perform an operation
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRoomCompleted is returned when an operation targets a room
	// whose encounter has terminally finished
	ErrRoomCompleted = errors.New("room is completed")

	// ErrShuttingDown is returned when the manager no longer accepts work
	ErrShuttingDown = errors.New("room manager is shutting down")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
