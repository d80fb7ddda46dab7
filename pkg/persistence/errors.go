// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDefinitionNotFound indicates a workflow definition was not found.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrInstanceNotFound indicates a workflow instance was not found.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrStepInstanceNotFound indicates a step instance was not found.
	ErrStepInstanceNotFound = errors.New("step instance not found")

	// ErrInstanceAlreadyExists indicates an instance with the same id exists.
	ErrInstanceAlreadyExists = errors.New("workflow instance already exists")
)

// InstanceError wraps instance-related errors with operation context.
type InstanceError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Update")
	InstanceID string
	Err        error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("%s operation failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for instance errors.
func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewInstanceError creates a new instance error with context.
func NewInstanceError(op, instanceID string, err error) *InstanceError {
	return &InstanceError{
		Op:         op,
		InstanceID: instanceID,
		Err:        err,
	}
}

// IsDefinitionNotFound reports whether err wraps ErrDefinitionNotFound.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsInstanceNotFound reports whether err wraps ErrInstanceNotFound.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsStepInstanceNotFound reports whether err wraps ErrStepInstanceNotFound.
func IsStepInstanceNotFound(err error) bool {
	return errors.Is(err, ErrStepInstanceNotFound)
}
