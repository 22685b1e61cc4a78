// Package persistence provides standardized error types for storage
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDefinitionNotFound indicates a definition was not found by the given identifier.
	ErrDefinitionNotFound = errors.New("definition not found")

	// ErrActiveDefinitionNotFound indicates no active version exists for the given group.
	ErrActiveDefinitionNotFound = errors.New("active definition not found")

	// ErrInstanceNotFound indicates an instance was not found by the given identifier.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrTaskNotFound indicates a task was not found by the given identifier.
	ErrTaskNotFound = errors.New("task not found")

	// ErrDecisionTableNotFound indicates a decision table was not found by the given identifier.
	ErrDecisionTableNotFound = errors.New("decision table not found")
)

// StoreError wraps storage errors with operation context.
type StoreError struct {
	Op     string // Operation being performed (e.g. "GetByID", "Save")
	Entity string // Entity kind (e.g. "definition", "task")
	ID     string // Entity ID if applicable
	Err    error  // Underlying error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new storage error with context.
func NewStoreError(op, entity, id string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsDefinitionNotFound reports whether err is a definition lookup miss.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound) || errors.Is(err, ErrActiveDefinitionNotFound)
}

// IsInstanceNotFound reports whether err is an instance lookup miss.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsTaskNotFound reports whether err is a task lookup miss.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsDecisionTableNotFound reports whether err is a decision table lookup miss.
func IsDecisionTableNotFound(err error) bool {
	return errors.Is(err, ErrDecisionTableNotFound)
}
