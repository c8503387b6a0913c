package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ledger error taxonomy. Callers match them with errors.Is.
var (
	// ErrValidation marks caller-supplied input that was rejected before any mutation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing entity or one owned by another user.
	ErrNotFound = errors.New("not found")

	// ErrStateConflict marks an operation that is illegal in the entity's current state.
	ErrStateConflict = errors.New("state conflict")

	// ErrStorageUnavailable is returned once transient storage retries are exhausted.
	ErrStorageUnavailable = errors.New("storage temporarily unavailable")
)

// ValidationError describes which field was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConflictError names the entity and the state that blocked the operation.
type ConflictError struct {
	Entity string
	ID     string
	State  string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s is %s: %s", e.Entity, e.ID, e.State, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrStateConflict }

// NotFoundError names the entity that could not be resolved for the user.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}
