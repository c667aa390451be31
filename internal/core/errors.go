package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence warning")
)

// ValidationError reports an invalid or missing field. The ledger is never
// mutated when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError reports an edit or delete on an unknown id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("expense %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// PersistenceWarning wraps a failed load or save against a backend. It is
// informational: the in-memory ledger stays the source of truth.
type PersistenceWarning struct {
	Backend string
	Op      string
	Err     error
}

func (w *PersistenceWarning) Error() string {
	return fmt.Sprintf("%s %s failed: %v", w.Backend, w.Op, w.Err)
}

func (w *PersistenceWarning) Unwrap() error {
	return w.Err
}

func (w *PersistenceWarning) Is(target error) bool {
	return target == ErrPersistence
}
