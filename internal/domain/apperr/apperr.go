// Package apperr defines the error classes shared by every domain service.
//
// Each class has a sentinel (ErrValidation, ErrNotFound, ErrConflict) that
// callers match with errors.Is, and a typed error carrying the offending
// field, entity, or state that callers extract with errors.As.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Error classes.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

// ValidationError reports malformed input or a failed business precondition.
type ValidationError struct {
	Field  string
	Reason string
}

// Validation returns a ValidationError for field.
func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

// NotFound returns a NotFoundError for the entity kind with the given id.
func NotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports an entity whose current state precludes the operation.
type ConflictError struct {
	Kind   string
	ID     string
	Reason string
}

// Conflict returns a ConflictError for the entity kind with the given id.
func Conflict(kind, id, format string, args ...any) *ConflictError {
	return &ConflictError{Kind: kind, ID: id, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.ID, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
