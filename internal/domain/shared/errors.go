// Package shared contains common domain types, errors and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrConflict      = errors.New("conflicting operation in progress")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Store errors
	ErrStore   = errors.New("store error")
	ErrTimeout = errors.New("operation timeout")

	// Consistency errors
	ErrPartiallyApplied = errors.New("operation partially applied")
	ErrMalformedPayload = errors.New("malformed grade payload")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "assignment", "evaluation", "class"
	Op      string // Operation that failed, e.g., "Create", "Recompute"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Validation builds a validation error for the given domain operation.
func Validation(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrValidation, message)
}

// StoreFailure wraps a persistence error. Context deadline errors keep their
// identity so callers can tell a timeout from a broken store.
func StoreFailure(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrStore, "store operation failed", err)
}

// Student domain errors
var (
	ErrStudentNotFound   = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrStudentEmailTaken = NewDomainError("student", "Create", ErrAlreadyExists, "email already registered")
	ErrStudentNotInClass = NewDomainError("student", "Roster", ErrInvalidInput, "student is not on the class roster")
)

// Class domain errors
var (
	ErrClassNotFound = NewDomainError("class", "Find", ErrNotFound, "class not found")
)

// Assignment domain errors
var (
	ErrAssignmentNotFound    = NewDomainError("assignment", "Find", ErrNotFound, "assignment not found")
	ErrAggregateNotWritable  = NewDomainError("assignment", "Update", ErrValidation, "mediaGeral is derived and cannot be set directly")
	ErrInvalidAssignmentDate = NewDomainError("assignment", "Validate", ErrValueOutOfRange, "end date precedes start date")
)

// Evaluation domain errors
var (
	ErrEvaluationNotFound = NewDomainError("evaluation", "Find", ErrNotFound, "evaluation not found")
	ErrEvaluatorAmbiguous = NewDomainError("evaluation", "Validate", ErrValidation, "exactly one of evaluatorStudentId or evaluatorInstructorId is required")
	ErrPayloadRequired    = NewDomainError("evaluation", "Validate", ErrValidation, "grade payload is required")
	ErrPayloadNotObject   = NewDomainError("evaluation", "Validate", ErrValidation, "grade payload must be a JSON object")
)

// Cascade errors
var (
	ErrCascadeNotFound   = NewDomainError("cascade", "Resume", ErrNotFound, "cascade run not found")
	ErrCascadeCompleted  = NewDomainError("cascade", "Resume", ErrInvalidInput, "cascade run already completed")
	ErrCascadeInProgress = NewDomainError("cascade", "Resume", ErrConflict, "cascade run is still being applied")
	ErrRecomputeLockBusy = NewDomainError("aggregate", "Lock", ErrTimeout, "recompute lock is held by another writer")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsConflict checks if the error reports an operation already under way.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsStore checks if the error came from the persistence layer.
func IsStore(err error) bool {
	return errors.Is(err, ErrStore)
}

// IsTimeout checks if the operation ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsPartiallyApplied reports whether a multi-step operation stopped midway.
func IsPartiallyApplied(err error) bool {
	return errors.Is(err, ErrPartiallyApplied)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrStore) ||
		errors.Is(err, ErrPartiallyApplied)
}
