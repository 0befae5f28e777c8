// Package shared contains common domain types, errors, events, and the
// trigger message contract used across all domain packages. This package
// has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
// The dispatcher classifies failures through these sentinels: validation
// and not-found errors are dropped after logging, transient storage
// errors are retried with backoff, concurrency conflicts are retried
// once and then dead-lettered.
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyProcessed = errors.New("already processed")

	// Storage and concurrency errors
	ErrTransientStorage       = errors.New("transient storage error")
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Catalogue errors
	ErrCatalogueRule = errors.New("malformed achievement rule")

	// External service errors
	ErrExternalService = errors.New("external service error")
	ErrTimeout         = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "streak", "achievement"
	Op      string // Operation that failed, e.g., "ApplyEvent", "Evaluate"
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

// Progress domain errors
var (
	ErrUserStatNotFound   = NewDomainError("stats", "Get", ErrNotFound, "user stat not found")
	ErrItemNotFound       = NewDomainError("progress", "ResolveItem", ErrNotFound, "referenced study item not found")
	ErrProgressNotFound   = NewDomainError("progress", "Get", ErrNotFound, "item progress not found")
	ErrUnknownItemKind    = NewDomainError("progress", "Validate", ErrInvalidInput, "unknown item kind")
	ErrDuplicateEvent     = NewDomainError("progress", "ApplyEvent", ErrAlreadyProcessed, "dedup token already applied")
	ErrMissingDedupToken  = NewDomainError("progress", "Validate", ErrEmptyValue, "dedup token is required")
	ErrInvalidEventUserID = NewDomainError("progress", "Validate", ErrInvalidInput, "user id must be positive")
)

// Streak domain errors
var (
	ErrActivityNotFound = NewDomainError("streak", "Get", ErrNotFound, "daily activity not found")
	ErrDayInFuture      = NewDomainError("streak", "Validate", ErrValueOutOfRange, "activity day is in the future")
)

// Achievement domain errors
var (
	ErrAchievementNotFound = NewDomainError("achievement", "Get", ErrNotFound, "achievement not found")
	ErrAlreadyAwarded      = NewDomainError("achievement", "Award", ErrAlreadyExists, "achievement already awarded")
	ErrUnknownRuleCounter  = NewDomainError("achievement", "Evaluate", ErrCatalogueRule, "rule references unknown counter")
)

// Notification errors
var (
	ErrNotificationFailed = NewDomainError("notification", "Send", ErrExternalService, "failed to deliver notification")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable checks if the operation can be retried. Validation and
// not-found failures indicate upstream inconsistency and must be dropped.
func IsRetryable(err error) bool {
	if IsValidation(err) || IsNotFound(err) {
		return false
	}
	return errors.Is(err, ErrTransientStorage) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrExternalService)
}
