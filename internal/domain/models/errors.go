package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrModelUnavailable = errors.New("load-risk model unavailable")
	ErrNotification     = errors.New("notification delivery failed")
	ErrStorage          = errors.New("storage failure")
	ErrDuplicateRecord  = errors.New("decision already recorded")
	ErrLedgerFull       = errors.New("ledger full")
	ErrStaleSnapshot    = errors.New("snapshot not newer than last evaluated")
)

// ValidationError reports a snapshot or request field that breaks an invariant.
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

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ModelUnavailableError wraps any failure of the external predictor (timeout, transport,
// out-of-range answer). The scorer recovers from it and falls back to rules.
type ModelUnavailableError struct {
	Err error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", ErrModelUnavailable, e.Err)
}

func (e *ModelUnavailableError) Unwrap() []error { return []error{ErrModelUnavailable, e.Err} }

// NotificationError wraps a notifier failure.
type NotificationError struct {
	Channel string
	Err     error
}

func (e *NotificationError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("%s: %v", ErrNotification, e.Err)
	}
	return fmt.Sprintf("%s via %s: %v", ErrNotification, e.Channel, e.Err)
}

func (e *NotificationError) Unwrap() []error { return []error{ErrNotification, e.Err} }

// StorageError wraps a ledger or state store failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorage, e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }
