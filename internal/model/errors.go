package model

import (
	"errors"
	"fmt"
)

// StoreError is the structured error every storage operation reports.
// It carries a category code plus the bucket/event keys involved so
// failures stay diagnosable without parsing messages.
type StoreError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// BucketID identifies the affected bucket, when one is involved.
	BucketID string

	// EventID identifies the affected event, when one is involved.
	EventID EventID

	// Cause is the underlying backend error, when one exists.
	Cause error
}

// ErrorCode categorizes storage errors.
type ErrorCode string

const (
	// ErrCodeBucketNotFound indicates an operation referenced an
	// unregistered bucket id.
	ErrCodeBucketNotFound ErrorCode = "BUCKET_NOT_FOUND"

	// ErrCodeDuplicateBucket indicates a create collided with an
	// existing bucket id.
	ErrCodeDuplicateBucket ErrorCode = "DUPLICATE_BUCKET"

	// ErrCodeEventNotFound indicates a precondition-style lookup
	// (replace, replace-last) found no event.
	ErrCodeEventNotFound ErrorCode = "EVENT_NOT_FOUND"

	// ErrCodeBackendUnavailable indicates a connection or transport
	// level failure. The store never retries these internally.
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"

	// ErrCodeValidation indicates the caller handed the store an
	// invalid value (negative duration, empty key, ...).
	ErrCodeValidation ErrorCode = "VALIDATION"
)

// Error implements the error interface.
func (e *StoreError) Error() string {
	switch {
	case e.BucketID != "" && e.EventID.Valid:
		return fmt.Sprintf("%s: %s (bucket=%s, event=%s)", e.Code, e.Message, e.BucketID, e.EventID)
	case e.BucketID != "":
		return fmt.Sprintf("%s: %s (bucket=%s)", e.Code, e.Message, e.BucketID)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Unwrap exposes the underlying backend error for errors.Is/As chains.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewBucketNotFound reports an operation against an unknown bucket.
func NewBucketNotFound(bucketID string) *StoreError {
	return &StoreError{
		Code:     ErrCodeBucketNotFound,
		Message:  "bucket does not exist",
		BucketID: bucketID,
	}
}

// NewDuplicateBucket reports a create against an already-registered id.
func NewDuplicateBucket(bucketID string) *StoreError {
	return &StoreError{
		Code:     ErrCodeDuplicateBucket,
		Message:  "bucket already exists",
		BucketID: bucketID,
	}
}

// NewEventNotFound reports a missing event where one was required.
// Pass a zero EventID when the operation addressed "the last event"
// rather than a concrete identifier.
func NewEventNotFound(bucketID string, eventID EventID) *StoreError {
	return &StoreError{
		Code:     ErrCodeEventNotFound,
		Message:  "event does not exist",
		BucketID: bucketID,
		EventID:  eventID,
	}
}

// NewBackendUnavailable wraps a transport-level failure.
func NewBackendUnavailable(backend string, cause error) *StoreError {
	return &StoreError{
		Code:    ErrCodeBackendUnavailable,
		Message: fmt.Sprintf("backend %q unreachable", backend),
		Cause:   cause,
	}
}

// NewValidationError reports invalid caller input.
func NewValidationError(message string) *StoreError {
	return &StoreError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

func hasCode(err error, code ErrorCode) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsBucketNotFound reports whether err is a bucket-not-found error.
// Handles wrapped errors via errors.As.
func IsBucketNotFound(err error) bool { return hasCode(err, ErrCodeBucketNotFound) }

// IsDuplicateBucket reports whether err is a duplicate-bucket error.
func IsDuplicateBucket(err error) bool { return hasCode(err, ErrCodeDuplicateBucket) }

// IsEventNotFound reports whether err is an event-not-found error.
func IsEventNotFound(err error) bool { return hasCode(err, ErrCodeEventNotFound) }

// IsBackendUnavailable reports whether err is a transport-level failure.
func IsBackendUnavailable(err error) bool { return hasCode(err, ErrCodeBackendUnavailable) }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return hasCode(err, ErrCodeValidation) }
