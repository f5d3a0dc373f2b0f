package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreError_Messages(t *testing.T) {
	err := NewBucketNotFound("b1")
	assert.Contains(t, err.Error(), "BUCKET_NOT_FOUND")
	assert.Contains(t, err.Error(), "bucket=b1")

	err = NewEventNotFound("b1", NewEventID(9))
	assert.Contains(t, err.Error(), "event=9")

	err = NewEventNotFound("b1", EventID{})
	assert.Contains(t, err.Error(), "bucket=b1")
	assert.NotContains(t, err.Error(), "event=")
}

func TestStoreError_Predicates(t *testing.T) {
	assert.True(t, IsBucketNotFound(NewBucketNotFound("b1")))
	assert.True(t, IsDuplicateBucket(NewDuplicateBucket("b1")))
	assert.True(t, IsEventNotFound(NewEventNotFound("b1", NewEventID(1))))
	assert.True(t, IsValidation(NewValidationError("bad")))
	assert.True(t, IsBackendUnavailable(NewBackendUnavailable("sqlite", errors.New("locked"))))

	assert.False(t, IsBucketNotFound(NewDuplicateBucket("b1")))
	assert.False(t, IsBucketNotFound(errors.New("plain")))
	assert.False(t, IsBucketNotFound(nil))
}

func TestStoreError_WrappedPredicates(t *testing.T) {
	wrapped := fmt.Errorf("get metadata: %w", NewBucketNotFound("b1"))
	assert.True(t, IsBucketNotFound(wrapped))
}

func TestBackendUnavailable_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewBackendUnavailable("badger", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "badger")
	assert.Contains(t, err.Error(), "connection refused")
}
