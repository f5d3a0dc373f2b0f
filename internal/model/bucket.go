package model

import (
	"time"

	"golang.org/x/text/unicode/norm"
)

// BucketMetadata is the backend-independent description of a bucket. The
// shape is stable across storage backends: the same fields come back no
// matter which engine persisted them.
type BucketMetadata struct {
	// ID is the caller-chosen public handle, unique across an engine
	// instance and immutable once created.
	ID string `json:"id"`

	// Name is descriptive only. An empty name defaults to the bucket id.
	Name string `json:"name"`

	// Type classifies what the bucket's events track (e.g. "afk",
	// "currentwindow").
	Type string `json:"type"`

	// Client names the producer writing into the bucket.
	Client string `json:"client"`

	// Hostname is the machine the producer runs on.
	Hostname string `json:"hostname"`

	// Created is set once at bucket creation and never changes.
	Created time.Time `json:"created"`
}

// NormalizeBucketID returns the canonical form of a caller-chosen bucket id.
// Ids are normalized to Unicode NFC so visually identical ids resolve to the
// same bucket regardless of how the caller composed them.
func NormalizeBucketID(id string) string {
	return norm.NFC.String(id)
}

// Normalize returns the metadata in canonical form: NFC id, name defaulted
// to the id, and the created timestamp in UTC.
func (b BucketMetadata) Normalize() BucketMetadata {
	b.ID = NormalizeBucketID(b.ID)
	if b.Name == "" {
		b.Name = b.ID
	}
	if !b.Created.IsZero() {
		b.Created = b.Created.UTC()
	}
	return b
}

// Validate checks the constraints a bucket must satisfy before it is
// handed to a backend.
func (b BucketMetadata) Validate() error {
	if b.ID == "" {
		return NewValidationError("bucket id must not be empty")
	}
	return nil
}
