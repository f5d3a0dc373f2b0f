package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeBucketID_NFC(t *testing.T) {
	// "é" composed (U+00E9) vs decomposed (U+0065 U+0301) must resolve
	// to the same bucket identity.
	composed := "caf\u00e9-watcher"
	decomposed := "cafe\u0301-watcher"

	assert.NotEqual(t, composed, decomposed)
	assert.Equal(t, NormalizeBucketID(composed), NormalizeBucketID(decomposed))
}

func TestNormalizeBucketID_ASCIIUnchanged(t *testing.T) {
	assert.Equal(t, "aw-watcher-afk_host1", NormalizeBucketID("aw-watcher-afk_host1"))
}

func TestBucketMetadata_Normalize(t *testing.T) {
	zone := time.FixedZone("UTC+1", 3600)
	b := BucketMetadata{
		ID:      "b1",
		Type:    "afk",
		Created: time.Date(2024, 3, 1, 13, 0, 0, 0, zone),
	}

	got := b.Normalize()
	assert.Equal(t, "b1", got.Name, "empty name defaults to the bucket id")
	assert.Equal(t, time.UTC, got.Created.Location())
	assert.True(t, got.Created.Equal(b.Created))
}

func TestBucketMetadata_Normalize_KeepsExplicitName(t *testing.T) {
	b := BucketMetadata{ID: "b1", Name: "AFK watcher"}
	assert.Equal(t, "AFK watcher", b.Normalize().Name)
}

func TestBucketMetadata_Validate(t *testing.T) {
	assert.NoError(t, BucketMetadata{ID: "b1"}.Validate())

	err := BucketMetadata{}.Validate()
	assert.Error(t, err)
	assert.True(t, IsValidation(err))
}
