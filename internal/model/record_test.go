package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCredential_Validate(t *testing.T) {
	assert.NoError(t, Credential{Email: "a@b.se"}.Validate())
	assert.True(t, IsValidation(Credential{}.Validate()))
}

func TestReport_Validate(t *testing.T) {
	ok := Report{Email: "a@b.se", Date: time.Now()}
	assert.NoError(t, ok.Validate())

	assert.True(t, IsValidation(Report{Date: time.Now()}.Validate()))
	assert.True(t, IsValidation(Report{Email: "a@b.se"}.Validate()))
}

func TestReport_ActiveTime(t *testing.T) {
	r := Report{SpentTime: 3600, CallTime: 1800}
	assert.Equal(t, 5400.0, r.ActiveTime())
}

func TestDay(t *testing.T) {
	zone := time.FixedZone("UTC+9", 9*3600)

	// 2024-03-02 01:30 +09:00 is 2024-03-01 16:30 UTC.
	local := time.Date(2024, 3, 2, 1, 30, 0, 0, zone)
	got := Day(local)

	assert.True(t, got.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, got.Location())
}

func TestDay_Idempotent(t *testing.T) {
	d := Day(time.Now())
	assert.True(t, Day(d).Equal(d))
}
