package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventID_ZeroIsPending(t *testing.T) {
	var id EventID
	assert.False(t, id.Valid)
	assert.Equal(t, "pending", id.String())

	assigned := NewEventID(42)
	assert.True(t, assigned.Valid)
	assert.Equal(t, "42", assigned.String())
}

func TestEvent_Validate(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	ok := Event{Timestamp: ts, Duration: 5 * time.Second}
	assert.NoError(t, ok.Validate())

	zeroDur := Event{Timestamp: ts}
	assert.NoError(t, zeroDur.Validate())

	negative := Event{Timestamp: ts, Duration: -time.Second}
	err := negative.Validate()
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	noTimestamp := Event{Duration: time.Second}
	err = noTimestamp.Validate()
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestEvent_End(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := Event{Timestamp: ts, Duration: 90 * time.Second}
	assert.True(t, e.End().Equal(ts.Add(90*time.Second)))
}

func TestEvent_Normalize(t *testing.T) {
	zone := time.FixedZone("UTC+5", 5*3600)
	local := time.Date(2024, 3, 1, 17, 0, 0, 0, zone)

	e := Event{Timestamp: local, Duration: time.Second}.Normalize()
	assert.Equal(t, time.UTC, e.Timestamp.Location())
	assert.True(t, e.Timestamp.Equal(local))
}

func TestPartition(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{ID: NewEventID(1), Timestamp: ts},
		{Timestamp: ts.Add(time.Second)},
		{ID: NewEventID(7), Timestamp: ts.Add(2 * time.Second)},
		{Timestamp: ts.Add(3 * time.Second)},
	}

	pending, persisted := Partition(events)
	require.Len(t, pending, 2)
	require.Len(t, persisted, 2)
	assert.False(t, pending[0].ID.Valid)
	assert.Equal(t, int64(1), persisted[0].ID.Value)
	assert.Equal(t, int64(7), persisted[1].ID.Value)
	// Order within each group is preserved.
	assert.True(t, pending[0].Timestamp.Before(pending[1].Timestamp))
}

func TestPartition_Empty(t *testing.T) {
	pending, persisted := Partition(nil)
	assert.Empty(t, pending)
	assert.Empty(t, persisted)
}

func TestEvent_JSONRoundTrip(t *testing.T) {
	e := Event{
		ID:        NewEventID(12),
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 500000000, time.UTC),
		Duration:  90*time.Second + 500*time.Millisecond,
		Data:      map[string]any{"app": "firefox", "title": "docs"},
	}

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, e.ID, got.ID)
	assert.True(t, got.Timestamp.Equal(e.Timestamp))
	assert.Equal(t, e.Duration, got.Duration)
	assert.Equal(t, e.Data, got.Data)
}

func TestEvent_JSONShape(t *testing.T) {
	e := Event{
		ID:        NewEventID(3),
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  90 * time.Second,
		Data:      map[string]any{"app": "firefox"},
	}

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"id":3,"timestamp":"2024-03-01T12:00:00Z","duration":90,"data":{"app":"firefox"}}`,
		string(data))
}

func TestEvent_JSONPendingOmitsID(t *testing.T) {
	e := Event{
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  time.Second,
	}

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"timestamp":"2024-03-01T12:00:00Z","duration":1,"data":{}}`,
		string(data))

	var got Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.False(t, got.ID.Valid)
}

func TestEvent_JSONNormalizesToUTC(t *testing.T) {
	zone := time.FixedZone("UTC-3", -3*3600)
	e := Event{
		Timestamp: time.Date(2024, 3, 1, 9, 0, 0, 0, zone),
		Duration:  time.Second,
	}

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"2024-03-01T12:00:00Z"`)
}
