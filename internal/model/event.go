package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventID tags a backend-assigned event identity. The zero value marks a
// pending event that has not been persisted yet. Keeping the valid flag
// explicit (instead of treating 0 as "unset") makes the insert-vs-update
// split in InsertMany a deliberate decision at the call boundary.
type EventID struct {
	Value int64
	Valid bool
}

// NewEventID wraps a backend-assigned identifier.
func NewEventID(v int64) EventID {
	return EventID{Value: v, Valid: true}
}

// String renders the id for diagnostics; pending ids render as "pending".
func (id EventID) String() string {
	if !id.Valid {
		return "pending"
	}
	return fmt.Sprintf("%d", id.Value)
}

// Event is a timestamped interval with an opaque payload. It denotes the
// interval [Timestamp, Timestamp+Duration] and belongs to exactly one
// bucket for its whole life.
type Event struct {
	// ID is assigned by the backend on first insert and never changes
	// afterwards. A zero ID means the event is pending.
	ID EventID

	// Timestamp is the interval start, always held in UTC.
	Timestamp time.Time

	// Duration is the non-negative elapsed time of the interval.
	Duration time.Duration

	// Data is an opaque key/value payload. The store transports it
	// verbatim and never interprets it.
	Data map[string]any
}

// End returns the interval's end point.
func (e Event) End() time.Time {
	return e.Timestamp.Add(e.Duration)
}

// Normalize returns the event with its timestamp in UTC.
func (e Event) Normalize() Event {
	e.Timestamp = e.Timestamp.UTC()
	return e
}

// Validate checks the invariants every stored event must satisfy.
func (e Event) Validate() error {
	if e.Duration < 0 {
		return NewValidationError(fmt.Sprintf("event duration must be non-negative, got %v", e.Duration))
	}
	if e.Timestamp.IsZero() {
		return NewValidationError("event timestamp must be set")
	}
	return nil
}

// Partition splits events into pending inserts (no identity yet) and
// persisted updates (identity already assigned). Order is preserved
// within each group.
func Partition(events []Event) (pending, persisted []Event) {
	for _, e := range events {
		if e.ID.Valid {
			persisted = append(persisted, e)
		} else {
			pending = append(pending, e)
		}
	}
	return pending, persisted
}

// eventJSON is the wire shape shared by every backend and the CLI:
// a numeric id (omitted while pending), an RFC 3339 UTC timestamp and the
// duration expressed in seconds.
type eventJSON struct {
	ID        *int64         `json:"id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  float64        `json:"duration"`
	Data      map[string]any `json:"data"`
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		Timestamp: e.Timestamp.UTC(),
		Duration:  e.Duration.Seconds(),
		Data:      e.Data,
	}
	if e.ID.Valid {
		v := e.ID.Value
		out.ID = &v
	}
	if out.Data == nil {
		out.Data = map[string]any{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var in eventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	e.ID = EventID{}
	if in.ID != nil {
		e.ID = NewEventID(*in.ID)
	}
	e.Timestamp = in.Timestamp.UTC()
	e.Duration = time.Duration(in.Duration * float64(time.Second))
	e.Data = in.Data
	return nil
}
