package model

import "time"

// Credential is an auxiliary record keyed by its email. The store never
// interprets the tokens; it only transports them. Saving a credential is a
// full replace: the previous record under the same email is dropped first.
type Credential struct {
	DeviceID     string    `json:"device_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`

	// LastUsedAt is stamped by the store on every save and drives the
	// usage tracker's "active since" query.
	LastUsedAt time.Time `json:"last_used_at"`
}

// Validate checks the natural-key constraint.
func (c Credential) Validate() error {
	if c.Email == "" {
		return NewValidationError("credential email must not be empty")
	}
	return nil
}

// Report is a per-day summary record keyed by (email, calendar day).
type Report struct {
	Email     string    `json:"email"`
	SpentTime float64   `json:"spent_time"`
	CallTime  float64   `json:"call_time"`
	Date      time.Time `json:"date"`
	WFH       bool      `json:"wfh"`
}

// ActiveTime is the derived total callers read from a fetched report.
func (r Report) ActiveTime() float64 {
	return r.SpentTime + r.CallTime
}

// Validate checks the natural-key constraint.
func (r Report) Validate() error {
	if r.Email == "" {
		return NewValidationError("report email must not be empty")
	}
	if r.Date.IsZero() {
		return NewValidationError("report date must be set")
	}
	return nil
}

// Day truncates an instant to the start of its UTC calendar day. Report
// lookups and the usage tracker both match on whole days.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
