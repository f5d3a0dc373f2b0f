package datastore

import "time"

// Clock supplies wall time to the bucket-directory cache and the record
// stores. Injecting it keeps cache-freshness behavior unit-testable
// without real time delays.
type Clock interface {
	Now() time.Time
}

// systemClock is the production clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
