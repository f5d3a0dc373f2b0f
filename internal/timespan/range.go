// Package timespan provides the interval math shared by every storage
// backend: the overlap test that decides whether an event belongs to a
// queried time range, and the clipping that trims returned intervals to
// the range boundaries.
//
// All comparisons happen after normalizing both the range bounds and the
// event timestamps to UTC. A bound left at its zero value is open.
package timespan

import "time"

// Range is a queried time range. A zero Start or End leaves that side of
// the range open.
type Range struct {
	Start time.Time
	End   time.Time
}

// New builds a range from the given bounds. Either bound may be the zero
// time to leave that side open.
func New(start, end time.Time) Range {
	return Range{Start: start, End: end}
}

// HasStart reports whether the lower bound is set.
func (r Range) HasStart() bool { return !r.Start.IsZero() }

// HasEnd reports whether the upper bound is set.
func (r Range) HasEnd() bool { return !r.End.IsZero() }

// UTC returns the range with both bounds normalized to UTC.
// Zero bounds stay zero.
func (r Range) UTC() Range {
	if r.HasStart() {
		r.Start = r.Start.UTC()
	}
	if r.HasEnd() {
		r.End = r.End.UTC()
	}
	return r
}

// Overlaps reports whether the interval [ts, ts+dur] intersects the range.
// An event overlaps iff its timestamp is not past End and its end point is
// not before Start. A range with both bounds open overlaps everything.
func (r Range) Overlaps(ts time.Time, dur time.Duration) bool {
	r = r.UTC()
	ts = ts.UTC()
	if r.HasEnd() && ts.After(r.End) {
		return false
	}
	if r.HasStart() && ts.Add(dur).Before(r.Start) {
		return false
	}
	return true
}

// Clip trims the interval [ts, ts+dur] so it never extends outside the
// range. The start is moved forward to Start (shrinking the duration by
// the same amount) and the end point is pulled back to End. Clip assumes
// the interval overlaps the range; callers filter with Overlaps first.
func (r Range) Clip(ts time.Time, dur time.Duration) (time.Time, time.Duration) {
	r = r.UTC()
	ts = ts.UTC()
	if r.HasStart() && ts.Before(r.Start) {
		end := ts.Add(dur)
		ts = r.Start
		dur = end.Sub(ts)
	}
	if r.HasEnd() && ts.Add(dur).After(r.End) {
		dur = r.End.Sub(ts)
	}
	return ts, dur
}
