package timespan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// base is an arbitrary fixed instant; offsets in tests are seconds from it.
var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

func TestRange_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		r    Range
		ts   time.Time
		dur  time.Duration
		want bool
	}{
		{"both bounds open", Range{}, at(100), secs(10), true},
		{"inside closed range", New(at(150), at(250)), at(200), secs(5), true},
		{"straddles start", New(at(105), at(150)), at(100), secs(10), true},
		{"ends exactly at start", New(at(110), at(150)), at(100), secs(10), true},
		{"ends before start", New(at(150), at(250)), at(100), secs(10), false},
		{"starts exactly at end", New(at(50), at(100)), at(100), secs(10), true},
		{"starts after end", New(at(50), at(99)), at(100), secs(10), false},
		{"open start", Range{End: at(150)}, at(100), secs(10), true},
		{"open end", Range{Start: at(105)}, at(100), secs(10), true},
		{"open end, too early", Range{Start: at(150)}, at(100), secs(10), false},
		{"zero duration at start bound", New(at(100), at(200)), at(100), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Overlaps(tt.ts, tt.dur))
		})
	}
}

func TestRange_Overlaps_NormalizesZones(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*3600)

	// Same instant as at(100), expressed with a +02:00 offset.
	local := at(100).In(zone)
	r := New(at(100), at(200))

	assert.True(t, r.Overlaps(local, secs(5)))

	// Range bounds in a non-UTC zone behave identically.
	rLocal := New(at(100).In(zone), at(200).In(zone))
	assert.True(t, rLocal.Overlaps(at(100), secs(5)))
	assert.False(t, rLocal.Overlaps(at(300), secs(5)))
}

func TestRange_Clip(t *testing.T) {
	tests := []struct {
		name    string
		r       Range
		ts      time.Time
		dur     time.Duration
		wantTS  time.Time
		wantDur time.Duration
	}{
		{"fully inside stays untouched", New(at(150), at(250)), at(200), secs(5), at(200), secs(5)},
		{"trim leading overhang", New(at(105), at(150)), at(100), secs(10), at(105), secs(5)},
		{"trim trailing overhang", New(at(50), at(105)), at(100), secs(10), at(100), secs(5)},
		{"trim both sides", New(at(102), at(108)), at(100), secs(10), at(102), secs(6)},
		{"open range is a no-op", Range{}, at(100), secs(10), at(100), secs(10)},
		{"open start trims only end", Range{End: at(105)}, at(100), secs(10), at(100), secs(5)},
		{"open end trims only start", Range{Start: at(103)}, at(100), secs(10), at(103), secs(7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotTS, gotDur := tt.r.Clip(tt.ts, tt.dur)
			assert.True(t, gotTS.Equal(tt.wantTS), "timestamp: got %v want %v", gotTS, tt.wantTS)
			assert.Equal(t, tt.wantDur, gotDur)
		})
	}
}

func TestRange_Clip_PreservesEndPoint(t *testing.T) {
	// Clipping the start must not move the interval's end point.
	r := Range{Start: at(105)}
	ts, dur := r.Clip(at(100), secs(10))
	assert.True(t, ts.Add(dur).Equal(at(110)))
}
