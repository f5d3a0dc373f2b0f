// Package storetest is the conformance suite every storage backend must
// pass. Backend packages provide a factory and call Run; the suite pins
// the observable semantics (overlap filtering, ordering, error taxonomy,
// full-replace record saves) so they cannot drift between engines.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark/tidemark/internal/datastore"
	"github.com/tidemark/tidemark/internal/model"
	"github.com/tidemark/tidemark/internal/timespan"
)

// Factory builds a fresh, empty backend for one test. Cleanup is the
// factory's job, via t.Cleanup.
type Factory func(t *testing.T) datastore.Storage

// Run executes the conformance suite against the backend the factory
// produces.
func Run(t *testing.T, factory Factory) {
	t.Run("BucketLifecycle", func(t *testing.T) { testBucketLifecycle(t, factory(t)) })
	t.Run("MissingBucket", func(t *testing.T) { testMissingBucket(t, factory(t)) })
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, factory(t)) })
	t.Run("OrderingAndLimit", func(t *testing.T) { testOrderingAndLimit(t, factory(t)) })
	t.Run("RangeOverlap", func(t *testing.T) { testRangeOverlap(t, factory(t)) })
	t.Run("CountEvents", func(t *testing.T) { testCountEvents(t, factory(t)) })
	t.Run("Replace", func(t *testing.T) { testReplace(t, factory(t)) })
	t.Run("ReplaceLast", func(t *testing.T) { testReplaceLast(t, factory(t)) })
	t.Run("InsertBatch", func(t *testing.T) { testInsertBatch(t, factory(t)) })
	t.Run("DeleteEvent", func(t *testing.T) { testDeleteEvent(t, factory(t)) })
	t.Run("DeleteBucketCascades", func(t *testing.T) { testDeleteBucketCascades(t, factory(t)) })
	t.Run("Credentials", func(t *testing.T) { testCredentials(t, factory(t)) })
	t.Run("Reports", func(t *testing.T) { testReports(t, factory(t)) })
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

func mustCreateBucket(t *testing.T, s datastore.Storage, id string) {
	t.Helper()
	require.NoError(t, s.CreateBucket(context.Background(), model.BucketMetadata{
		ID:       id,
		Name:     id,
		Type:     "currentwindow",
		Client:   "storetest",
		Hostname: "testhost",
		Created:  base,
	}))
}

func mustInsert(t *testing.T, s datastore.Storage, bucketID string, ts time.Time, dur time.Duration, data map[string]any) model.Event {
	t.Helper()
	inserted, err := s.InsertOne(context.Background(), bucketID, model.Event{
		Timestamp: ts,
		Duration:  dur,
		Data:      data,
	})
	require.NoError(t, err)
	require.True(t, inserted.ID.Valid)
	return inserted
}

func testBucketLifecycle(t *testing.T, s datastore.Storage) {
	ctx := context.Background()

	buckets, err := s.Buckets(ctx)
	require.NoError(t, err)
	assert.Empty(t, buckets)

	mustCreateBucket(t, s, "window-tracker")

	buckets, err = s.Buckets(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, "window-tracker", buckets[0].ID)
	assert.Equal(t, "currentwindow", buckets[0].Type)
	assert.Equal(t, base, buckets[0].Created)

	meta, err := s.GetBucketMetadata(ctx, "window-tracker")
	require.NoError(t, err)
	assert.Equal(t, buckets[0], meta)

	err = s.CreateBucket(ctx, model.BucketMetadata{ID: "window-tracker", Name: "window-tracker", Created: base})
	assert.True(t, model.IsDuplicateBucket(err), "expected duplicate bucket, got %v", err)

	require.NoError(t, s.DeleteBucket(ctx, "window-tracker"))

	err = s.DeleteBucket(ctx, "window-tracker")
	assert.True(t, model.IsBucketNotFound(err), "expected bucket not found, got %v", err)

	_, err = s.GetBucketMetadata(ctx, "window-tracker")
	assert.True(t, model.IsBucketNotFound(err), "expected bucket not found, got %v", err)
}

func testMissingBucket(t *testing.T, s datastore.Storage) {
	ctx := context.Background()

	_, err := s.GetEvents(ctx, "ghost", 10, timespan.Range{})
	assert.True(t, model.IsBucketNotFound(err))

	_, err = s.CountEvents(ctx, "ghost", timespan.Range{})
	assert.True(t, model.IsBucketNotFound(err))

	_, err = s.InsertOne(ctx, "ghost", model.Event{Timestamp: base})
	assert.True(t, model.IsBucketNotFound(err))

	err = s.InsertBatch(ctx, "ghost", []model.Event{{Timestamp: base}})
	assert.True(t, model.IsBucketNotFound(err))

	_, err = s.Replace(ctx, "ghost", 1, model.Event{Timestamp: base})
	assert.True(t, model.IsBucketNotFound(err))

	_, err = s.ReplaceLast(ctx, "ghost", model.Event{Timestamp: base})
	assert.True(t, model.IsBucketNotFound(err))

	_, err = s.DeleteEvent(ctx, "ghost", 1)
	assert.True(t, model.IsBucketNotFound(err))
}

func testInsertAndGet(t *testing.T, s datastore.Storage) {
	ctx := context.Background()
	mustCreateBucket(t, s, "b")

	inserted := mustInsert(t, s, "b", at(100), secs(10), map[string]any{"app": "firefox", "focus": true})

	got, err := s.GetEvent(ctx, "b", inserted.ID.Value)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, inserted.ID, got.ID)
	assert.True(t, got.Timestamp.Equal(at(100)))
	assert.Equal(t, secs(10), got.Duration)
	assert.Equal(t, map[string]any{"app": "firefox", "focus": true}, got.Data)

	missing, err := s.GetEvent(ctx, "b", inserted.ID.Value+999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testOrderingAndLimit(t *testing.T, s datastore.Storage) {
	ctx := context.Background()
	mustCreateBucket(t, s, "b")

	// Insert out of chronological order; results must sort by time, not id.
	mustInsert(t, s, "b", at(200), secs(5), map[string]any{"n": "second"})
	mustInsert(t, s, "b", at(300), secs(5), map[string]any{"n": "third"})
	mustInsert(t, s, "b", at(100), secs(5), map[string]any{"n": "first"})

	events, err := s.GetEvents(ctx, "b", 10, timespan.Range{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "third", events[0].Data["n"])
	assert.Equal(t, "second", events[1].Data["n"])
	assert.Equal(t, "first", events[2].Data["n"])

	events, err = s.GetEvents(ctx, "b", 2, timespan.Range{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "third", events[0].Data["n"])
	assert.Equal(t, "second", events[1].Data["n"])
}

func testRangeOverlap(t *testing.T, s datastore.Storage) {
	ctx := context.Background()
	mustCreateBucket(t, s, "b")

	// Two intervals: [100,110] and [200,205].
	e1 := mustInsert(t, s, "b", at(100), secs(10), map[string]any{"n": "e1"})
	mustInsert(t, s, "b", at(200), secs(5), map[string]any{"n": "e2"})

	// [105,110] overlaps only the first interval.
	events, err := s.GetEvents(ctx, "b", 10, timespan.New(at(105), at(110)))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, e1.ID, events[0].ID)
	// Backends return intervals unclipped.
	assert.True(t, events[0].Timestamp.Equal(at(100)))
	assert.Equal(t, secs(10), events[0].Duration)

	// Boundary touches count as overlap on both sides.
	events, err = s.GetEvents(ctx, "b", 10, timespan.New(at(110), at(150)))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].Data["n"])

	events, err = s.GetEvents(ctx, "b", 10, timespan.New(at(150), at(200)))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e2", events[0].Data["n"])

	// A gap between the intervals matches nothing.
	events, err = s.GetEvents(ctx, "b", 10, timespan.New(at(120), at(150)))
	require.NoError(t, err)
	assert.Empty(t, events)

	// Open-ended ranges.
	events, err = s.GetEvents(ctx, "b", 10, timespan.New(at(150), time.Time{}))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e2", events[0].Data["n"])

	events, err = s.GetEvents(ctx, "b", 10, timespan.New(time.Time{}, at(150)))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].Data["n"])
}

func testCountEvents(t *testing.T, s datastore.Storage) {
	ctx := context.Background()
	mustCreateBucket(t, s, "b")

	count, err := s.CountEvents(ctx, "b", timespan.Range{})
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	mustInsert(t, s, "b", at(100), secs(10), nil)
	mustInsert(t, s, "b", at(200), secs(5), nil)

	count, err = s.CountEvents(ctx, "b", timespan.Range{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.CountEvents(ctx, "b", timespan.New(at(105), at(110)))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func testReplace(t *testing.T, s datastore.Storage) {
	ctx := context.Background()
	mustCreateBucket(t, s, "b")

	inserted := mustInsert(t, s, "b", at(100), secs(10), map[string]any{"v": "old"})

	replaced, err := s.Replace(ctx, "b", inserted.ID.Value, model.Event{
		Timestamp: at(150),
		Duration:  secs(20),
		Data:      map[string]any{"v": "new"},
	})
	require.NoError(t, err)
	assert.Equal(t, inserted.ID, replaced.ID)

	got, err := s.GetEvent(ctx, "b", inserted.ID.Value)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Timestamp.Equal(at(150)))
	assert.Equal(t, secs(20), got.Duration)
	assert.Equal(t, map[string]any{"v": "new"}, got.Data)

	_, err = s.Replace(ctx, "b", inserted.ID.Value+999, model.Event{Timestamp: at(10)})
	assert.True(t, model.IsEventNotFound(err), "expected event not found, got %v", err)
}

func testReplaceLast(t *testing.T, s datastore.Storage) {
	ctx := context.Background()
	mustCreateBucket(t, s, "b")

	_, err := s.ReplaceLast(ctx, "b", model.Event{Timestamp: at(100)})
	assert.True(t, model.IsEventNotFound(err), "expected event not found on empty bucket, got %v", err)

	first := mustInsert(t, s, "b", at(100), secs(10), map[string]any{"n": "first"})
	last := mustInsert(t, s, "b", at(200), secs(5), map[string]any{"n": "last"})

	replaced, err := s.ReplaceLast(ctx, "b", model.Event{
		Timestamp: at(200),
		Duration:  secs(30),
		Data:      map[string]any{"n": "extended"},
	})
	require.NoError(t, err)
	assert.Equal(t, last.ID, replaced.ID)

	got, err := s.GetEvent(ctx, "b", last.ID.Value)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, secs(30), got.Duration)
	assert.Equal(t, "extended", got.Data["n"])

	// The earlier event is untouched.
	got, err = s.GetEvent(ctx, "b", first.ID.Value)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.Data["n"])
}

func testInsertBatch(t *testing.T, s datastore.Storage) {
	ctx := context.Background()
	mustCreateBucket(t, s, "b")

	require.NoError(t, s.InsertBatch(ctx, "b", nil))

	batch := make([]model.Event, 5)
	for i := range batch {
		batch[i] = model.Event{
			Timestamp: at(100 + i*10),
			Duration:  secs(5),
			Data:      map[string]any{"seq": float64(i)},
		}
	}
	require.NoError(t, s.InsertBatch(ctx, "b", batch))

	count, err := s.CountEvents(ctx, "b", timespan.Range{})
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	events, err := s.GetEvents(ctx, "b", 10, timespan.Range{})
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, float64(4), events[0].Data["seq"])
	assert.Equal(t, float64(0), events[4].Data["seq"])
}

func testDeleteEvent(t *testing.T, s datastore.Storage) {
	ctx := context.Background()
	mustCreateBucket(t, s, "b")

	inserted := mustInsert(t, s, "b", at(100), secs(10), nil)

	deleted, err := s.DeleteEvent(ctx, "b", inserted.ID.Value)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteEvent(ctx, "b", inserted.ID.Value)
	require.NoError(t, err)
	assert.False(t, deleted)

	count, err := s.CountEvents(ctx, "b", timespan.Range{})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func testDeleteBucketCascades(t *testing.T, s datastore.Storage) {
	ctx := context.Background()
	mustCreateBucket(t, s, "a")
	mustCreateBucket(t, s, "b")

	mustInsert(t, s, "a", at(100), secs(10), nil)
	mustInsert(t, s, "b", at(100), secs(10), nil)
	mustInsert(t, s, "b", at(200), secs(10), nil)

	require.NoError(t, s.DeleteBucket(ctx, "a"))

	_, err := s.CountEvents(ctx, "a", timespan.Range{})
	assert.True(t, model.IsBucketNotFound(err))

	count, err := s.CountEvents(ctx, "b", timespan.Range{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func testCredentials(t *testing.T, s datastore.Storage) {
	ctx := context.Background()

	missing, err := s.GetCredential(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	alice := model.Credential{
		DeviceID:     "device-1",
		Name:         "Alice",
		Email:        "alice@example.com",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		LastUsedAt:   at(0),
	}
	require.NoError(t, s.SaveCredential(ctx, alice))

	got, err := s.GetCredential(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alice, *got)

	// Saving again is a full replace: fields absent from the new record
	// must not survive from the old one.
	require.NoError(t, s.SaveCredential(ctx, model.Credential{
		DeviceID:   "device-2",
		Name:       "Alice",
		Email:      "alice@example.com",
		LastUsedAt: at(600),
	}))
	got, err = s.GetCredential(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "device-2", got.DeviceID)
	assert.Empty(t, got.AccessToken)
	assert.Empty(t, got.RefreshToken)

	require.NoError(t, s.SaveCredential(ctx, model.Credential{
		Email:      "bob@example.com",
		Name:       "Bob",
		LastUsedAt: at(100),
	}))

	all, err := s.ListCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alice@example.com", all[0].Email)
	assert.Equal(t, "bob@example.com", all[1].Email)

	// The threshold is inclusive.
	active, err := s.CredentialsActiveSince(ctx, at(600))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "alice@example.com", active[0].Email)

	active, err = s.CredentialsActiveSince(ctx, at(100))
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func testReports(t *testing.T, s datastore.Storage) {
	ctx := context.Background()

	missing, err := s.GetReport(ctx, "alice@example.com", base)
	require.NoError(t, err)
	assert.Nil(t, missing)

	report := model.Report{
		Email:     "alice@example.com",
		SpentTime: 3600,
		CallTime:  900,
		Date:      base,
		WFH:       true,
	}
	require.NoError(t, s.SaveReport(ctx, report))

	// Any instant on the same UTC day resolves to the same report.
	got, err := s.GetReport(ctx, "alice@example.com", base.Add(7*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, report, *got)
	assert.Equal(t, 4500.0, got.ActiveTime())

	// Saving the same day again replaces the record.
	report.SpentTime = 7200
	report.WFH = false
	require.NoError(t, s.SaveReport(ctx, report))
	got, err = s.GetReport(ctx, "alice@example.com", base)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7200.0, got.SpentTime)
	assert.False(t, got.WFH)

	// A different day is a different record.
	got, err = s.GetReport(ctx, "alice@example.com", base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, got)
}
