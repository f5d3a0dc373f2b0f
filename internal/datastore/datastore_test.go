package datastore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark/tidemark/internal/model"
	"github.com/tidemark/tidemark/internal/testutil"
	"github.com/tidemark/tidemark/internal/timespan"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// fakeStorage records calls so facade behavior can be asserted without a
// real backend.
type fakeStorage struct {
	mu sync.Mutex

	buckets      []model.BucketMetadata
	bucketsCalls int

	events          []model.Event
	getEventsCalls  int
	getEventsLimits []int

	insertBatches [][]model.Event
	replacedIDs   []int64

	savedCredentials []model.Credential

	replaceLastInFlight atomic.Int32
	replaceLastMax      atomic.Int32
	replaceLastCalls    atomic.Int32
}

func (f *fakeStorage) Ping(ctx context.Context) error { return nil }
func (f *fakeStorage) Close() error                   { return nil }

func (f *fakeStorage) Buckets(ctx context.Context) ([]model.BucketMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bucketsCalls++
	return append([]model.BucketMetadata{}, f.buckets...), nil
}

func (f *fakeStorage) CreateBucket(ctx context.Context, meta model.BucketMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets = append(f.buckets, meta)
	return nil
}

func (f *fakeStorage) DeleteBucket(ctx context.Context, bucketID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.buckets[:0]
	for _, meta := range f.buckets {
		if meta.ID != bucketID {
			kept = append(kept, meta)
		}
	}
	f.buckets = kept
	return nil
}

func (f *fakeStorage) GetBucketMetadata(ctx context.Context, bucketID string) (model.BucketMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, meta := range f.buckets {
		if meta.ID == bucketID {
			return meta, nil
		}
	}
	return model.BucketMetadata{}, model.NewBucketNotFound(bucketID)
}

func (f *fakeStorage) GetEvent(ctx context.Context, bucketID string, eventID int64) (*model.Event, error) {
	return nil, nil
}

func (f *fakeStorage) GetEvents(ctx context.Context, bucketID string, limit int, r timespan.Range) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getEventsCalls++
	f.getEventsLimits = append(f.getEventsLimits, limit)
	return append([]model.Event{}, f.events...), nil
}

func (f *fakeStorage) CountEvents(ctx context.Context, bucketID string, r timespan.Range) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events), nil
}

func (f *fakeStorage) InsertOne(ctx context.Context, bucketID string, event model.Event) (model.Event, error) {
	event.ID = model.NewEventID(1)
	return event, nil
}

func (f *fakeStorage) InsertBatch(ctx context.Context, bucketID string, events []model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertBatches = append(f.insertBatches, append([]model.Event{}, events...))
	return nil
}

func (f *fakeStorage) Replace(ctx context.Context, bucketID string, eventID int64, event model.Event) (model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replacedIDs = append(f.replacedIDs, eventID)
	event.ID = model.NewEventID(eventID)
	return event, nil
}

func (f *fakeStorage) ReplaceLast(ctx context.Context, bucketID string, event model.Event) (model.Event, error) {
	inFlight := f.replaceLastInFlight.Add(1)
	defer f.replaceLastInFlight.Add(-1)
	for {
		max := f.replaceLastMax.Load()
		if inFlight <= max || f.replaceLastMax.CompareAndSwap(max, inFlight) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	f.replaceLastCalls.Add(1)
	event.ID = model.NewEventID(1)
	return event, nil
}

func (f *fakeStorage) DeleteEvent(ctx context.Context, bucketID string, eventID int64) (bool, error) {
	return false, nil
}

func (f *fakeStorage) SaveCredential(ctx context.Context, cred model.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedCredentials = append(f.savedCredentials, cred)
	return nil
}

func (f *fakeStorage) GetCredential(ctx context.Context, email string) (*model.Credential, error) {
	return nil, nil
}

func (f *fakeStorage) ListCredentials(ctx context.Context) ([]model.Credential, error) {
	return []model.Credential{}, nil
}

func (f *fakeStorage) CredentialsActiveSince(ctx context.Context, threshold time.Time) ([]model.Credential, error) {
	return []model.Credential{}, nil
}

func (f *fakeStorage) SaveReport(ctx context.Context, report model.Report) error { return nil }

func (f *fakeStorage) GetReport(ctx context.Context, email string, day time.Time) (*model.Report, error) {
	return nil, nil
}

func (f *fakeStorage) countBucketsCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bucketsCalls
}

func TestBuckets_CacheServesWithinWindow(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStorage{buckets: []model.BucketMetadata{{ID: "b", Name: "b", Created: base}}}
	clock := testutil.NewClock(base)
	ds := New(fake, WithClock(clock))

	for i := 0; i < 3; i++ {
		buckets, err := ds.Buckets(ctx)
		require.NoError(t, err)
		assert.Len(t, buckets, 1)
	}
	assert.Equal(t, 1, fake.countBucketsCalls())

	// Just inside the window: still cached.
	clock.Advance(5 * time.Second)
	_, err := ds.Buckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.countBucketsCalls())

	// Past the window: refreshed.
	clock.Advance(2 * time.Second)
	_, err = ds.Buckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.countBucketsCalls())
}

func TestCreateBucket_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStorage{}
	clock := testutil.NewClock(base)
	ds := New(fake, WithClock(clock))

	buckets, err := ds.Buckets(ctx)
	require.NoError(t, err)
	assert.Empty(t, buckets)

	require.NoError(t, ds.CreateBucket(ctx, model.BucketMetadata{ID: "fresh"}))

	// Same instant, no window elapsed: the new bucket is still visible.
	buckets, err = ds.Buckets(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, "fresh", buckets[0].ID)
}

func TestDeleteBucket_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStorage{buckets: []model.BucketMetadata{{ID: "old", Name: "old", Created: base}}}
	clock := testutil.NewClock(base)
	ds := New(fake, WithClock(clock))

	buckets, err := ds.Buckets(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)

	require.NoError(t, ds.DeleteBucket(ctx, "old"))

	buckets, err = ds.Buckets(ctx)
	require.NoError(t, err)
	assert.Empty(t, buckets)
}

func TestGetBucketMetadata_RefreshesOnMiss(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStorage{}
	clock := testutil.NewClock(base)
	ds := New(fake, WithClock(clock))

	// Warm an empty cache, then create behind the facade's back.
	_, err := ds.Buckets(ctx)
	require.NoError(t, err)
	require.NoError(t, fake.CreateBucket(ctx, model.BucketMetadata{ID: "late", Name: "late", Created: base}))

	meta, err := ds.GetBucketMetadata(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, "late", meta.ID)

	_, err = ds.GetBucketMetadata(ctx, "never")
	assert.True(t, model.IsBucketNotFound(err))
}

func TestCreateBucket_NormalizesAndStampsCreated(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStorage{}
	clock := testutil.NewClock(base)
	ds := New(fake, WithClock(clock))

	require.NoError(t, ds.CreateBucket(ctx, model.BucketMetadata{ID: "afk-watcher"}))

	require.Len(t, fake.buckets, 1)
	assert.Equal(t, "afk-watcher", fake.buckets[0].Name)
	assert.Equal(t, base, fake.buckets[0].Created)

	err := ds.CreateBucket(ctx, model.BucketMetadata{})
	assert.True(t, model.IsValidation(err))
}

func TestGetEvents_ZeroLimitShortCircuits(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStorage{events: []model.Event{{ID: model.NewEventID(1), Timestamp: base}}}
	ds := New(fake)

	events, err := ds.GetEvents(ctx, "b", 0, timespan.Range{})
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
	assert.Equal(t, 0, fake.getEventsCalls)
}

func TestGetEvents_NegativeLimitMeansUnbounded(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStorage{}
	ds := New(fake)

	_, err := ds.GetEvents(ctx, "b", -1, timespan.Range{})
	require.NoError(t, err)
	require.Len(t, fake.getEventsLimits, 1)
	assert.Equal(t, unboundedLimit, fake.getEventsLimits[0])
}

func TestGetEvents_ClipsToRange(t *testing.T) {
	ctx := context.Background()
	// Backend returns the interval [100, 110] unclipped.
	fake := &fakeStorage{events: []model.Event{{
		ID:        model.NewEventID(1),
		Timestamp: at(100),
		Duration:  secs(10),
	}}}
	ds := New(fake)

	events, err := ds.GetEvents(ctx, "b", 10, timespan.New(at(105), at(110)))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Timestamp.Equal(at(105)))
	assert.Equal(t, secs(5), events[0].Duration)
}

func TestInsertOne_RejectsPresetID(t *testing.T) {
	ctx := context.Background()
	ds := New(&fakeStorage{})

	_, err := ds.InsertOne(ctx, "b", model.Event{
		ID:        model.NewEventID(7),
		Timestamp: base,
	})
	assert.True(t, model.IsValidation(err))
}

func TestInsertOne_RejectsInvalidEvent(t *testing.T) {
	ctx := context.Background()
	ds := New(&fakeStorage{})

	_, err := ds.InsertOne(ctx, "b", model.Event{Timestamp: base, Duration: -time.Second})
	assert.True(t, model.IsValidation(err))

	_, err = ds.InsertOne(ctx, "b", model.Event{})
	assert.True(t, model.IsValidation(err))
}

func TestInsertMany_RoutesPersistedAndPending(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStorage{}
	ds := New(fake)

	err := ds.InsertMany(ctx, "b", []model.Event{
		{ID: model.NewEventID(3), Timestamp: at(10)},
		{Timestamp: at(20)},
		{ID: model.NewEventID(9), Timestamp: at(30)},
		{Timestamp: at(40)},
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{3, 9}, fake.replacedIDs)
	require.Len(t, fake.insertBatches, 1)
	require.Len(t, fake.insertBatches[0], 2)
	assert.True(t, fake.insertBatches[0][0].Timestamp.Equal(at(20)))
	assert.True(t, fake.insertBatches[0][1].Timestamp.Equal(at(40)))
}

func TestInsertMany_ChunksPendingEvents(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStorage{}
	ds := New(fake)

	events := make([]model.Event, 250)
	for i := range events {
		events[i] = model.Event{Timestamp: at(i)}
	}
	require.NoError(t, ds.InsertMany(ctx, "b", events))

	require.Len(t, fake.insertBatches, 3)
	assert.Len(t, fake.insertBatches[0], 100)
	assert.Len(t, fake.insertBatches[1], 100)
	assert.Len(t, fake.insertBatches[2], 50)

	// Relative order survives chunking.
	assert.True(t, fake.insertBatches[2][49].Timestamp.Equal(at(249)))
}

func TestInsertMany_RejectsInvalidEvent(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStorage{}
	ds := New(fake)

	err := ds.InsertMany(ctx, "b", []model.Event{
		{Timestamp: at(10)},
		{Timestamp: at(20), Duration: -time.Second},
	})
	assert.True(t, model.IsValidation(err))
	assert.Empty(t, fake.insertBatches)
}

func TestReplaceLast_SerializesPerBucket(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStorage{}
	ds := New(fake)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ds.ReplaceLast(ctx, "b", model.Event{Timestamp: base, Duration: secs(1)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(16), fake.replaceLastCalls.Load())
	assert.Equal(t, int32(1), fake.replaceLastMax.Load(), "concurrent ReplaceLast calls reached the backend")
}

func TestSaveCredential_StampsLastUsedAt(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStorage{}
	clock := testutil.NewClock(base)
	ds := New(fake, WithClock(clock))

	require.NoError(t, ds.SaveCredential(ctx, model.Credential{Email: "alice@example.com"}))

	require.Len(t, fake.savedCredentials, 1)
	assert.True(t, fake.savedCredentials[0].LastUsedAt.Equal(base))

	// An explicit LastUsedAt is kept, normalized to UTC.
	explicit := base.Add(-time.Hour)
	require.NoError(t, ds.SaveCredential(ctx, model.Credential{
		Email:      "bob@example.com",
		LastUsedAt: explicit,
	}))
	require.Len(t, fake.savedCredentials, 2)
	assert.True(t, fake.savedCredentials[1].LastUsedAt.Equal(explicit))

	err := ds.SaveCredential(ctx, model.Credential{})
	assert.True(t, model.IsValidation(err))
}
