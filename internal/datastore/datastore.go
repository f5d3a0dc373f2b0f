// Package datastore exposes the persistence facade for buckets, interval
// events and auxiliary records. A Datastore wraps one Storage backend and
// enforces the semantics every backend must share: input validation,
// range clipping, limit resolution, insert chunking, bucket-directory
// caching and replace-last serialization.
package datastore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tidemark/tidemark/internal/metrics"
	"github.com/tidemark/tidemark/internal/model"
	"github.com/tidemark/tidemark/internal/timespan"
)

const (
	// defaultCacheWindow is how long a bucket-directory snapshot stays
	// fresh before the next read refreshes it from the backend.
	defaultCacheWindow = 6 * time.Second

	// unboundedLimit stands in for "no limit" on range queries. Backends
	// always receive a concrete cap.
	unboundedLimit = 1_000_000_000

	// insertChunkSize bounds bulk inserts so a single batch never
	// exceeds backend statement limits.
	insertChunkSize = 100
)

// Datastore is the storage engine facade. All methods are safe for
// concurrent use.
type Datastore struct {
	backend Storage
	clock   Clock
	rec     metrics.Recorder
	window  time.Duration

	cacheMu     sync.Mutex
	cache       map[string]model.BucketMetadata
	lastRefresh time.Time

	lastMu    sync.Mutex
	lastLocks map[string]*sync.Mutex
}

// Option configures a Datastore.
type Option func(*Datastore)

// WithClock injects the wall clock used for cache freshness and record
// timestamps. Tests pass a fake clock here.
func WithClock(c Clock) Option {
	return func(d *Datastore) { d.clock = c }
}

// WithRecorder injects the metrics recorder for operation latency and
// result counters.
func WithRecorder(r metrics.Recorder) Option {
	return func(d *Datastore) { d.rec = r }
}

// WithCacheWindow overrides the bucket-directory freshness window.
func WithCacheWindow(w time.Duration) Option {
	return func(d *Datastore) {
		if w >= 0 {
			d.window = w
		}
	}
}

// New wraps a backend in the facade. The backend is assumed reachable;
// Open performs the fail-fast ping for config-driven construction.
func New(backend Storage, opts ...Option) *Datastore {
	d := &Datastore{
		backend:   backend,
		clock:     systemClock{},
		rec:       metrics.NoopRecorder{},
		window:    defaultCacheWindow,
		lastLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Close releases the underlying backend.
func (d *Datastore) Close() error {
	return d.backend.Close()
}

// track records latency and outcome for one operation. Call it deferred
// with a named error return.
func (d *Datastore) track(op string, start time.Time, err *error) {
	d.rec.ObserveOpDuration(op, time.Since(start))
	d.rec.IncOpResult(op, metrics.Outcome(*err))
}

// Buckets lists all bucket metadata, served from the directory cache,
// sorted by id.
func (d *Datastore) Buckets(ctx context.Context) (buckets []model.BucketMetadata, err error) {
	defer d.track("buckets", time.Now(), &err)

	snap, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	buckets = make([]model.BucketMetadata, 0, len(snap))
	for _, meta := range snap {
		buckets = append(buckets, meta)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].ID < buckets[j].ID })
	return buckets, nil
}

// CreateBucket persists a new bucket. The directory cache is invalidated
// so the bucket is visible to reads immediately.
func (d *Datastore) CreateBucket(ctx context.Context, meta model.BucketMetadata) (err error) {
	defer d.track("create_bucket", time.Now(), &err)

	meta = meta.Normalize()
	if err := meta.Validate(); err != nil {
		return err
	}
	if meta.Created.IsZero() {
		meta.Created = d.clock.Now().UTC()
	}
	if err := d.backend.CreateBucket(ctx, meta); err != nil {
		return err
	}
	d.invalidate()
	return nil
}

// DeleteBucket removes a bucket and all its events, then invalidates the
// directory cache.
func (d *Datastore) DeleteBucket(ctx context.Context, bucketID string) (err error) {
	defer d.track("delete_bucket", time.Now(), &err)

	bucketID = model.NormalizeBucketID(bucketID)
	if err := d.backend.DeleteBucket(ctx, bucketID); err != nil {
		return err
	}
	d.invalidate()
	return nil
}

// GetBucketMetadata returns one bucket's metadata from the directory
// cache. An id missing from a fresh snapshot forces one refresh before
// reporting BucketNotFound, so recently created buckets resolve.
func (d *Datastore) GetBucketMetadata(ctx context.Context, bucketID string) (meta model.BucketMetadata, err error) {
	defer d.track("get_bucket_metadata", time.Now(), &err)

	bucketID = model.NormalizeBucketID(bucketID)
	snap, err := d.snapshot(ctx)
	if err != nil {
		return model.BucketMetadata{}, err
	}
	if meta, ok := snap[bucketID]; ok {
		return meta, nil
	}
	snap, err = d.refresh(ctx)
	if err != nil {
		return model.BucketMetadata{}, err
	}
	if meta, ok := snap[bucketID]; ok {
		return meta, nil
	}
	return model.BucketMetadata{}, model.NewBucketNotFound(bucketID)
}

// GetEvent fetches one event by id. A missing event is (nil, nil).
func (d *Datastore) GetEvent(ctx context.Context, bucketID string, eventID int64) (event *model.Event, err error) {
	defer d.track("get_event", time.Now(), &err)

	return d.backend.GetEvent(ctx, model.NormalizeBucketID(bucketID), eventID)
}

// GetEvents returns events overlapping r, newest first, with intervals
// clipped to r's boundaries. A zero limit returns an empty slice without
// touching the backend; a negative limit means unbounded.
func (d *Datastore) GetEvents(ctx context.Context, bucketID string, limit int, r timespan.Range) (events []model.Event, err error) {
	defer d.track("get_events", time.Now(), &err)

	if limit == 0 {
		return []model.Event{}, nil
	}
	if limit < 0 {
		limit = unboundedLimit
	}
	events, err = d.backend.GetEvents(ctx, model.NormalizeBucketID(bucketID), limit, r)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Timestamp, events[i].Duration = r.Clip(events[i].Timestamp, events[i].Duration)
	}
	return events, nil
}

// CountEvents counts events overlapping r.
func (d *Datastore) CountEvents(ctx context.Context, bucketID string, r timespan.Range) (count int, err error) {
	defer d.track("count_events", time.Now(), &err)

	return d.backend.CountEvents(ctx, model.NormalizeBucketID(bucketID), r)
}

// InsertOne persists a single pending event and returns it with its
// assigned id. An event arriving with an id already set is rejected;
// updates go through Replace.
func (d *Datastore) InsertOne(ctx context.Context, bucketID string, event model.Event) (inserted model.Event, err error) {
	defer d.track("insert_one", time.Now(), &err)

	if event.ID.Valid {
		return model.Event{}, model.NewValidationError("insert rejects events with an id; use Replace to update")
	}
	event = event.Normalize()
	if err := event.Validate(); err != nil {
		return model.Event{}, err
	}
	return d.backend.InsertOne(ctx, model.NormalizeBucketID(bucketID), event)
}

// InsertMany persists a mixed batch. Events carrying an id are replaced
// in place; pending events are bulk-inserted in chunks. Relative order
// within each group is preserved.
func (d *Datastore) InsertMany(ctx context.Context, bucketID string, events []model.Event) (err error) {
	defer d.track("insert_many", time.Now(), &err)

	bucketID = model.NormalizeBucketID(bucketID)
	for i := range events {
		events[i] = events[i].Normalize()
		if err := events[i].Validate(); err != nil {
			return err
		}
	}
	pending, persisted := model.Partition(events)
	for _, event := range persisted {
		if _, err := d.backend.Replace(ctx, bucketID, event.ID.Value, event); err != nil {
			return err
		}
	}
	for start := 0; start < len(pending); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(pending) {
			end = len(pending)
		}
		if err := d.backend.InsertBatch(ctx, bucketID, pending[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Replace overwrites an existing event's timestamp, duration and payload
// while keeping its identity.
func (d *Datastore) Replace(ctx context.Context, bucketID string, eventID int64, event model.Event) (replaced model.Event, err error) {
	defer d.track("replace", time.Now(), &err)

	event = event.Normalize()
	if err := event.Validate(); err != nil {
		return model.Event{}, err
	}
	return d.backend.Replace(ctx, model.NormalizeBucketID(bucketID), eventID, event)
}

// ReplaceLast overwrites the bucket's chronologically last event with the
// given interval and payload, preserving the event's id. Calls are
// serialized per bucket so concurrent heartbeat writers cannot interleave
// the read-last and write steps.
func (d *Datastore) ReplaceLast(ctx context.Context, bucketID string, event model.Event) (replaced model.Event, err error) {
	defer d.track("replace_last", time.Now(), &err)

	bucketID = model.NormalizeBucketID(bucketID)
	event = event.Normalize()
	if err := event.Validate(); err != nil {
		return model.Event{}, err
	}

	mu := d.lastLock(bucketID)
	mu.Lock()
	defer mu.Unlock()
	return d.backend.ReplaceLast(ctx, bucketID, event)
}

// DeleteEvent removes one event, reporting whether anything was deleted.
func (d *Datastore) DeleteEvent(ctx context.Context, bucketID string, eventID int64) (deleted bool, err error) {
	defer d.track("delete_event", time.Now(), &err)

	return d.backend.DeleteEvent(ctx, model.NormalizeBucketID(bucketID), eventID)
}

// SaveCredential fully replaces the credential stored under its email.
// A zero LastUsedAt is stamped with the current time, so a plain save
// counts as activity.
func (d *Datastore) SaveCredential(ctx context.Context, cred model.Credential) (err error) {
	defer d.track("save_credential", time.Now(), &err)

	if err := cred.Validate(); err != nil {
		return err
	}
	if cred.LastUsedAt.IsZero() {
		cred.LastUsedAt = d.clock.Now()
	}
	cred.LastUsedAt = cred.LastUsedAt.UTC()
	return d.backend.SaveCredential(ctx, cred)
}

// GetCredential fetches the credential under email; a miss is (nil, nil).
func (d *Datastore) GetCredential(ctx context.Context, email string) (cred *model.Credential, err error) {
	defer d.track("get_credential", time.Now(), &err)

	return d.backend.GetCredential(ctx, email)
}

// ListCredentials returns all stored credentials.
func (d *Datastore) ListCredentials(ctx context.Context) (creds []model.Credential, err error) {
	defer d.track("list_credentials", time.Now(), &err)

	return d.backend.ListCredentials(ctx)
}

// CredentialsActiveSince returns credentials used at or after threshold.
func (d *Datastore) CredentialsActiveSince(ctx context.Context, threshold time.Time) (creds []model.Credential, err error) {
	defer d.track("credentials_active_since", time.Now(), &err)

	return d.backend.CredentialsActiveSince(ctx, threshold.UTC())
}

// SaveReport fully replaces the report stored under (email, UTC day).
func (d *Datastore) SaveReport(ctx context.Context, report model.Report) (err error) {
	defer d.track("save_report", time.Now(), &err)

	if err := report.Validate(); err != nil {
		return err
	}
	report.Date = report.Date.UTC()
	return d.backend.SaveReport(ctx, report)
}

// GetReport fetches the report for email on the UTC calendar day of the
// given instant; a miss is (nil, nil).
func (d *Datastore) GetReport(ctx context.Context, email string, day time.Time) (report *model.Report, err error) {
	defer d.track("get_report", time.Now(), &err)

	return d.backend.GetReport(ctx, email, day.UTC())
}

// snapshot returns the cached bucket directory, refreshing it when the
// freshness window has elapsed.
func (d *Datastore) snapshot(ctx context.Context) (map[string]model.BucketMetadata, error) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	if d.cache != nil && d.clock.Now().Sub(d.lastRefresh) < d.window {
		return d.cache, nil
	}
	return d.refreshLocked(ctx)
}

// refresh unconditionally reloads the bucket directory from the backend.
func (d *Datastore) refresh(ctx context.Context) (map[string]model.BucketMetadata, error) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	return d.refreshLocked(ctx)
}

func (d *Datastore) refreshLocked(ctx context.Context) (map[string]model.BucketMetadata, error) {
	buckets, err := d.backend.Buckets(ctx)
	if err != nil {
		return nil, err
	}
	snap := make(map[string]model.BucketMetadata, len(buckets))
	for _, meta := range buckets {
		snap[meta.ID] = meta
	}
	d.cache = snap
	d.lastRefresh = d.clock.Now()
	return snap, nil
}

// invalidate drops the cached directory so the next read refreshes.
func (d *Datastore) invalidate() {
	d.cacheMu.Lock()
	d.cache = nil
	d.cacheMu.Unlock()
}

// lastLock returns the mutex serializing ReplaceLast for one bucket.
func (d *Datastore) lastLock(bucketID string) *sync.Mutex {
	d.lastMu.Lock()
	defer d.lastMu.Unlock()
	mu, ok := d.lastLocks[bucketID]
	if !ok {
		mu = &sync.Mutex{}
		d.lastLocks[bucketID] = mu
	}
	return mu
}
