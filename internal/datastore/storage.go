package datastore

import (
	"context"
	"time"

	"github.com/tidemark/tidemark/internal/model"
	"github.com/tidemark/tidemark/internal/timespan"
)

// Storage is the contract every backend adapter implements. An adapter is
// the only code that knows its engine's query syntax; everything above it
// speaks buckets, events and records.
//
// Division of labor with the Datastore facade:
//   - adapters resolve a bucket's public id to its internal key on every
//     event operation and report model.StoreError values for the misses
//     and conflicts in the error taxonomy;
//   - adapters apply the range overlap filter, sort events by timestamp
//     descending and cap results at the given limit (always >= 1 here:
//     the facade resolves the limit-0 short circuit and the unbounded
//     ceiling before calling in);
//   - the facade owns validation, boundary clipping, insert chunking, the
//     bucket-directory cache and replace-last serialization, so observable
//     semantics cannot drift between engines.
type Storage interface {
	// Ping verifies the backend is reachable. Engine construction fails
	// fast on a ping error instead of deferring to first use.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error

	// Buckets enumerates all bucket metadata.
	Buckets(ctx context.Context) ([]model.BucketMetadata, error)

	// CreateBucket persists a new bucket and allocates its internal key.
	// Reports DuplicateBucket if the id is taken.
	CreateBucket(ctx context.Context, meta model.BucketMetadata) error

	// DeleteBucket removes a bucket and cascades deletion of all its
	// events. Reports BucketNotFound if the id is unknown.
	DeleteBucket(ctx context.Context, bucketID string) error

	// GetBucketMetadata fetches one bucket's metadata.
	// Reports BucketNotFound if the id is unknown.
	GetBucketMetadata(ctx context.Context, bucketID string) (model.BucketMetadata, error)

	// GetEvent is a point lookup; a missing event is (nil, nil).
	GetEvent(ctx context.Context, bucketID string, eventID int64) (*model.Event, error)

	// GetEvents returns up to limit events overlapping r, sorted by
	// timestamp descending. Intervals are returned unclipped.
	GetEvents(ctx context.Context, bucketID string, limit int, r timespan.Range) ([]model.Event, error)

	// CountEvents counts events overlapping r.
	CountEvents(ctx context.Context, bucketID string, r timespan.Range) (int, error)

	// InsertOne persists a pending event and returns it with the
	// backend-assigned id filled in.
	InsertOne(ctx context.Context, bucketID string, event model.Event) (model.Event, error)

	// InsertBatch bulk-inserts pending events. The facade hands in
	// chunks sized to the backend's statement limits; a failed chunk
	// fails as a whole, never partially.
	InsertBatch(ctx context.Context, bucketID string, events []model.Event) error

	// Replace fully overwrites an existing event's timestamp, duration
	// and payload, keeping its identity. Reports EventNotFound if no
	// such event exists in the bucket.
	Replace(ctx context.Context, bucketID string, eventID int64, event model.Event) (model.Event, error)

	// ReplaceLast overwrites the bucket's chronologically last event,
	// preserving its id. Reports EventNotFound on an empty bucket.
	// Callers serialize ReplaceLast per bucket; see Datastore.
	ReplaceLast(ctx context.Context, bucketID string, event model.Event) (model.Event, error)

	// DeleteEvent removes one event and reports whether a row was
	// actually removed. A miss is (false, nil), not an error.
	DeleteEvent(ctx context.Context, bucketID string, eventID int64) (bool, error)

	// SaveCredential fully replaces the record stored under the
	// credential's email.
	SaveCredential(ctx context.Context, cred model.Credential) error

	// GetCredential fetches the record under email; a miss is (nil, nil).
	GetCredential(ctx context.Context, email string) (*model.Credential, error)

	// ListCredentials returns all credential records.
	ListCredentials(ctx context.Context) ([]model.Credential, error)

	// CredentialsActiveSince returns credentials whose last_used_at is
	// at or after the threshold.
	CredentialsActiveSince(ctx context.Context, threshold time.Time) ([]model.Credential, error)

	// SaveReport fully replaces the report stored under
	// (email, UTC calendar day of the report's date).
	SaveReport(ctx context.Context, report model.Report) error

	// GetReport fetches the report for email on the UTC calendar day of
	// the given instant; a miss is (nil, nil).
	GetReport(ctx context.Context, email string, day time.Time) (*model.Report, error)
}
