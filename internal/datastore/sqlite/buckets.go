package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/tidemark/tidemark/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx so key resolution works
// inside and outside transactions.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// resolveKey maps a public bucket id to its internal key.
func resolveKey(ctx context.Context, q querier, bucketID string) (int64, error) {
	var key int64
	err := q.QueryRowContext(ctx, `SELECT key FROM buckets WHERE id = ?`, bucketID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.NewBucketNotFound(bucketID)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve bucket %q: %w", bucketID, err)
	}
	return key, nil
}

// Buckets returns all bucket metadata ordered by id.
func (s *Store) Buckets(ctx context.Context) ([]model.BucketMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, client, hostname, created
		FROM buckets
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query buckets: %w", err)
	}
	defer rows.Close()

	buckets := []model.BucketMetadata{}
	for rows.Next() {
		var meta model.BucketMetadata
		var created int64
		if err := rows.Scan(&meta.ID, &meta.Name, &meta.Type, &meta.Client, &meta.Hostname, &created); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		meta.Created = time.Unix(0, created).UTC()
		buckets = append(buckets, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}

	return buckets, nil
}

// CreateBucket inserts a new bucket row. The UNIQUE constraint on the
// public id surfaces as a duplicate-bucket error.
func (s *Store) CreateBucket(ctx context.Context, meta model.BucketMetadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO buckets (id, name, type, client, hostname, created)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		meta.ID,
		meta.Name,
		meta.Type,
		meta.Client,
		meta.Hostname,
		meta.Created.UTC().UnixNano(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return model.NewDuplicateBucket(meta.ID)
		}
		return fmt.Errorf("create bucket %q: %w", meta.ID, err)
	}
	return nil
}

// DeleteBucket removes a bucket and all its events in one transaction.
func (s *Store) DeleteBucket(ctx context.Context, bucketID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete bucket: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	key, err := resolveKey(ctx, tx, bucketID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE bucket_key = ?`, key); err != nil {
		return fmt.Errorf("delete bucket events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM buckets WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete bucket row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete bucket: commit: %w", err)
	}
	return nil
}

// GetBucketMetadata fetches one bucket's metadata by public id.
func (s *Store) GetBucketMetadata(ctx context.Context, bucketID string) (model.BucketMetadata, error) {
	var meta model.BucketMetadata
	var created int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, client, hostname, created
		FROM buckets
		WHERE id = ?
	`, bucketID).Scan(&meta.ID, &meta.Name, &meta.Type, &meta.Client, &meta.Hostname, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BucketMetadata{}, model.NewBucketNotFound(bucketID)
	}
	if err != nil {
		return model.BucketMetadata{}, fmt.Errorf("get bucket %q: %w", bucketID, err)
	}
	meta.Created = time.Unix(0, created).UTC()
	return meta, nil
}
