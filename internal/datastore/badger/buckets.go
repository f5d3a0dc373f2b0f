package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/tidemark/tidemark/internal/model"
)

// bucketDoc is the stored form of a bucket. The internal key anchors the
// bucket's event prefix and never changes once allocated.
type bucketDoc struct {
	InternalKey string `json:"internal_key"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Client      string `json:"client"`
	Hostname    string `json:"hostname"`
	Created     int64  `json:"created"`
}

func (d bucketDoc) metadata() model.BucketMetadata {
	return model.BucketMetadata{
		ID:       d.ID,
		Name:     d.Name,
		Type:     d.Type,
		Client:   d.Client,
		Hostname: d.Hostname,
		Created:  time.Unix(0, d.Created).UTC(),
	}
}

// resolveBucket loads the bucket document inside a transaction.
func resolveBucket(txn *badgerdb.Txn, bucketID string) (bucketDoc, error) {
	raw, err := getValue(txn, bucketKey(bucketID))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return bucketDoc{}, model.NewBucketNotFound(bucketID)
	}
	if err != nil {
		return bucketDoc{}, fmt.Errorf("resolve bucket %q: %w", bucketID, err)
	}
	var doc bucketDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return bucketDoc{}, fmt.Errorf("decode bucket %q: %w", bucketID, err)
	}
	return doc, nil
}

// Buckets returns all bucket metadata ordered by id.
func (s *Store) Buckets(ctx context.Context) ([]model.BucketMetadata, error) {
	buckets := []model.BucketMetadata{}
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte("bucket/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var doc bucketDoc
				if err := json.Unmarshal(val, &doc); err != nil {
					return fmt.Errorf("decode bucket: %w", err)
				}
				buckets = append(buckets, doc.metadata())
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	sort.Slice(buckets, func(i, j int) bool { return buckets[i].ID < buckets[j].ID })
	return buckets, nil
}

// CreateBucket allocates an internal key and stores the bucket document.
func (s *Store) CreateBucket(ctx context.Context, meta model.BucketMetadata) error {
	doc := bucketDoc{
		InternalKey: uuid.NewString(),
		ID:          meta.ID,
		Name:        meta.Name,
		Type:        meta.Type,
		Client:      meta.Client,
		Hostname:    meta.Hostname,
		Created:     meta.Created.UTC().UnixNano(),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode bucket %q: %w", meta.ID, err)
	}

	err = s.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(bucketKey(meta.ID))
		if err == nil {
			return model.NewDuplicateBucket(meta.ID)
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		return txn.Set(bucketKey(meta.ID), raw)
	})
	if err != nil {
		if model.IsDuplicateBucket(err) {
			return err
		}
		return fmt.Errorf("create bucket %q: %w", meta.ID, err)
	}
	return nil
}

// DeleteBucket removes the bucket document, then drops the whole event
// prefix in one pass.
func (s *Store) DeleteBucket(ctx context.Context, bucketID string) error {
	var doc bucketDoc
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		var err error
		doc, err = resolveBucket(txn, bucketID)
		if err != nil {
			return err
		}
		return txn.Delete(bucketKey(bucketID))
	})
	if err != nil {
		if model.IsBucketNotFound(err) {
			return err
		}
		return fmt.Errorf("delete bucket %q: %w", bucketID, err)
	}

	if err := s.db.DropPrefix(eventPrefix(doc.InternalKey)); err != nil {
		return fmt.Errorf("delete bucket %q events: %w", bucketID, err)
	}
	return nil
}

// GetBucketMetadata fetches one bucket's metadata by public id.
func (s *Store) GetBucketMetadata(ctx context.Context, bucketID string) (model.BucketMetadata, error) {
	var meta model.BucketMetadata
	err := s.db.View(func(txn *badgerdb.Txn) error {
		doc, err := resolveBucket(txn, bucketID)
		if err != nil {
			return err
		}
		meta = doc.metadata()
		return nil
	})
	if err != nil {
		if model.IsBucketNotFound(err) {
			return model.BucketMetadata{}, err
		}
		return model.BucketMetadata{}, fmt.Errorf("get bucket %q: %w", bucketID, err)
	}
	return meta, nil
}
