// Package badger stores buckets, events and auxiliary records in an
// embedded BadgerDB key-value store. It trades SQL queries for pure
// key-prefix scans, which suits deployments that want a single dependency
// and no SQL engine.
//
// Key layout:
//
//	bucket/<public-id>          -> bucket document
//	event/<internal-key>/<id>   -> event document (id is zero-padded hex)
//	cred/<email>                -> credential document
//	report/<email>/<day-unix>   -> report document
//
// Events hang off the bucket's internal key, so deleting a bucket is one
// prefix drop and a renamed public id could never orphan events.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"

	badgerdb "github.com/dgraph-io/badger/v4"
)

// eventSequenceKey names the Badger sequence that allocates event ids.
const eventSequenceKey = "seq/event"

// sequenceBandwidth is how many ids a sequence lease reserves at once.
const sequenceBandwidth = 128

// Store implements the storage contract on BadgerDB.
type Store struct {
	db  *badgerdb.DB
	seq *badgerdb.Sequence
}

// Open creates or opens a Badger dataset at the given directory.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create badger directory %s: %w", path, err)
	}

	opts := badgerdb.DefaultOptions(path)
	opts.Logger = nil

	return open(opts)
}

// OpenInMemory opens a throwaway in-memory dataset. Used by tests.
func OpenInMemory() (*Store, error) {
	opts := badgerdb.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	return open(opts)
}

func open(opts badgerdb.Options) (*Store, error) {
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	seq, err := db.GetSequence([]byte(eventSequenceKey), sequenceBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open event id sequence: %w", err)
	}

	return &Store{db: db, seq: seq}, nil
}

// Ping verifies the store is usable.
func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close releases the id sequence lease and closes the database.
func (s *Store) Close() error {
	if s.seq != nil {
		if err := s.seq.Release(); err != nil {
			s.db.Close()
			return fmt.Errorf("release event id sequence: %w", err)
		}
	}
	return s.db.Close()
}

// nextEventID allocates the next event id. Sequence values start at 0 and
// ids at 1, so 0 stays reserved for "pending".
func (s *Store) nextEventID() (int64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("allocate event id: %w", err)
	}
	return int64(n) + 1, nil
}

func bucketKey(bucketID string) []byte {
	return []byte("bucket/" + bucketID)
}

func eventPrefix(internalKey string) []byte {
	return []byte("event/" + internalKey + "/")
}

// eventKey zero-pads the id in hex so lexicographic key order matches
// numeric id order.
func eventKey(internalKey string, eventID int64) []byte {
	return []byte(fmt.Sprintf("event/%s/%016x", internalKey, eventID))
}

func credentialKey(email string) []byte {
	return []byte("cred/" + email)
}

func credentialPrefix() []byte {
	return []byte("cred/")
}

func reportKey(email string, dayUnix int64) []byte {
	return []byte(fmt.Sprintf("report/%s/%d", email, dayUnix))
}

// getValue copies the value under key out of the transaction.
func getValue(txn *badgerdb.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	var value []byte
	err = item.Value(func(val []byte) error {
		value = append([]byte{}, val...)
		return nil
	})
	return value, err
}
