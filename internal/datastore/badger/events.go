package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/tidemark/tidemark/internal/model"
	"github.com/tidemark/tidemark/internal/timespan"
)

// eventDoc is the stored form of an event. The id lives in the key, not
// the document.
type eventDoc struct {
	Timestamp int64          `json:"timestamp"`
	Duration  int64          `json:"duration"`
	Data      map[string]any `json:"data"`
}

func encodeEvent(event model.Event) ([]byte, error) {
	data := event.Data
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(eventDoc{
		Timestamp: event.Timestamp.UTC().UnixNano(),
		Duration:  int64(event.Duration),
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return raw, nil
}

func decodeEvent(id int64, raw []byte) (model.Event, error) {
	var doc eventDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return model.Event{}, fmt.Errorf("decode event %d: %w", id, err)
	}
	return model.Event{
		ID:        model.NewEventID(id),
		Timestamp: time.Unix(0, doc.Timestamp).UTC(),
		Duration:  time.Duration(doc.Duration),
		Data:      doc.Data,
	}, nil
}

// parseEventID recovers the numeric id from an event key.
func parseEventID(key []byte, prefix []byte) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(string(key[len(prefix):]), "%016x", &id); err != nil {
		return 0, fmt.Errorf("parse event key %q: %w", key, err)
	}
	return id, nil
}

// scanEvents walks a bucket's event prefix, collecting events that overlap
// the range. Key order is id order, not time order, so callers sort.
func scanEvents(txn *badgerdb.Txn, internalKey string, r timespan.Range) ([]model.Event, error) {
	prefix := eventPrefix(internalKey)
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	events := []model.Event{}
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		id, err := parseEventID(item.Key(), prefix)
		if err != nil {
			return nil, err
		}
		err = item.Value(func(val []byte) error {
			event, err := decodeEvent(id, val)
			if err != nil {
				return err
			}
			if r.Overlaps(event.Timestamp, event.Duration) {
				events = append(events, event)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return events, nil
}

// sortNewestFirst orders events by timestamp descending, breaking ties by
// id descending for determinism.
func sortNewestFirst(events []model.Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		return events[i].ID.Value > events[j].ID.Value
	})
}

// GetEvent fetches one event by id. A missing event is (nil, nil).
func (s *Store) GetEvent(ctx context.Context, bucketID string, eventID int64) (*model.Event, error) {
	var event *model.Event
	err := s.db.View(func(txn *badgerdb.Txn) error {
		doc, err := resolveBucket(txn, bucketID)
		if err != nil {
			return err
		}
		raw, err := getValue(txn, eventKey(doc.InternalKey, eventID))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		decoded, err := decodeEvent(eventID, raw)
		if err != nil {
			return err
		}
		event = &decoded
		return nil
	})
	if err != nil {
		if model.IsBucketNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("get event %d: %w", eventID, err)
	}
	return event, nil
}

// GetEvents returns up to limit events overlapping r, newest first.
func (s *Store) GetEvents(ctx context.Context, bucketID string, limit int, r timespan.Range) ([]model.Event, error) {
	var events []model.Event
	err := s.db.View(func(txn *badgerdb.Txn) error {
		doc, err := resolveBucket(txn, bucketID)
		if err != nil {
			return err
		}
		events, err = scanEvents(txn, doc.InternalKey, r)
		return err
	})
	if err != nil {
		if model.IsBucketNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("query events: %w", err)
	}

	sortNewestFirst(events)
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// CountEvents counts events overlapping r.
func (s *Store) CountEvents(ctx context.Context, bucketID string, r timespan.Range) (int, error) {
	var count int
	err := s.db.View(func(txn *badgerdb.Txn) error {
		doc, err := resolveBucket(txn, bucketID)
		if err != nil {
			return err
		}
		events, err := scanEvents(txn, doc.InternalKey, r)
		if err != nil {
			return err
		}
		count = len(events)
		return nil
	})
	if err != nil {
		if model.IsBucketNotFound(err) {
			return 0, err
		}
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// InsertOne persists a pending event under a freshly allocated id.
func (s *Store) InsertOne(ctx context.Context, bucketID string, event model.Event) (model.Event, error) {
	raw, err := encodeEvent(event)
	if err != nil {
		return model.Event{}, err
	}
	id, err := s.nextEventID()
	if err != nil {
		return model.Event{}, err
	}

	err = s.db.Update(func(txn *badgerdb.Txn) error {
		doc, err := resolveBucket(txn, bucketID)
		if err != nil {
			return err
		}
		return txn.Set(eventKey(doc.InternalKey, id), raw)
	})
	if err != nil {
		if model.IsBucketNotFound(err) {
			return model.Event{}, err
		}
		return model.Event{}, fmt.Errorf("insert event: %w", err)
	}

	event.ID = model.NewEventID(id)
	return event, nil
}

// InsertBatch bulk-inserts pending events in one transaction.
func (s *Store) InsertBatch(ctx context.Context, bucketID string, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		doc, err := resolveBucket(txn, bucketID)
		if err != nil {
			return err
		}
		for _, event := range events {
			raw, err := encodeEvent(event)
			if err != nil {
				return err
			}
			id, err := s.nextEventID()
			if err != nil {
				return err
			}
			if err := txn.Set(eventKey(doc.InternalKey, id), raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if model.IsBucketNotFound(err) {
			return err
		}
		return fmt.Errorf("insert event batch: %w", err)
	}
	return nil
}

// Replace overwrites an existing event in place, keeping its id.
func (s *Store) Replace(ctx context.Context, bucketID string, eventID int64, event model.Event) (model.Event, error) {
	raw, err := encodeEvent(event)
	if err != nil {
		return model.Event{}, err
	}

	err = s.db.Update(func(txn *badgerdb.Txn) error {
		doc, err := resolveBucket(txn, bucketID)
		if err != nil {
			return err
		}
		key := eventKey(doc.InternalKey, eventID)
		if _, err := txn.Get(key); errors.Is(err, badgerdb.ErrKeyNotFound) {
			return model.NewEventNotFound(bucketID, model.NewEventID(eventID))
		} else if err != nil {
			return err
		}
		return txn.Set(key, raw)
	})
	if err != nil {
		if model.IsBucketNotFound(err) || model.IsEventNotFound(err) {
			return model.Event{}, err
		}
		return model.Event{}, fmt.Errorf("replace event %d: %w", eventID, err)
	}

	event.ID = model.NewEventID(eventID)
	return event, nil
}

// ReplaceLast overwrites the bucket's chronologically last event. The
// locate and write steps share one transaction.
func (s *Store) ReplaceLast(ctx context.Context, bucketID string, event model.Event) (model.Event, error) {
	raw, err := encodeEvent(event)
	if err != nil {
		return model.Event{}, err
	}

	var lastID int64
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		doc, err := resolveBucket(txn, bucketID)
		if err != nil {
			return err
		}
		events, err := scanEvents(txn, doc.InternalKey, timespan.Range{})
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return model.NewEventNotFound(bucketID, model.EventID{})
		}
		sortNewestFirst(events)
		lastID = events[0].ID.Value
		return txn.Set(eventKey(doc.InternalKey, lastID), raw)
	})
	if err != nil {
		if model.IsBucketNotFound(err) || model.IsEventNotFound(err) {
			return model.Event{}, err
		}
		return model.Event{}, fmt.Errorf("replace last event: %w", err)
	}

	event.ID = model.NewEventID(lastID)
	return event, nil
}

// DeleteEvent removes one event, reporting whether a key was deleted.
func (s *Store) DeleteEvent(ctx context.Context, bucketID string, eventID int64) (bool, error) {
	deleted := false
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		doc, err := resolveBucket(txn, bucketID)
		if err != nil {
			return err
		}
		key := eventKey(doc.InternalKey, eventID)
		if _, err := txn.Get(key); errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		if model.IsBucketNotFound(err) {
			return false, err
		}
		return false, fmt.Errorf("delete event %d: %w", eventID, err)
	}
	return deleted, nil
}
