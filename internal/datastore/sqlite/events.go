package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidemark/tidemark/internal/model"
	"github.com/tidemark/tidemark/internal/timespan"
)

// rangeClause builds the overlap filter for a time range: an event matches
// when its start is not past the range end and its end point is not before
// the range start. Open bounds contribute no condition.
func rangeClause(r timespan.Range) (string, []any) {
	r = r.UTC()
	var clause strings.Builder
	var args []any
	if r.HasEnd() {
		clause.WriteString(" AND timestamp <= ?")
		args = append(args, r.End.UnixNano())
	}
	if r.HasStart() {
		clause.WriteString(" AND timestamp + duration >= ?")
		args = append(args, r.Start.UnixNano())
	}
	return clause.String(), args
}

// scanEvent reads one event row into the shared model shape.
func scanEvent(rows *sql.Rows) (model.Event, error) {
	var (
		id       int64
		ts       int64
		dur      int64
		dataJSON string
	)
	if err := rows.Scan(&id, &ts, &dur, &dataJSON); err != nil {
		return model.Event{}, fmt.Errorf("scan event: %w", err)
	}
	data, err := unmarshalData(dataJSON)
	if err != nil {
		return model.Event{}, err
	}
	return model.Event{
		ID:        model.NewEventID(id),
		Timestamp: time.Unix(0, ts).UTC(),
		Duration:  time.Duration(dur),
		Data:      data,
	}, nil
}

// GetEvent fetches one event by id. A missing event is (nil, nil).
func (s *Store) GetEvent(ctx context.Context, bucketID string, eventID int64) (*model.Event, error) {
	key, err := resolveKey(ctx, s.db, bucketID)
	if err != nil {
		return nil, err
	}

	var (
		ts       int64
		dur      int64
		dataJSON string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT timestamp, duration, data
		FROM events
		WHERE bucket_key = ? AND id = ?
	`, key, eventID).Scan(&ts, &dur, &dataJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", eventID, err)
	}

	data, err := unmarshalData(dataJSON)
	if err != nil {
		return nil, err
	}
	return &model.Event{
		ID:        model.NewEventID(eventID),
		Timestamp: time.Unix(0, ts).UTC(),
		Duration:  time.Duration(dur),
		Data:      data,
	}, nil
}

// GetEvents returns up to limit events overlapping r, newest first. Ties on
// timestamp break by id descending so ordering stays deterministic.
func (s *Store) GetEvents(ctx context.Context, bucketID string, limit int, r timespan.Range) ([]model.Event, error) {
	key, err := resolveKey(ctx, s.db, bucketID)
	if err != nil {
		return nil, err
	}

	clause, clauseArgs := rangeClause(r)
	query := `
		SELECT id, timestamp, duration, data
		FROM events
		WHERE bucket_key = ?` + clause + `
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`
	args := append([]any{key}, clauseArgs...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// CountEvents counts events overlapping r without materializing them.
func (s *Store) CountEvents(ctx context.Context, bucketID string, r timespan.Range) (int, error) {
	key, err := resolveKey(ctx, s.db, bucketID)
	if err != nil {
		return 0, err
	}

	clause, clauseArgs := rangeClause(r)
	query := `SELECT COUNT(*) FROM events WHERE bucket_key = ?` + clause
	args := append([]any{key}, clauseArgs...)

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// InsertOne persists a pending event and returns it with the row id
// assigned by SQLite.
func (s *Store) InsertOne(ctx context.Context, bucketID string, event model.Event) (model.Event, error) {
	key, err := resolveKey(ctx, s.db, bucketID)
	if err != nil {
		return model.Event{}, err
	}

	dataJSON, err := marshalData(event.Data)
	if err != nil {
		return model.Event{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO events (bucket_key, timestamp, duration, data)
		VALUES (?, ?, ?, ?)
	`, key, event.Timestamp.UTC().UnixNano(), int64(event.Duration), dataJSON)
	if err != nil {
		return model.Event{}, fmt.Errorf("insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return model.Event{}, fmt.Errorf("insert event: last insert id: %w", err)
	}
	event.ID = model.NewEventID(id)
	return event, nil
}

// InsertBatch bulk-inserts pending events as one multi-row statement, so a
// failed batch leaves nothing behind. Callers bound the batch size.
func (s *Store) InsertBatch(ctx context.Context, bucketID string, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	key, err := resolveKey(ctx, s.db, bucketID)
	if err != nil {
		return err
	}

	var placeholders strings.Builder
	args := make([]any, 0, len(events)*4)
	for i, event := range events {
		if i > 0 {
			placeholders.WriteString(", ")
		}
		placeholders.WriteString("(?, ?, ?, ?)")

		dataJSON, err := marshalData(event.Data)
		if err != nil {
			return err
		}
		args = append(args, key, event.Timestamp.UTC().UnixNano(), int64(event.Duration), dataJSON)
	}

	query := `INSERT INTO events (bucket_key, timestamp, duration, data) VALUES ` + placeholders.String()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert event batch: %w", err)
	}
	return nil
}

// Replace overwrites an existing event in place, keeping its id.
func (s *Store) Replace(ctx context.Context, bucketID string, eventID int64, event model.Event) (model.Event, error) {
	key, err := resolveKey(ctx, s.db, bucketID)
	if err != nil {
		return model.Event{}, err
	}

	dataJSON, err := marshalData(event.Data)
	if err != nil {
		return model.Event{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET timestamp = ?, duration = ?, data = ?
		WHERE bucket_key = ? AND id = ?
	`, event.Timestamp.UTC().UnixNano(), int64(event.Duration), dataJSON, key, eventID)
	if err != nil {
		return model.Event{}, fmt.Errorf("replace event %d: %w", eventID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return model.Event{}, fmt.Errorf("replace event %d: rows affected: %w", eventID, err)
	}
	if affected == 0 {
		return model.Event{}, model.NewEventNotFound(bucketID, model.NewEventID(eventID))
	}

	event.ID = model.NewEventID(eventID)
	return event, nil
}

// ReplaceLast overwrites the bucket's chronologically last event inside a
// transaction so the locate and update steps observe the same row.
func (s *Store) ReplaceLast(ctx context.Context, bucketID string, event model.Event) (model.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Event{}, fmt.Errorf("replace last: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	key, err := resolveKey(ctx, tx, bucketID)
	if err != nil {
		return model.Event{}, err
	}

	var lastID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM events
		WHERE bucket_key = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`, key).Scan(&lastID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, model.NewEventNotFound(bucketID, model.EventID{})
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("replace last: find last event: %w", err)
	}

	dataJSON, err := marshalData(event.Data)
	if err != nil {
		return model.Event{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE events
		SET timestamp = ?, duration = ?, data = ?
		WHERE id = ?
	`, event.Timestamp.UTC().UnixNano(), int64(event.Duration), dataJSON, lastID); err != nil {
		return model.Event{}, fmt.Errorf("replace last: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Event{}, fmt.Errorf("replace last: commit: %w", err)
	}

	event.ID = model.NewEventID(lastID)
	return event, nil
}

// DeleteEvent removes one event, reporting whether a row was deleted.
func (s *Store) DeleteEvent(ctx context.Context, bucketID string, eventID int64) (bool, error) {
	key, err := resolveKey(ctx, s.db, bucketID)
	if err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM events WHERE bucket_key = ? AND id = ?
	`, key, eventID)
	if err != nil {
		return false, fmt.Errorf("delete event %d: %w", eventID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete event %d: rows affected: %w", eventID, err)
	}
	return affected > 0, nil
}
