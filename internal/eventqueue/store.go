// Package eventqueue persists change events deferred by the delayed monitoring
// mode and drains them later through the same handlers.
package eventqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/event"
	"github.com/Aman-CERP/searchsync/internal/store"
)

// ErrItemNotFound is returned when an event queue item does not exist.
var ErrItemNotFound = errors.New("event queue item not found")

const schema = `
CREATE TABLE IF NOT EXISTS event_queue (
	uid INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL UNIQUE,
	tstamp INTEGER NOT NULL,
	table_name TEXT NOT NULL,
	item_uid INTEGER NOT NULL,
	event BLOB NOT NULL,
	error INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_event_queue_error ON event_queue(error, uid);
`

const itemColumns = `uid, event_id, tstamp, table_name, item_uid, event, error, error_message`

// Item is a persisted deferred event.
type Item struct {
	ID           int64
	EventID      string
	Tstamp       int64
	Table        string
	UID          int
	Error        bool
	ErrorMessage string

	// payload is the snappy compressed event envelope.
	payload []byte
}

// Counts summarizes the queue.
type Counts struct {
	Total   int `json:"total"`
	Errored int `json:"errored"`
}

// Store is the SQLite backed event queue.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	codec  *event.Codec
	now    func() time.Time
	closed bool
}

// Open opens the event queue at path. An empty path keeps it in memory.
func Open(path string, codec *event.Codec) (*Store, error) {
	db, err := store.Open(path, schema)
	if err != nil {
		return nil, fmt.Errorf("open event queue: %w", err)
	}
	if codec == nil {
		codec = event.NewCodec()
	}
	return &Store{db: db, codec: codec, now: time.Now}, nil
}

// Close closes the database. It is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return store.Close(s.db)
}

// AddEventToQueue serializes ev and appends it to the queue.
func (s *Store) AddEventToQueue(ctx context.Context, ev event.ChangeEvent) error {
	data, err := s.codec.Encode(ev)
	if err != nil {
		return serrors.New(serrors.ErrCodeInvalidEvent, "cannot serialize event", err)
	}
	_, err = store.Exec(ctx, s.db, "add event", `
		INSERT INTO event_queue (event_id, tstamp, table_name, item_uid, event)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), s.now().Unix(), ev.Table(), ev.UID(), snappy.Encode(nil, data))
	return err
}

// GetEventQueueItems returns queued events oldest first. limit <= 0 returns all.
func (s *Store) GetEventQueueItems(ctx context.Context, limit int, includeErrored bool) ([]Item, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := store.Query(ctx, s.db, "get event queue items", `
		SELECT `+itemColumns+` FROM event_queue
		WHERE (? OR error = 0)
		ORDER BY uid ASC
		LIMIT ?
	`, includeErrored, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Get returns one item by id.
func (s *Store) Get(ctx context.Context, id int64) (Item, error) {
	rows, err := store.Query(ctx, s.db, "get event", `SELECT `+itemColumns+` FROM event_queue WHERE uid = ?`, id)
	if err != nil {
		return Item{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Item{}, serrors.StorageError("get event", err)
		}
		return Item{}, fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	return scanItem(rows)
}

// Event decodes the event stored in item.
func (s *Store) Event(item Item) (event.ChangeEvent, error) {
	data, err := snappy.Decode(nil, item.payload)
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeInvalidEvent,
			fmt.Sprintf("event %s: snappy decompress failed", item.EventID), err)
	}
	ev, err := s.codec.Decode(data)
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeInvalidEvent,
			fmt.Sprintf("event %s cannot be decoded", item.EventID), err)
	}
	return ev, nil
}

// MarkAsError flags item as failed. It stays in the queue for inspection.
func (s *Store) MarkAsError(ctx context.Context, item Item, message string) error {
	res, err := store.Exec(ctx, s.db, "mark event failed",
		`UPDATE event_queue SET error = 1, error_message = ? WHERE uid = ?`, message, item.ID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrItemNotFound, item.ID)
	}
	return nil
}

// Remove deletes item.
func (s *Store) Remove(ctx context.Context, item Item) error {
	_, err := store.Exec(ctx, s.db, "remove event", `DELETE FROM event_queue WHERE uid = ?`, item.ID)
	return err
}

// RemoveAll empties the queue and returns the number of removed items.
func (s *Store) RemoveAll(ctx context.Context) (int64, error) {
	res, err := store.Exec(ctx, s.db, "remove all events", `DELETE FROM event_queue`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ResetErrors clears the error flag of every item so the next drain retries it.
func (s *Store) ResetErrors(ctx context.Context) (int64, error) {
	res, err := store.Exec(ctx, s.db, "reset event errors",
		`UPDATE event_queue SET error = 0, error_message = '' WHERE error = 1`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Count returns the number of queued and errored items.
func (s *Store) Count(ctx context.Context) (Counts, error) {
	var c Counts
	rows, err := store.Query(ctx, s.db, "count events",
		`SELECT COUNT(*), COALESCE(SUM(error), 0) FROM event_queue`)
	if err != nil {
		return c, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&c.Total, &c.Errored); err != nil {
			return c, serrors.StorageError("scan event counts", err)
		}
	}
	return c, rows.Err()
}

func scanItem(rows *sql.Rows) (Item, error) {
	var it Item
	var errFlag int
	if err := rows.Scan(&it.ID, &it.EventID, &it.Tstamp, &it.Table, &it.UID,
		&it.payload, &errFlag, &it.ErrorMessage); err != nil {
		return Item{}, serrors.StorageError("scan event", err)
	}
	it.Error = errFlag != 0
	return it, nil
}
