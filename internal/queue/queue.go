package queue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/site"
	"github.com/Aman-CERP/searchsync/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS index_queue (
	uid INTEGER PRIMARY KEY AUTOINCREMENT,
	root INTEGER NOT NULL,
	item_type TEXT NOT NULL,
	item_uid INTEGER NOT NULL,
	indexing_configuration TEXT NOT NULL DEFAULT '',
	indexer TEXT NOT NULL DEFAULT '',
	changed INTEGER NOT NULL DEFAULT 0,
	indexed INTEGER NOT NULL DEFAULT 0,
	errors TEXT NOT NULL DEFAULT '',
	error_count INTEGER NOT NULL DEFAULT 0,
	UNIQUE (item_type, item_uid, root)
);
CREATE INDEX IF NOT EXISTS idx_index_queue_pending ON index_queue(root, changed);
CREATE INDEX IF NOT EXISTS idx_index_queue_item ON index_queue(item_type, item_uid);
`

const itemColumns = `uid, root, item_type, item_uid, indexing_configuration, indexer,
	changed, indexed, errors, error_count`

// unknownError is recorded when an item fails without a message.
const unknownError = "unknown indexing error"

// Record is a candidate for the queue produced by a RecordSource.
type Record struct {
	UID     int
	Changed int64
}

// RecordSource lists the indexable records of a configuration within a site.
type RecordSource interface {
	IndexableRecords(ctx context.Context, s site.Site, cfg site.IndexingConfiguration) ([]Record, error)
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// Queue is the SQLite backed index queue.
type Queue struct {
	mu     sync.RWMutex
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
	closed bool
}

// Open opens the queue database at path. An empty path keeps it in memory.
func Open(path string, opts ...Option) (*Queue, error) {
	db, err := store.Open(path, schema)
	if err != nil {
		return nil, fmt.Errorf("open index queue: %w", err)
	}
	q := &Queue{db: db, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Close closes the database. It is idempotent.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	return store.Close(q.db)
}

// Initialize (re)populates the queue of a site from source. An empty
// configurationName initializes every configuration. The result reports
// success per configuration name; existing items are never duplicated.
func (q *Queue) Initialize(ctx context.Context, s site.Site, configurationName string, source RecordSource) (map[string]bool, error) {
	configs := s.Configurations
	if configurationName != "" {
		cfg, ok := s.Configuration(configurationName)
		if !ok {
			return nil, serrors.ValidationError(
				fmt.Sprintf("site %d has no indexing configuration %q", s.RootPageID, configurationName), nil)
		}
		configs = []site.IndexingConfiguration{cfg}
	}

	result := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if err := q.initializeConfiguration(ctx, s, cfg, source); err != nil {
			q.logger.Error("queue_initialize_failed",
				slog.Int("root", s.RootPageID),
				slog.String("configuration", cfg.Name),
				slog.String("error", err.Error()))
			result[cfg.Name] = false
			continue
		}
		result[cfg.Name] = true
	}
	return result, nil
}

func (q *Queue) initializeConfiguration(ctx context.Context, s site.Site, cfg site.IndexingConfiguration, source RecordSource) error {
	records, err := source.IndexableRecords(ctx, s, cfg)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	// A record shared with an earlier configuration of the same table stays
	// with that configuration.
	keep, keepArgs := "1 = 1", []any(nil)
	if earlier := earlierConfigurations(s, cfg); len(earlier) > 0 {
		keep = "index_queue.indexing_configuration NOT IN (?" + strings.Repeat(", ?", len(earlier)-1) + ")"
		for _, name := range earlier {
			keepArgs = append(keepArgs, name)
		}
	}

	wanted := make(map[int]bool, len(records))
	for _, r := range records {
		wanted[r.UID] = true
		changed := r.Changed
		if changed <= 0 {
			changed = q.now().Unix()
		}
		_, err := store.Exec(ctx, q.db, "initialize item", `
			INSERT INTO index_queue (root, item_type, item_uid, indexing_configuration, indexer, changed)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(item_type, item_uid, root) DO UPDATE SET
				changed = CASE WHEN index_queue.indexing_configuration = excluded.indexing_configuration
					THEN index_queue.changed
					ELSE MAX(excluded.changed, index_queue.changed + 1, index_queue.indexed + 1) END,
				indexing_configuration = excluded.indexing_configuration,
				indexer = excluded.indexer
			WHERE `+keep+`
		`, append([]any{s.RootPageID, cfg.Table, r.UID, cfg.Name, cfg.Indexer, changed}, keepArgs...)...)
		if err != nil {
			return err
		}
	}

	// Drop items whose records left the configuration.
	existing, err := q.listItems(ctx, "initialize list",
		`WHERE root = ? AND indexing_configuration = ?`, s.RootPageID, cfg.Name)
	if err != nil {
		return err
	}
	for _, item := range existing {
		if wanted[item.UID] {
			continue
		}
		if _, err := store.Exec(ctx, q.db, "initialize prune",
			`DELETE FROM index_queue WHERE uid = ?`, item.ID); err != nil {
			return err
		}
	}
	return nil
}

// earlierConfigurations returns the names of the configurations of the same
// table listed before cfg in the site.
func earlierConfigurations(s site.Site, cfg site.IndexingConfiguration) []string {
	var out []string
	for _, c := range s.Configurations {
		if c.Name == cfg.Name {
			break
		}
		if c.Table == cfg.Table {
			out = append(out, c.Name)
		}
	}
	return out
}

// UpdateItem adds a record to the queue or marks the existing item changed.
// A site holds one item per record; cfg replaces the item's configuration.
// changed <= 0 uses the current time. The stored changed time strictly
// increases on every update so a concurrent UpdateIndexedTime detects the
// touch, and the item's error is cleared.
func (q *Queue) UpdateItem(ctx context.Context, s site.Site, cfg site.IndexingConfiguration, uid int, changed int64) error {
	if changed <= 0 {
		changed = q.now().Unix()
	}
	_, err := store.Exec(ctx, q.db, "update item", `
		INSERT INTO index_queue (root, item_type, item_uid, indexing_configuration, indexer, changed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_type, item_uid, root) DO UPDATE SET
			changed = MAX(excluded.changed, index_queue.changed + 1, index_queue.indexed + 1),
			indexing_configuration = excluded.indexing_configuration,
			indexer = excluded.indexer,
			errors = ''
	`, s.RootPageID, cfg.Table, uid, cfg.Name, cfg.Indexer, changed)
	return err
}

// GetItemsToIndex returns up to limit stale, error free items of the site,
// oldest change first.
func (q *Queue) GetItemsToIndex(ctx context.Context, s site.Site, limit int) ([]Item, error) {
	if limit <= 0 {
		return nil, nil
	}
	return q.listItems(ctx, "get items to index", `
		WHERE root = ? AND changed > indexed AND errors = ''
		ORDER BY changed ASC, uid ASC
		LIMIT ?`, s.RootPageID, limit)
}

// MarkItemAsFailed records an indexing error and increments the error count
// in a single statement.
func (q *Queue) MarkItemAsFailed(ctx context.Context, item Item, message string) error {
	if message == "" {
		message = unknownError
	}
	res, err := store.Exec(ctx, q.db, "mark item failed", `
		UPDATE index_queue SET errors = ?, error_count = error_count + 1 WHERE uid = ?
	`, message, item.ID)
	if err != nil {
		return err
	}
	return requireAffected(res, item.ID)
}

// UpdateIndexedTime marks the item indexed, unless it changed since it was
// fetched. It reports whether the item was updated.
func (q *Queue) UpdateIndexedTime(ctx context.Context, item Item) (bool, error) {
	res, err := store.Exec(ctx, q.db, "update indexed time", `
		UPDATE index_queue SET indexed = MAX(?, changed), errors = ''
		WHERE uid = ? AND changed = ?
	`, q.now().Unix(), item.ID, item.Changed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, serrors.StorageError("update indexed time", err)
	}
	if n == 0 {
		q.logger.Debug("queue_item_changed_while_indexing",
			slog.Int64("item_id", item.ID),
			slog.String("type", item.Type),
			slog.Int("uid", item.UID))
	}
	return n > 0, nil
}

// Get returns an item by id.
func (q *Queue) Get(ctx context.Context, id int64) (Item, error) {
	items, err := q.listItems(ctx, "get item", `WHERE uid = ?`, id)
	if err != nil {
		return Item{}, err
	}
	if len(items) == 0 {
		return Item{}, fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	return items[0], nil
}

// GetAllItemsCount counts items of a site, or of all sites when root is 0.
func (q *Queue) GetAllItemsCount(ctx context.Context, root int) (int, error) {
	return q.count(ctx, "count items", `WHERE (? = 0 OR root = ?)`, root, root)
}

// GetRemainingItemsCount counts stale items of a site, or of all sites when root is 0.
func (q *Queue) GetRemainingItemsCount(ctx context.Context, root int) (int, error) {
	return q.count(ctx, "count remaining items", `WHERE (? = 0 OR root = ?) AND changed > indexed`, root, root)
}

// ContainsItem reports whether any site queues the record.
func (q *Queue) ContainsItem(ctx context.Context, table string, uid int) (bool, error) {
	n, err := q.count(ctx, "contains item", `WHERE item_type = ? AND item_uid = ?`, table, uid)
	return n > 0, err
}

// ContainsIndexedItem reports whether the record was indexed at least once.
func (q *Queue) ContainsIndexedItem(ctx context.Context, table string, uid int) (bool, error) {
	n, err := q.count(ctx, "contains indexed item", `WHERE item_type = ? AND item_uid = ? AND indexed > 0`, table, uid)
	return n > 0, err
}

// GetItems returns every queue item of a record across sites.
func (q *Queue) GetItems(ctx context.Context, table string, uid int) ([]Item, error) {
	return q.listItems(ctx, "get items", `WHERE item_type = ? AND item_uid = ? ORDER BY uid`, table, uid)
}

// DeleteItem removes a record from the queues of all sites.
func (q *Queue) DeleteItem(ctx context.Context, table string, uid int) error {
	_, err := store.Exec(ctx, q.db, "delete item",
		`DELETE FROM index_queue WHERE item_type = ? AND item_uid = ?`, table, uid)
	return err
}

// DeleteItemForSite removes a record from the queue of one site.
func (q *Queue) DeleteItemForSite(ctx context.Context, root int, table string, uid int) error {
	_, err := store.Exec(ctx, q.db, "delete item for site",
		`DELETE FROM index_queue WHERE root = ? AND item_type = ? AND item_uid = ?`, root, table, uid)
	return err
}

// DeleteItemsBySite removes the items of a site, optionally of one configuration only.
func (q *Queue) DeleteItemsBySite(ctx context.Context, root int, configurationName string) (int64, error) {
	res, err := store.Exec(ctx, q.db, "delete items by site", `
		DELETE FROM index_queue WHERE root = ? AND (? = '' OR indexing_configuration = ?)
	`, root, configurationName, configurationName)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ResetErrors clears the errors of a site's items (all sites when root is 0)
// so the worker retries them.
func (q *Queue) ResetErrors(ctx context.Context, root int) (int64, error) {
	res, err := store.Exec(ctx, q.db, "reset errors", `
		UPDATE index_queue SET errors = '' WHERE errors != '' AND (? = 0 OR root = ?)
	`, root, root)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetErrorItems returns the failed items of a site (all sites when root is 0).
func (q *Queue) GetErrorItems(ctx context.Context, root int) ([]Item, error) {
	return q.listItems(ctx, "get error items",
		`WHERE errors != '' AND (? = 0 OR root = ?) ORDER BY root, uid`, root, root)
}

// IndexedItems returns the items of a site that were indexed at least once.
func (q *Queue) IndexedItems(ctx context.Context, root int) ([]Item, error) {
	return q.listItems(ctx, "indexed items", `WHERE root = ? AND indexed > 0 ORDER BY uid`, root)
}

// SiteItems returns every item of a site.
func (q *Queue) SiteItems(ctx context.Context, root int) ([]Item, error) {
	return q.listItems(ctx, "site items", `WHERE root = ? ORDER BY uid`, root)
}

// Statistics summarizes the queue of a site (all sites when root is 0).
func (q *Queue) Statistics(ctx context.Context, root int) (Statistics, error) {
	var st Statistics
	rows, err := store.Query(ctx, q.db, "statistics", `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN changed > indexed THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN errors != '' THEN 1 ELSE 0 END), 0)
		FROM index_queue WHERE (? = 0 OR root = ?)
	`, root, root)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&st.Total, &st.Pending, &st.Failed); err != nil {
			return st, serrors.StorageError("scan statistics", err)
		}
	}
	st.Indexed = st.Total - st.Pending
	return st, rows.Err()
}

func (q *Queue) count(ctx context.Context, op string, where string, args ...any) (int, error) {
	rows, err := store.Query(ctx, q.db, op, `SELECT COUNT(*) FROM index_queue `+where, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, serrors.StorageError(op, err)
		}
	}
	return n, rows.Err()
}

func (q *Queue) listItems(ctx context.Context, op string, where string, args ...any) ([]Item, error) {
	rows, err := store.Query(ctx, q.db, op, `SELECT `+itemColumns+` FROM index_queue `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Root, &it.Type, &it.UID, &it.IndexingConfiguration,
			&it.Indexer, &it.Changed, &it.Indexed, &it.Errors, &it.ErrorCount); err != nil {
			return nil, serrors.StorageError(op, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return serrors.StorageError("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	return nil
}
