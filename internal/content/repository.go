package content

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Aman-CERP/searchsync/internal/access"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/store"
)

// ErrRecordNotFound is returned when a record does not exist or is deleted.
var ErrRecordNotFound = errors.New("record not found")

// PageTable is the table holding pages.
const PageTable = "pages"

// maxRootlineDepth guards against cycles in corrupted page trees.
const maxRootlineDepth = 100

// Repository reads records and the page tree.
type Repository interface {
	GetRecord(ctx context.Context, table string, uid int) (Row, error)
	GetRecordIncludingDeleted(ctx context.Context, table string, uid int) (Row, error)
	AncestorChain(ctx context.Context, pageID int) ([]access.Page, error)
	AncestorIDs(ctx context.Context, pageID int) ([]int, error)
	SubpageIDs(ctx context.Context, pageID int) ([]int, error)
	Records(ctx context.Context, table string, pageIDs []int) ([]Row, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
	table_name TEXT NOT NULL,
	uid INTEGER NOT NULL,
	pid INTEGER NOT NULL DEFAULT 0,
	deleted INTEGER NOT NULL DEFAULT 0,
	hidden INTEGER NOT NULL DEFAULT 0,
	starttime INTEGER NOT NULL DEFAULT 0,
	endtime INTEGER NOT NULL DEFAULT 0,
	fe_group TEXT NOT NULL DEFAULT '',
	extend_to_subpages INTEGER NOT NULL DEFAULT 0,
	is_siteroot INTEGER NOT NULL DEFAULT 0,
	doktype INTEGER NOT NULL DEFAULT 0,
	no_search INTEGER NOT NULL DEFAULT 0,
	tstamp INTEGER NOT NULL DEFAULT 0,
	data TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (table_name, uid)
);
CREATE INDEX IF NOT EXISTS idx_records_pid ON records(table_name, pid);
`

const selectColumns = `table_name, uid, pid, deleted, hidden, starttime, endtime, fe_group,
	extend_to_subpages, is_siteroot, doktype, no_search, tstamp, data`

// SQLiteRepository stores a snapshot of the content repository in SQLite.
type SQLiteRepository struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var (
	_ Repository          = (*SQLiteRepository)(nil)
	_ access.PageProvider = (*SQLiteRepository)(nil)
)

// NewSQLiteRepository opens the snapshot at path. An empty path keeps it in memory.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := store.Open(path, schema)
	if err != nil {
		return nil, fmt.Errorf("open content repository: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return store.Close(r.db)
}

// Upsert inserts or replaces a record. Known columns are stored in their own
// columns, everything else in the data document.
func (r *SQLiteRepository) Upsert(ctx context.Context, table string, row Row) error {
	if row.UID() <= 0 {
		return serrors.ValidationError(fmt.Sprintf("record of %s needs a positive uid", table), nil)
	}

	extra := make(map[string]any)
	for k, v := range row {
		if !isCoreColumn(k) {
			extra[k] = v
		}
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return fmt.Errorf("encode record data: %w", err)
	}

	_, err = store.Exec(ctx, r.db, "upsert record", `
		INSERT INTO records (table_name, uid, pid, deleted, hidden, starttime, endtime, fe_group,
			extend_to_subpages, is_siteroot, doktype, no_search, tstamp, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(table_name, uid) DO UPDATE SET
			pid = excluded.pid, deleted = excluded.deleted, hidden = excluded.hidden,
			starttime = excluded.starttime, endtime = excluded.endtime, fe_group = excluded.fe_group,
			extend_to_subpages = excluded.extend_to_subpages, is_siteroot = excluded.is_siteroot,
			doktype = excluded.doktype, no_search = excluded.no_search, tstamp = excluded.tstamp,
			data = excluded.data
	`, table, row.UID(), row.PID(), boolInt(row.Bool(ColDeleted)), boolInt(row.Bool(ColHidden)),
		row.Int64(ColStartTime), row.Int64(ColEndTime), row.Text(ColFeGroup),
		boolInt(row.Bool(ColExtendToSubpages)), boolInt(row.Bool(ColIsSiteRoot)),
		row.Int(ColDoktype), boolInt(row.Bool(ColNoSearch)), row.Int64(ColTstamp), string(data))
	return err
}

// Remove deletes a record from the snapshot.
func (r *SQLiteRepository) Remove(ctx context.Context, table string, uid int) error {
	_, err := store.Exec(ctx, r.db, "remove record",
		`DELETE FROM records WHERE table_name = ? AND uid = ?`, table, uid)
	return err
}

// GetRecord returns a non-deleted record.
func (r *SQLiteRepository) GetRecord(ctx context.Context, table string, uid int) (Row, error) {
	row, err := r.GetRecordIncludingDeleted(ctx, table, uid)
	if err != nil {
		return nil, err
	}
	if row.Bool(ColDeleted) {
		return nil, fmt.Errorf("%w: %s:%d is deleted", ErrRecordNotFound, table, uid)
	}
	return row, nil
}

// GetRecordIncludingDeleted returns a record even when it is marked deleted.
func (r *SQLiteRepository) GetRecordIncludingDeleted(ctx context.Context, table string, uid int) (Row, error) {
	rows, err := store.Query(ctx, r.db, "get record",
		`SELECT `+selectColumns+` FROM records WHERE table_name = ? AND uid = ?`, table, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, serrors.StorageError("get record", err)
		}
		return nil, fmt.Errorf("%w: %s:%d", ErrRecordNotFound, table, uid)
	}
	return scanRow(rows)
}

// AncestorChain returns the pages from the site root down to pageID.
func (r *SQLiteRepository) AncestorChain(ctx context.Context, pageID int) ([]access.Page, error) {
	var chain []access.Page
	current := pageID
	for depth := 0; current > 0; depth++ {
		if depth >= maxRootlineDepth {
			return nil, fmt.Errorf("rootline of page %d exceeds %d levels", pageID, maxRootlineDepth)
		}
		page, err := r.GetRecordIncludingDeleted(ctx, PageTable, current)
		if err != nil {
			return nil, fmt.Errorf("rootline of page %d: %w", pageID, err)
		}
		chain = append(chain, access.Page{
			UID:              page.UID(),
			Groups:           page.Groups(ColFeGroup),
			ExtendToSubpages: page.Bool(ColExtendToSubpages),
		})
		if page.Bool(ColIsSiteRoot) {
			break
		}
		current = page.PID()
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// AncestorIDs returns the uids of AncestorChain.
func (r *SQLiteRepository) AncestorIDs(ctx context.Context, pageID int) ([]int, error) {
	chain, err := r.AncestorChain(ctx, pageID)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(chain))
	for i, p := range chain {
		ids[i] = p.UID
	}
	return ids, nil
}

// SubpageIDs returns the uids of all non-deleted pages below pageID, breadth first.
func (r *SQLiteRepository) SubpageIDs(ctx context.Context, pageID int) ([]int, error) {
	var out []int
	seen := map[int]bool{pageID: true}
	queue := []int{pageID}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		children, err := r.childIDs(ctx, parent)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out, nil
}

func (r *SQLiteRepository) childIDs(ctx context.Context, parent int) ([]int, error) {
	rows, err := store.Query(ctx, r.db, "list subpages",
		`SELECT uid FROM records WHERE table_name = ? AND pid = ? AND deleted = 0 ORDER BY uid`,
		PageTable, parent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, serrors.StorageError("scan subpage", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Records returns non-deleted records of table located on pageIDs. For the
// page table the pages themselves are returned.
func (r *SQLiteRepository) Records(ctx context.Context, table string, pageIDs []int) ([]Row, error) {
	if len(pageIDs) == 0 {
		return nil, nil
	}

	col := "pid"
	if table == PageTable {
		col = "uid"
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(pageIDs)), ",")
	args := make([]any, 0, len(pageIDs)+1)
	args = append(args, table)
	for _, id := range pageIDs {
		args = append(args, id)
	}

	rows, err := store.Query(ctx, r.db, "list records",
		`SELECT `+selectColumns+` FROM records
		 WHERE table_name = ? AND deleted = 0 AND `+col+` IN (`+placeholders+`)
		 ORDER BY uid`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func scanRow(rows *sql.Rows) (Row, error) {
	var table, feGroup, data string
	var uid, pid, doktype int
	var deleted, hidden, extend, siteRoot, noSearch int
	var start, end, tstamp int64
	if err := rows.Scan(&table, &uid, &pid, &deleted, &hidden, &start, &end, &feGroup,
		&extend, &siteRoot, &doktype, &noSearch, &tstamp, &data); err != nil {
		return nil, serrors.StorageError("scan record", err)
	}

	row := Row{}
	if data != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(data)))
		dec.UseNumber()
		if err := dec.Decode(&row); err != nil {
			return nil, serrors.New(serrors.ErrCodeCorruptStorage,
				fmt.Sprintf("record %s:%d has an invalid data document", table, uid), err)
		}
	}
	row[ColUID] = uid
	row[ColPID] = pid
	row[ColDeleted] = deleted
	row[ColHidden] = hidden
	row[ColStartTime] = start
	row[ColEndTime] = end
	row[ColFeGroup] = feGroup
	row[ColExtendToSubpages] = extend
	row[ColIsSiteRoot] = siteRoot
	row[ColDoktype] = doktype
	row[ColNoSearch] = noSearch
	row[ColTstamp] = tstamp
	return row, nil
}

func isCoreColumn(col string) bool {
	switch col {
	case ColUID, ColPID, ColDeleted, ColHidden, ColStartTime, ColEndTime, ColFeGroup,
		ColExtendToSubpages, ColIsSiteRoot, ColDoktype, ColNoSearch, ColTstamp:
		return true
	}
	return false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
