package handler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchsync/internal/access"
	"github.com/Aman-CERP/searchsync/internal/content"
	"github.com/Aman-CERP/searchsync/internal/document"
	"github.com/Aman-CERP/searchsync/internal/event"
	"github.com/Aman-CERP/searchsync/internal/queue"
	"github.com/Aman-CERP/searchsync/internal/searchclient"
	"github.com/Aman-CERP/searchsync/internal/site"
)

var (
	siteA = site.Site{
		RootPageID: 1,
		Domain:     "a.example.com",
		Configurations: []site.IndexingConfiguration{
			{Name: "pages", Table: "pages"},
			{Name: "news", Table: "tx_news"},
			{Name: "news_archive", Table: "tx_news"},
		},
	}
	siteB = site.Site{
		RootPageID:     10,
		Domain:         "b.example.com",
		Configurations: []site.IndexingConfiguration{{Name: "pages", Table: "pages"}},
	}
)

type env struct {
	repo    *content.SQLiteRepository
	queue   *queue.Queue
	search  *searchclient.BleveClient
	data    *DataUpdateHandler
	garbage *GarbageHandler
}

// newEnv builds the page tree
//
//	1 (site a) > 2 (group 4, extends to subpages) > 3
//	10 (site b) > 11
//	20 (no site)
//
// with news record 9 on page 1 and content element 30 on page 3.
func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	repo, err := content.NewSQLiteRepository(filepath.Join(dir, "content.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	q, err := queue.Open(filepath.Join(dir, "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	search, err := searchclient.NewBleveClient("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = search.Close() })

	pages := []content.Row{
		{"uid": 1, "pid": 0, "is_siteroot": 1, "doktype": 1},
		{"uid": 2, "pid": 1, "doktype": 1, "fe_group": "4", "extendToSubpages": 1},
		{"uid": 3, "pid": 2, "doktype": 1},
		{"uid": 10, "pid": 0, "is_siteroot": 1, "doktype": 1},
		{"uid": 11, "pid": 10, "doktype": 1},
		{"uid": 20, "pid": 0, "doktype": 1},
	}
	for _, p := range pages {
		require.NoError(t, repo.Upsert(ctx, "pages", p))
	}
	require.NoError(t, repo.Upsert(ctx, "tx_news", content.Row{"uid": 9, "pid": 1}))
	require.NoError(t, repo.Upsert(ctx, event.ContentTable, content.Row{"uid": 30, "pid": 3}))

	deps := Deps{
		Sites:     site.NewStaticRepository([]site.Site{siteA, siteB}, repo),
		Records:   repo,
		Queue:     q,
		Search:    search,
		Rootlines: access.NewBuilder(repo, 0, nil),
		Now:       func() time.Time { return time.Unix(1000, 0) },
	}
	data := NewDataUpdateHandler(deps)
	return &env{
		repo:    repo,
		queue:   q,
		search:  search,
		data:    data,
		garbage: NewGarbageHandler(deps, data),
	}
}

func (e *env) items(t *testing.T, table string, uid int) []queue.Item {
	t.Helper()
	items, err := e.queue.GetItems(context.Background(), table, uid)
	require.NoError(t, err)
	return items
}

func (e *env) index(t *testing.T, s site.Site, table string, uid int) {
	t.Helper()
	doc := document.Document{
		document.FieldID:        document.ID(s.Hash(), table, uid, nil, ""),
		document.FieldVariantID: document.VariantID(table, uid),
		document.FieldType:      table,
		document.FieldUID:       uid,
		document.FieldSiteHash:  s.Hash(),
	}
	require.NoError(t, e.search.Add(context.Background(), s.Host(), []document.Document{doc}))
}

func (e *env) indexedKeys(t *testing.T, s site.Site) []searchclient.RecordKey {
	t.Helper()
	keys, err := e.search.RecordKeys(context.Background(), s.Hash())
	require.NoError(t, err)
	return keys
}

func TestProcessRecordUpdate_QueuesUnderFirstConfiguration(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.data.ProcessRecordUpdate(context.Background(), 9, "tx_news", nil))
	require.NoError(t, e.data.ProcessRecordUpdate(context.Background(), 9, "tx_news", nil))

	items := e.items(t, "tx_news", 9)
	require.Len(t, items, 1, "two configurations of one table share a single item")
	assert.Equal(t, "news", items[0].IndexingConfiguration)
	assert.Equal(t, 1, items[0].Root)
	assert.Equal(t, int64(1001), items[0].Changed)
	assert.True(t, items[0].IsStale())
}

func TestProcessRecordUpdate_HiddenRecordIsRemoved(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.data.ProcessRecordUpdate(ctx, 9, "tx_news", nil))
	e.index(t, siteA, "tx_news", 9)

	require.NoError(t, e.repo.Upsert(ctx, "tx_news", content.Row{"uid": 9, "pid": 1, "hidden": 1}))
	require.NoError(t, e.data.ProcessRecordUpdate(ctx, 9, "tx_news", nil))

	assert.Empty(t, e.items(t, "tx_news", 9))
	assert.Empty(t, e.indexedKeys(t, siteA))
}

func TestProcessRecordUpdate_PageExtendingToSubpages(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.data.ProcessRecordUpdate(ctx, 2, "pages", nil))
	assert.Len(t, e.items(t, "pages", 2), 1)
	assert.Len(t, e.items(t, "pages", 3), 1)

	e.index(t, siteA, "pages", 3)
	require.NoError(t, e.repo.Upsert(ctx, "pages",
		content.Row{"uid": 2, "pid": 1, "doktype": 1, "hidden": 1, "extendToSubpages": 1}))
	require.NoError(t, e.data.ProcessRecordUpdate(ctx, 2, "pages", nil))

	assert.Empty(t, e.items(t, "pages", 2))
	assert.Empty(t, e.items(t, "pages", 3))
	assert.Empty(t, e.indexedKeys(t, siteA))
}

func TestProcessRecordUpdate_ContentElementTouchesPage(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.data.ProcessRecordUpdate(context.Background(), 30, event.ContentTable, nil))

	items := e.items(t, "pages", 3)
	require.Len(t, items, 1)
	assert.Equal(t, "pages", items[0].IndexingConfiguration)
	assert.Empty(t, e.items(t, "pages", 2))
}

func TestProcessRecordUpdate_PageOutsideSites(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.data.ProcessRecordUpdate(context.Background(), 20, "pages", nil))
	assert.Empty(t, e.items(t, "pages", 20))

	require.NoError(t, e.data.ProcessRecordUpdate(context.Background(), 404, "pages", nil))
}

func TestProcessContentElementDeletion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.repo.Upsert(ctx, event.ContentTable, content.Row{"uid": 30, "pid": 3, "deleted": 1}))

	require.NoError(t, e.data.ProcessContentElementDeletion(ctx, 30))
	assert.Len(t, e.items(t, "pages", 3), 1)
}

func TestProcessRecordMove(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.data.ProcessRecordUpdate(ctx, 9, "tx_news", nil))
	e.index(t, siteA, "tx_news", 9)

	require.NoError(t, e.repo.Upsert(ctx, "tx_news", content.Row{"uid": 9, "pid": 20}))
	require.NoError(t, e.data.ProcessRecordMove(ctx, 9, "tx_news"))

	assert.Empty(t, e.items(t, "tx_news", 9))
	assert.Empty(t, e.indexedKeys(t, siteA))
}

func TestCollectGarbage_PageTakesSubtree(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.data.ProcessRecordUpdate(ctx, 2, "pages", nil))
	e.index(t, siteA, "pages", 2)
	e.index(t, siteA, "pages", 3)
	e.index(t, siteA, "pages", 1)

	require.NoError(t, e.garbage.CollectGarbage(ctx, "pages", 2))

	assert.Empty(t, e.items(t, "pages", 2))
	assert.Empty(t, e.items(t, "pages", 3))
	assert.Equal(t, []searchclient.RecordKey{{Type: "pages", UID: 1}}, e.indexedKeys(t, siteA))
}

func TestCollectGarbage_Record(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.data.ProcessRecordUpdate(ctx, 9, "tx_news", nil))
	e.index(t, siteA, "tx_news", 9)

	require.NoError(t, e.garbage.CollectGarbage(ctx, "tx_news", 9))
	assert.Empty(t, e.items(t, "tx_news", 9))
	assert.Empty(t, e.indexedKeys(t, siteA))
}

func TestHandlePageMovement_ReindexesForNewSite(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.data.ProcessRecordUpdate(ctx, 3, "pages", nil))
	e.index(t, siteA, "pages", 3)

	require.NoError(t, e.repo.Upsert(ctx, "pages", content.Row{"uid": 3, "pid": 11, "doktype": 1}))
	require.NoError(t, e.garbage.HandlePageMovement(ctx, 3))

	items := e.items(t, "pages", 3)
	require.Len(t, items, 1)
	assert.Equal(t, 10, items[0].Root)
	assert.Empty(t, e.indexedKeys(t, siteA))
}

func TestPerformRecordGarbageCheck_GroupsRemoved(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.data.ProcessRecordUpdate(ctx, 9, "tx_news", nil))
	e.index(t, siteA, "tx_news", 9)

	require.NoError(t, e.garbage.PerformRecordGarbageCheck(ctx, 9, "tx_news",
		event.Fields{"fe_group": ""}, true))

	assert.Empty(t, e.indexedKeys(t, siteA))
	assert.Len(t, e.items(t, "tx_news", 9), 2)
}

func TestPerformRecordGarbageCheck_HiddenPageCleansSubtree(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.data.ProcessRecordUpdate(ctx, 2, "pages", nil))
	e.index(t, siteA, "pages", 2)
	e.index(t, siteA, "pages", 3)

	require.NoError(t, e.repo.Upsert(ctx, "pages",
		content.Row{"uid": 2, "pid": 1, "doktype": 1, "hidden": 1, "extendToSubpages": 1}))
	require.NoError(t, e.garbage.PerformRecordGarbageCheck(ctx, 2, "pages",
		event.Fields{"hidden": 1}, false))

	assert.Empty(t, e.items(t, "pages", 2))
	assert.Empty(t, e.items(t, "pages", 3))
	assert.Empty(t, e.indexedKeys(t, siteA))
}

func TestPerformRecordGarbageCheck_DeletedRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.index(t, siteA, "tx_news", 9)
	require.NoError(t, e.repo.Remove(ctx, "tx_news", 9))

	require.NoError(t, e.garbage.PerformRecordGarbageCheck(ctx, 9, "tx_news", nil, false))
	assert.Empty(t, e.indexedKeys(t, siteA))
}

type failingQueue struct{ IndexQueue }

func (failingQueue) UpdateItem(context.Context, site.Site, site.IndexingConfiguration, int, int64) error {
	return errors.New("disk full")
}

func TestHandlerErrorsPropagate(t *testing.T) {
	e := newEnv(t)
	h := NewDataUpdateHandler(Deps{
		Sites:   site.NewStaticRepository([]site.Site{siteA}, e.repo),
		Records: e.repo,
		Queue:   failingQueue{},
		Search:  e.search,
	})

	err := h.ProcessRecordUpdate(context.Background(), 9, "tx_news", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRequiredFields(t *testing.T) {
	fields := RequiredFields()
	assert.Contains(t, fields, "pid")
	assert.Contains(t, fields, "fe_group")
	assert.Contains(t, fields, "hidden")

	seen := map[string]bool{}
	for _, f := range fields {
		assert.False(t, seen[f], "duplicate %s", f)
		seen[f] = true
	}

	h := NewDataUpdateHandler(Deps{})
	assert.Contains(t, h.RequiredUpdatedFields(), "extendToSubpages")
	g := NewGarbageHandler(Deps{}, h)
	assert.Contains(t, g.RequiredUpdatedFields(), "starttime")
}
