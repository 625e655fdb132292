package content

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchsync/internal/access"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "content.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// seedTree creates 1 (root) > 2 (groups 4, extended) > 3 > 4 and a deleted 5 below 1.
func seedTree(t *testing.T, repo *SQLiteRepository) {
	t.Helper()
	ctx := context.Background()
	pages := []Row{
		{ColUID: 1, ColPID: 0, ColIsSiteRoot: 1, ColDoktype: 1, "title": "Home"},
		{ColUID: 2, ColPID: 1, ColFeGroup: "4", ColExtendToSubpages: 1, ColDoktype: 1},
		{ColUID: 3, ColPID: 2, ColDoktype: 1},
		{ColUID: 4, ColPID: 3, ColFeGroup: "7,6", ColDoktype: 1},
		{ColUID: 5, ColPID: 1, ColDeleted: 1, ColDoktype: 1},
	}
	for _, p := range pages {
		require.NoError(t, repo.Upsert(ctx, PageTable, p))
	}
}

func TestRow_Accessors(t *testing.T) {
	row := Row{
		"a": json.Number("12"),
		"b": "3",
		"c": true,
		"d": float64(2.5),
		"g": "1, 2,x,2",
	}
	assert.Equal(t, 12, row.Int("a"))
	assert.Equal(t, 3, row.Int("b"))
	assert.True(t, row.Bool("c"))
	assert.Equal(t, int64(2), row.Int64("d"))
	assert.Equal(t, "12", row.Text("a"))
	assert.Equal(t, []int{1, 2}, row.Groups("g"))
	assert.Nil(t, row.Groups("missing"))
	assert.False(t, row.Bool("missing"))
}

func TestIndexable(t *testing.T) {
	now := time.Unix(1000, 0)
	tests := []struct {
		name   string
		row    Row
		isPage bool
		policy Policy
		want   bool
	}{
		{name: "plain record", row: Row{ColUID: 1}, want: true},
		{name: "hidden", row: Row{ColHidden: 1}, want: false},
		{name: "deleted", row: Row{ColDeleted: 1}, want: false},
		{name: "not started", row: Row{ColStartTime: 2000}, want: false},
		{name: "started", row: Row{ColStartTime: 500}, want: true},
		{name: "expired", row: Row{ColEndTime: 1000}, want: false},
		{name: "page standard", row: Row{ColDoktype: 1}, isPage: true, want: true},
		{name: "page sysfolder", row: Row{ColDoktype: 254}, isPage: true, want: false},
		{name: "page no_search", row: Row{ColDoktype: 1, ColNoSearch: 1}, isPage: true, want: false},
		{name: "page allowed doktype", row: Row{ColDoktype: 4}, isPage: true, policy: Policy{Doktypes: []int{1, 4}}, want: true},
		{name: "nil", row: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Indexable(tt.row, tt.isPage, now, tt.policy))
		})
	}
}

func TestSQLiteRepository_GetRecord(t *testing.T) {
	repo := newTestRepository(t)
	seedTree(t, repo)
	ctx := context.Background()

	row, err := repo.GetRecord(ctx, PageTable, 1)
	require.NoError(t, err)
	assert.Equal(t, "Home", row.Text("title"))
	assert.True(t, row.Bool(ColIsSiteRoot))

	_, err = repo.GetRecord(ctx, PageTable, 5)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	row, err = repo.GetRecordIncludingDeleted(ctx, PageTable, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, row.PID())

	_, err = repo.GetRecord(ctx, PageTable, 99)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	require.NoError(t, repo.Remove(ctx, PageTable, 5))
	_, err = repo.GetRecordIncludingDeleted(ctx, PageTable, 5)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestSQLiteRepository_Upsert_RequiresUID(t *testing.T) {
	repo := newTestRepository(t)
	assert.Error(t, repo.Upsert(context.Background(), "tx_foo", Row{"title": "x"}))
}

func TestSQLiteRepository_AncestorChain(t *testing.T) {
	repo := newTestRepository(t)
	seedTree(t, repo)
	ctx := context.Background()

	chain, err := repo.AncestorChain(ctx, 4)
	require.NoError(t, err)
	require.Len(t, chain, 4)
	assert.Equal(t, 1, chain[0].UID)
	assert.Equal(t, access.Page{UID: 2, Groups: []int{4}, ExtendToSubpages: true}, chain[1])
	assert.Equal(t, []int{7, 6}, chain[3].Groups)

	ids, err := repo.AncestorIDs(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids)

	_, err = repo.AncestorChain(ctx, 42)
	assert.Error(t, err)

	// The chain feeds the access rootline builder.
	b := access.NewBuilder(repo, 0, nil)
	assert.Equal(t, "2:4/4:6,7", b.ForPage(ctx, 4).String())
}

func TestSQLiteRepository_SubpagesAndRecords(t *testing.T) {
	repo := newTestRepository(t)
	seedTree(t, repo)
	ctx := context.Background()

	ids, err := repo.SubpageIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, ids)

	require.NoError(t, repo.Upsert(ctx, "tx_news", Row{ColUID: 10, ColPID: 3, "title": "n1"}))
	require.NoError(t, repo.Upsert(ctx, "tx_news", Row{ColUID: 11, ColPID: 4, "title": "n2"}))
	require.NoError(t, repo.Upsert(ctx, "tx_news", Row{ColUID: 12, ColPID: 3, ColDeleted: 1}))

	rows, err := repo.Records(ctx, "tx_news", []int{3})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 10, rows[0].UID())

	pages, err := repo.Records(ctx, PageTable, []int{1, 2, 5})
	require.NoError(t, err)
	assert.Len(t, pages, 2)

	none, err := repo.Records(ctx, "tx_news", nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRootlineBuilder_PurgeSeesChangesFromOtherWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.db")
	daemonRepo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = daemonRepo.Close() })
	seedTree(t, daemonRepo)
	ctx := context.Background()

	daemonBuilder := access.NewBuilder(daemonRepo, 0, nil)
	assert.Equal(t, "2:4", daemonBuilder.ForPage(ctx, 3).String())

	// A separate process changes the permissions of page 2 and clears only
	// its own cache.
	cliRepo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cliRepo.Close() })
	require.NoError(t, cliRepo.Upsert(ctx, PageTable,
		Row{ColUID: 2, ColPID: 1, ColFeGroup: "7", ColExtendToSubpages: 1, ColDoktype: 1}))
	cliBuilder := access.NewBuilder(cliRepo, 0, nil)
	cliBuilder.Invalidate()
	assert.Equal(t, "2:7", cliBuilder.ForPage(ctx, 3).String())

	// The long running builder keeps its entry until purged, which the
	// worker does at the start of every run.
	assert.Equal(t, "2:4", daemonBuilder.ForPage(ctx, 3).String())
	daemonBuilder.Invalidate()
	assert.Equal(t, "2:7", daemonBuilder.ForPage(ctx, 3).String())
}
