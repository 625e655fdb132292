package site

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchsync/internal/config"
)

type staticTree map[int][]int

func (t staticTree) AncestorIDs(_ context.Context, pageID int) ([]int, error) {
	ids, ok := t[pageID]
	if !ok {
		return nil, errors.New("no such page")
	}
	return ids, nil
}

func testSites() []Site {
	return FromConfig([]config.SiteConfig{
		{RootPageID: 1, Domain: "a.example.com", Configurations: []config.IndexingConfigEntry{
			{Name: "pages", Table: "pages"},
			{Name: "news", Table: "tx_news"},
			{Name: "news_archive", Table: "tx_news"},
		}},
		{RootPageID: 20, Domain: "b.example.com"},
	})
}

func TestSite_Hash(t *testing.T) {
	sites := testSites()
	assert.Len(t, sites[0].Hash(), 16)
	assert.Equal(t, sites[0].Hash(), sites[0].Hash())
	assert.NotEqual(t, sites[0].Hash(), sites[1].Hash())
}

func TestSite_ConfigurationsForTable(t *testing.T) {
	s := testSites()[0]
	cfgs := s.ConfigurationsForTable("tx_news")
	require.Len(t, cfgs, 2)
	assert.Equal(t, "news", cfgs[0].Name)
	assert.Equal(t, "news_archive", cfgs[1].Name)
	assert.Empty(t, s.ConfigurationsForTable("tx_other"))
	assert.Equal(t, []string{"pages", "tx_news"}, s.Tables())

	c, ok := s.Configuration("pages")
	assert.True(t, ok)
	assert.Equal(t, "pages", c.Table)
}

func TestSite_BaseURL(t *testing.T) {
	assert.Equal(t, "https://a.example.com", testSites()[0].BaseURL())
	assert.Equal(t, "http://x", Site{Domain: "x", Scheme: "http"}.BaseURL())
}

func TestStaticRepository_ForPage(t *testing.T) {
	tree := staticTree{
		5:  {1, 3, 5},
		25: {1, 20, 25},
		99: {98, 99},
	}
	repo := NewStaticRepository(testSites(), tree)
	ctx := context.Background()

	s, err := repo.ForPage(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, s.RootPageID)

	// Nested site wins over the outer one.
	s, err = repo.ForPage(ctx, 25)
	require.NoError(t, err)
	assert.Equal(t, 20, s.RootPageID)

	_, err = repo.ForPage(ctx, 99)
	assert.ErrorIs(t, err, ErrSiteNotFound)

	_, err = repo.ForPage(ctx, 404)
	assert.Error(t, err)

	_, err = repo.ByRootPageID(ctx, 7)
	assert.ErrorIs(t, err, ErrSiteNotFound)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
