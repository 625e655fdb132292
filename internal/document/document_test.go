package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/searchsync/internal/access"
	"github.com/Aman-CERP/searchsync/internal/content"
	"github.com/Aman-CERP/searchsync/internal/queue"
	"github.com/Aman-CERP/searchsync/internal/site"
)

func TestID(t *testing.T) {
	assert.Equal(t, "abc/pages/1", ID("abc", "pages", 1, nil, ""))
	assert.Equal(t, "abc/pages/1/0,4", ID("abc", "pages", 1, []int{0, 4}, ""))
	assert.Equal(t, "abc/pages/1/4/12-3", ID("abc", "pages", 1, []int{4}, "12-3"))
	assert.Equal(t, "tx_news/9", VariantID("tx_news", 9))
}

func TestBuilder_Build(t *testing.T) {
	s := site.Site{
		RootPageID: 1,
		Domain:     "www.example.com",
		Configurations: []site.IndexingConfiguration{
			{Name: "news", Table: "tx_news", Fields: map[string]string{"title": "headline", "uid": "title", "empty": "missing"}},
		},
	}
	row := content.Row{content.ColUID: 9, content.ColPID: 3, content.ColTstamp: int64(500), "headline": "Hello"}
	item := queue.Item{Type: "tx_news", UID: 9, IndexingConfiguration: "news", Root: 1}
	b := NewBuilder(func() time.Time { return time.Unix(700, 0) })

	doc := b.Build(row, item, s, access.ForRecord([]int{2, 1}), "www.example.com")

	assert.Equal(t, ID(s.Hash(), "tx_news", 9, []int{1, 2}, ""), doc.ID())
	assert.Equal(t, "tx_news/9", doc.VariantID())
	assert.Equal(t, "r:1,2", doc[FieldAccess])
	assert.Equal(t, "Hello", doc["title"])
	assert.Equal(t, 9, doc[FieldUID])
	assert.NotContains(t, doc, "empty")
	assert.Equal(t, int64(500), doc[FieldChanged])
	assert.Equal(t, int64(700), doc[FieldIndexed])
	assert.Equal(t, "https://www.example.com/index.php?id=3&record=tx_news:9", doc[FieldURL])
}

func TestBuilder_PublicPageHasNoAccessField(t *testing.T) {
	s := site.Site{RootPageID: 1, Domain: "a.example.com", Scheme: "http"}
	row := content.Row{content.ColUID: 5, content.ColPID: 1}
	item := queue.Item{Type: "pages", UID: 5}

	doc := NewBuilder(nil).Build(row, item, s, access.Rootline{}, "")

	assert.NotContains(t, doc, FieldAccess)
	assert.Equal(t, "http://a.example.com/index.php?id=5", doc[FieldURL])
	assert.Equal(t, s.Hash()+"/pages/5", doc.ID())
}

func TestBuilder_MountedPageIDCarriesMountPoint(t *testing.T) {
	s := site.Site{RootPageID: 1, Domain: "a.example.com"}
	row := content.Row{content.ColUID: 3, content.ColPID: 1, content.ColMountPID: 12}
	item := queue.Item{Type: "pages", UID: 3}

	doc := NewBuilder(nil).Build(row, item, s, access.ForRecord([]int{4}), "")

	assert.Equal(t, s.Hash()+"/pages/3/4/12-3", doc.ID())
	assert.Equal(t, "pages/3", doc.VariantID())
}
