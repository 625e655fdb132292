package access

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of page rootlines kept in memory.
const DefaultCacheSize = 4096

// Page is one entry of a page's ancestor chain.
type Page struct {
	UID              int
	Groups           []int
	ExtendToSubpages bool
}

// PageProvider resolves the ancestor chain of a page, ordered from the site
// root down to and including the page itself.
type PageProvider interface {
	AncestorChain(ctx context.Context, pageID int) ([]Page, error)
}

// Builder computes page rootlines from the page tree.
type Builder struct {
	pages  PageProvider
	cache  *lru.Cache[int, Rootline]
	logger *slog.Logger
}

// NewBuilder creates a builder. cacheSize <= 0 uses DefaultCacheSize.
func NewBuilder(pages PageProvider, cacheSize int, logger *slog.Logger) *Builder {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[int, Rootline](cacheSize)
	return &Builder{pages: pages, cache: cache, logger: logger}
}

// ForPage returns the access rootline of a page. Ancestors contribute an element
// only when they set groups and extend them to subpages; the page itself
// contributes when it sets groups.
func (b *Builder) ForPage(ctx context.Context, pageID int) Rootline {
	if r, ok := b.cache.Get(pageID); ok {
		return Rootline{elements: r.Elements()}
	}

	chain, err := b.pages.AncestorChain(ctx, pageID)
	if err != nil {
		b.logger.Warn("access_rootline_chain_failed",
			slog.Int("page_id", pageID),
			slog.String("error", err.Error()))
		return Rootline{}
	}

	var r Rootline
	for i, p := range chain {
		last := i == len(chain)-1
		if len(normalizeGroups(p.Groups)) == 0 {
			continue
		}
		if !last && !p.ExtendToSubpages {
			continue
		}
		// Page elements are never terminal, Push cannot fail here.
		_ = r.Push(NewPageElement(p.UID, p.Groups))
	}

	b.cache.Add(pageID, r)
	return r
}

// Invalidate drops all cached rootlines, e.g. after page permissions changed.
func (b *Builder) Invalidate() {
	b.cache.Purge()
}
