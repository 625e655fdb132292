// Package site describes the root sites whose pages and records are indexed,
// and the indexing configurations that map content tables to documents.
package site

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/Aman-CERP/searchsync/internal/config"
)

// ErrSiteNotFound is returned when no site covers a page or root id.
var ErrSiteNotFound = errors.New("site not found")

// IndexingConfiguration maps a content table to document building rules.
type IndexingConfiguration struct {
	Name    string
	Table   string
	Indexer string
	Fields  map[string]string
	// Doktypes limits page configurations to these page types. Empty allows the defaults.
	Doktypes []int
}

// Site is a root site. All queue items and documents are scoped to one site.
type Site struct {
	RootPageID     int
	Domain         string
	Scheme         string
	Configurations []IndexingConfiguration
}

// Hash identifies the site in document ids. It is the first 16 hex
// characters of the sha256 of domain and root page id.
func (s Site) Hash() string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", s.Domain, s.RootPageID)))
	return hex.EncodeToString(h[:])[:16]
}

// Host returns the host used while indexing items of this site.
func (s Site) Host() string { return s.Domain }

// BaseURL returns scheme and host.
func (s Site) BaseURL() string {
	scheme := s.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + s.Domain
}

// Configuration returns the configuration with the given name.
func (s Site) Configuration(name string) (IndexingConfiguration, bool) {
	for _, c := range s.Configurations {
		if c.Name == name {
			return c, true
		}
	}
	return IndexingConfiguration{}, false
}

// ConfigurationsForTable returns every configuration indexing table.
func (s Site) ConfigurationsForTable(table string) []IndexingConfiguration {
	var out []IndexingConfiguration
	for _, c := range s.Configurations {
		if c.Table == table {
			out = append(out, c)
		}
	}
	return out
}

// Tables returns the distinct tables indexed by the site, sorted.
func (s Site) Tables() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range s.Configurations {
		if !seen[c.Table] {
			seen[c.Table] = true
			out = append(out, c.Table)
		}
	}
	sort.Strings(out)
	return out
}

// PageTree resolves the ids of a page's ancestors, root first, including the page.
type PageTree interface {
	AncestorIDs(ctx context.Context, pageID int) ([]int, error)
}

// Repository finds sites.
type Repository interface {
	All(ctx context.Context) ([]Site, error)
	ByRootPageID(ctx context.Context, rootPageID int) (Site, error)
	ForPage(ctx context.Context, pageID int) (Site, error)
}

// StaticRepository serves a fixed list of sites.
type StaticRepository struct {
	sites []Site
	tree  PageTree
}

var _ Repository = (*StaticRepository)(nil)

// NewStaticRepository creates a repository over sites. tree resolves ForPage.
func NewStaticRepository(sites []Site, tree PageTree) *StaticRepository {
	return &StaticRepository{sites: sites, tree: tree}
}

// FromConfig builds sites from configuration entries.
func FromConfig(entries []config.SiteConfig) []Site {
	sites := make([]Site, 0, len(entries))
	for _, e := range entries {
		s := Site{RootPageID: e.RootPageID, Domain: e.Domain, Scheme: e.Scheme}
		for _, c := range e.Configurations {
			s.Configurations = append(s.Configurations, IndexingConfiguration{
				Name:     c.Name,
				Table:    c.Table,
				Indexer:  c.Indexer,
				Fields:   c.Fields,
				Doktypes: c.Doktypes,
			})
		}
		sites = append(sites, s)
	}
	return sites
}

// All returns every site.
func (r *StaticRepository) All(_ context.Context) ([]Site, error) {
	out := make([]Site, len(r.sites))
	copy(out, r.sites)
	return out, nil
}

// ByRootPageID returns the site with the given root page.
func (r *StaticRepository) ByRootPageID(_ context.Context, rootPageID int) (Site, error) {
	for _, s := range r.sites {
		if s.RootPageID == rootPageID {
			return s, nil
		}
	}
	return Site{}, fmt.Errorf("%w: root page %d", ErrSiteNotFound, rootPageID)
}

// ForPage returns the site whose root page is closest to pageID in its rootline.
func (r *StaticRepository) ForPage(ctx context.Context, pageID int) (Site, error) {
	if r.tree == nil {
		return r.ByRootPageID(ctx, pageID)
	}
	ids, err := r.tree.AncestorIDs(ctx, pageID)
	if err != nil {
		return Site{}, fmt.Errorf("resolve rootline of page %d: %w", pageID, err)
	}
	for i := len(ids) - 1; i >= 0; i-- {
		if s, err := r.ByRootPageID(ctx, ids[i]); err == nil {
			return s, nil
		}
	}
	return Site{}, fmt.Errorf("%w: page %d", ErrSiteNotFound, pageID)
}
