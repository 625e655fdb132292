package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/Aman-CERP/searchsync/internal/content"
	"github.com/Aman-CERP/searchsync/internal/site"
)

// ContentSource lists indexable records from the content repository.
type ContentSource struct {
	repo content.Repository
	now  func() time.Time
}

var _ RecordSource = (*ContentSource)(nil)

// NewContentSource creates a RecordSource over repo.
func NewContentSource(repo content.Repository, now func() time.Time) *ContentSource {
	if now == nil {
		now = time.Now
	}
	return &ContentSource{repo: repo, now: now}
}

// IndexableRecords returns the indexable records of cfg located in the page
// tree of s. Pages are matched by uid, other tables by pid.
func (c *ContentSource) IndexableRecords(ctx context.Context, s site.Site, cfg site.IndexingConfiguration) ([]Record, error) {
	subpages, err := c.repo.SubpageIDs(ctx, s.RootPageID)
	if err != nil {
		return nil, fmt.Errorf("list pages of site %d: %w", s.RootPageID, err)
	}
	pageIDs := append([]int{s.RootPageID}, subpages...)

	rows, err := c.repo.Records(ctx, cfg.Table, pageIDs)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", cfg.Table, err)
	}

	now := c.now()
	policy := content.Policy{Doktypes: cfg.Doktypes}
	isPage := cfg.Table == content.PageTable
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		if !content.Indexable(row, isPage, now, policy) {
			continue
		}
		out = append(out, Record{UID: row.UID(), Changed: row.Int64(content.ColTstamp)})
	}
	return out, nil
}
