// Package handler applies change events to the index queue and the search
// index.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/searchsync/internal/access"
	"github.com/Aman-CERP/searchsync/internal/content"
	"github.com/Aman-CERP/searchsync/internal/event"
	"github.com/Aman-CERP/searchsync/internal/searchclient"
	"github.com/Aman-CERP/searchsync/internal/site"
)

// IndexQueue is the part of the index queue the handlers write to.
type IndexQueue interface {
	UpdateItem(ctx context.Context, s site.Site, cfg site.IndexingConfiguration, uid int, changed int64) error
	DeleteItem(ctx context.Context, table string, uid int) error
	DeleteItemForSite(ctx context.Context, root int, table string, uid int) error
}

// Deps are the collaborators shared by both handlers.
type Deps struct {
	Sites   site.Repository
	Records content.Repository
	Queue   IndexQueue
	Search  searchclient.Client
	// Rootlines is invalidated when page access may have changed. Optional.
	Rootlines *access.Builder
	Now       func() time.Time
	Logger    *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// RequiredFields returns the fields that both handlers need to survive event
// serialization.
func RequiredFields() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range append(dataUpdateFields, garbageFields...) {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// siteOf resolves the site of a page. ok is false when the page belongs to no
// configured site.
func (d Deps) siteOf(ctx context.Context, pageID int) (site.Site, bool, error) {
	if pageID <= 0 {
		return site.Site{}, false, nil
	}
	s, err := d.Sites.ForPage(ctx, pageID)
	if errors.Is(err, site.ErrSiteNotFound) || errors.Is(err, content.ErrRecordNotFound) {
		d.Logger.Debug("handler_page_outside_sites", slog.Int("page", pageID))
		return site.Site{}, false, nil
	}
	if err != nil {
		return site.Site{}, false, err
	}
	return s, true, nil
}

// record loads a record including deleted ones. ok is false when it does not exist.
func (d Deps) record(ctx context.Context, table string, uid int) (content.Row, bool, error) {
	row, err := d.Records.GetRecordIncludingDeleted(ctx, table, uid)
	if errors.Is(err, content.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// removeFromSite deletes the documents and queue items of a record in one site.
func (d Deps) removeFromSite(ctx context.Context, s site.Site, table string, uid int) error {
	if _, err := d.Search.DeleteByRecord(ctx, s.Hash(), table, uid); err != nil {
		return fmt.Errorf("delete documents of %s:%d: %w", table, uid, err)
	}
	if err := d.Queue.DeleteItemForSite(ctx, s.RootPageID, table, uid); err != nil {
		return fmt.Errorf("delete queue item %s:%d: %w", table, uid, err)
	}
	d.Logger.Debug("handler_record_removed",
		slog.String("site", s.Domain),
		slog.String("table", table),
		slog.Int("uid", uid))
	return nil
}

// removeEverywhere deletes the documents and queue items of a record in all sites.
func (d Deps) removeEverywhere(ctx context.Context, table string, uid int) error {
	sites, err := d.Sites.All(ctx)
	if err != nil {
		return fmt.Errorf("list sites: %w", err)
	}
	for _, s := range sites {
		if _, err := d.Search.DeleteByRecord(ctx, s.Hash(), table, uid); err != nil {
			return fmt.Errorf("delete documents of %s:%d: %w", table, uid, err)
		}
	}
	if err := d.Queue.DeleteItem(ctx, table, uid); err != nil {
		return fmt.Errorf("delete queue items %s:%d: %w", table, uid, err)
	}
	return nil
}

// visible reports whether a page's enable fields let its subtree be shown.
// Doktype and no_search only affect the page itself.
func visible(row content.Row, now time.Time) bool {
	return content.Indexable(row, false, now, content.Policy{})
}

func (d Deps) invalidateRootlines() {
	if d.Rootlines != nil {
		d.Rootlines.Invalidate()
	}
}

// ownerPage returns the page a content element lives on.
func (d Deps) ownerPage(ctx context.Context, uid int, fields event.Fields) (int, error) {
	row, ok, err := d.record(ctx, event.ContentTable, uid)
	if err != nil {
		return 0, err
	}
	if ok {
		return row.PID(), nil
	}
	pid, _ := fields.Int(content.ColPID)
	return pid, nil
}
