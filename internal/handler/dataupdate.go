package handler

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/searchsync/internal/content"
	"github.com/Aman-CERP/searchsync/internal/event"
	"github.com/Aman-CERP/searchsync/internal/monitor"
	"github.com/Aman-CERP/searchsync/internal/site"
)

var dataUpdateFields = []string{
	content.ColPID,
	content.ColDeleted,
	content.ColHidden,
	content.ColStartTime,
	content.ColEndTime,
	content.ColFeGroup,
	content.ColExtendToSubpages,
	content.ColDoktype,
	content.ColNoSearch,
	content.ColLanguage,
}

// DataUpdateHandler enqueues records for reindexing.
type DataUpdateHandler struct {
	Deps
}

var _ monitor.DataUpdater = (*DataUpdateHandler)(nil)

// NewDataUpdateHandler creates a data update handler.
func NewDataUpdateHandler(deps Deps) *DataUpdateHandler {
	return &DataUpdateHandler{Deps: deps.withDefaults()}
}

// RequiredUpdatedFields lists the fields the handler reads from events.
func (h *DataUpdateHandler) RequiredUpdatedFields() []string {
	out := make([]string, len(dataUpdateFields))
	copy(out, dataUpdateFields)
	return out
}

// ProcessRecordUpdate touches the record's queue item in its site. Content
// elements touch their page.
func (h *DataUpdateHandler) ProcessRecordUpdate(ctx context.Context, uid int, table string, fields event.Fields) error {
	switch table {
	case content.PageTable:
		return h.updatePage(ctx, uid, true)
	case event.ContentTable:
		pid, err := h.ownerPage(ctx, uid, fields)
		if err != nil {
			return err
		}
		return h.updatePage(ctx, pid, false)
	default:
		return h.updateRecord(ctx, table, uid)
	}
}

// ProcessRecordMove drops the record from its old location and enqueues it
// for its new site.
func (h *DataUpdateHandler) ProcessRecordMove(ctx context.Context, uid int, table string) error {
	if table == event.ContentTable {
		return h.ProcessRecordUpdate(ctx, uid, table, nil)
	}
	if err := h.removeEverywhere(ctx, table, uid); err != nil {
		return err
	}
	if table == content.PageTable {
		return h.reindexPageTree(ctx, uid)
	}
	return h.updateRecord(ctx, table, uid)
}

// ProcessVersionSwap treats a published workspace version as an update.
func (h *DataUpdateHandler) ProcessVersionSwap(ctx context.Context, uid int, table string) error {
	return h.ProcessRecordUpdate(ctx, uid, table, nil)
}

// ProcessContentElementDeletion touches the page that held the element.
func (h *DataUpdateHandler) ProcessContentElementDeletion(ctx context.Context, uid int) error {
	pid, err := h.ownerPage(ctx, uid, nil)
	if err != nil {
		return err
	}
	return h.updatePage(ctx, pid, false)
}

// updatePage touches a page. With cascade set, pages that extend their access
// settings to subpages touch or remove the whole subtree.
func (h *DataUpdateHandler) updatePage(ctx context.Context, uid int, cascade bool) error {
	if uid <= 0 {
		return nil
	}
	if cascade {
		h.invalidateRootlines()
	}
	row, ok, err := h.record(ctx, content.PageTable, uid)
	if err != nil || !ok {
		return err
	}
	s, ok, err := h.siteOf(ctx, uid)
	if err != nil || !ok {
		return err
	}

	if _, err := h.touchOrRemove(ctx, s, content.PageTable, uid, row); err != nil {
		return err
	}
	if !cascade || !row.Bool(content.ColExtendToSubpages) {
		return nil
	}

	subpages, err := h.Records.SubpageIDs(ctx, uid)
	if err != nil {
		return fmt.Errorf("subpages of %d: %w", uid, err)
	}
	hidesSubtree := !visible(row, h.Now())
	for _, sub := range subpages {
		if hidesSubtree {
			if err := h.removeFromSite(ctx, s, content.PageTable, sub); err != nil {
				return err
			}
			continue
		}
		subRow, ok, err := h.record(ctx, content.PageTable, sub)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, err := h.touchOrRemove(ctx, s, content.PageTable, sub, subRow); err != nil {
			return err
		}
	}
	return nil
}

// reindexPageTree re-evaluates a page and all its subpages for the site they
// now belong to.
func (h *DataUpdateHandler) reindexPageTree(ctx context.Context, uid int) error {
	h.invalidateRootlines()
	if err := h.updatePage(ctx, uid, false); err != nil {
		return err
	}
	subpages, err := h.Records.SubpageIDs(ctx, uid)
	if err != nil {
		return fmt.Errorf("subpages of %d: %w", uid, err)
	}
	for _, sub := range subpages {
		if err := h.updatePage(ctx, sub, false); err != nil {
			return err
		}
	}
	return nil
}

func (h *DataUpdateHandler) updateRecord(ctx context.Context, table string, uid int) error {
	row, ok, err := h.record(ctx, table, uid)
	if err != nil || !ok {
		return err
	}
	s, ok, err := h.siteOf(ctx, row.PID())
	if err != nil || !ok {
		return err
	}
	_, err = h.touchOrRemove(ctx, s, table, uid, row)
	return err
}

// touchOrRemove updates the record's queue item under the first matching
// configuration that accepts it, and removes the record from the site when no
// configuration does.
func (h *DataUpdateHandler) touchOrRemove(ctx context.Context, s site.Site, table string, uid int, row content.Row) (bool, error) {
	configs := s.ConfigurationsForTable(table)
	if len(configs) == 0 {
		return false, nil
	}

	now := h.Now()
	isPage := table == content.PageTable
	for _, cfg := range configs {
		if !content.Indexable(row, isPage, now, content.Policy{Doktypes: cfg.Doktypes}) {
			continue
		}
		if err := h.Queue.UpdateItem(ctx, s, cfg, uid, now.Unix()); err != nil {
			return false, fmt.Errorf("touch %s:%d for %s: %w", table, uid, cfg.Name, err)
		}
		return true, nil
	}
	return false, h.removeFromSite(ctx, s, table, uid)
}
