package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/searchsync/internal/content"
	"github.com/Aman-CERP/searchsync/internal/event"
	"github.com/Aman-CERP/searchsync/internal/monitor"
)

var garbageFields = []string{
	content.ColPID,
	content.ColHidden,
	content.ColStartTime,
	content.ColEndTime,
	content.ColFeGroup,
	content.ColExtendToSubpages,
	content.ColNoSearch,
	content.ColDoktype,
}

// GarbageHandler removes documents that must no longer be found.
type GarbageHandler struct {
	Deps
	data *DataUpdateHandler
}

var _ monitor.GarbageCollector = (*GarbageHandler)(nil)

// NewGarbageHandler creates a garbage handler. Moved pages and content
// elements are re-evaluated through data.
func NewGarbageHandler(deps Deps, data *DataUpdateHandler) *GarbageHandler {
	deps = deps.withDefaults()
	if data == nil {
		data = NewDataUpdateHandler(deps)
	}
	return &GarbageHandler{Deps: deps, data: data}
}

// RequiredUpdatedFields lists the fields the handler reads from events.
func (h *GarbageHandler) RequiredUpdatedFields() []string {
	out := make([]string, len(garbageFields))
	copy(out, garbageFields)
	return out
}

// CollectGarbage removes a deleted record from every site. A deleted page
// takes its subtree along; a deleted content element reindexes its page.
func (h *GarbageHandler) CollectGarbage(ctx context.Context, table string, uid int) error {
	switch table {
	case event.ContentTable:
		return h.data.ProcessContentElementDeletion(ctx, uid)
	case content.PageTable:
		h.invalidateRootlines()
		return h.removePageTree(ctx, uid)
	default:
		return h.removeEverywhere(ctx, table, uid)
	}
}

// HandlePageMovement removes a moved page and its subpages everywhere and
// enqueues them again for their new site.
func (h *GarbageHandler) HandlePageMovement(ctx context.Context, uid int) error {
	h.invalidateRootlines()
	if err := h.removePageTree(ctx, uid); err != nil {
		return err
	}
	return h.data.reindexPageTree(ctx, uid)
}

// PerformRecordGarbageCheck removes a record whose visibility changed. When
// frontend groups were removed the existing documents carry outdated access
// and are dropped even if the record stays indexable; it is then enqueued
// again. Pages extending their settings to subpages apply the same to the
// subtree.
func (h *GarbageHandler) PerformRecordGarbageCheck(ctx context.Context, uid int, table string, fields event.Fields, frontendGroupsRemoved bool) error {
	if table == event.ContentTable {
		return h.data.ProcessRecordUpdate(ctx, uid, table, fields)
	}

	row, ok, err := h.record(ctx, table, uid)
	if err != nil {
		return err
	}
	if !ok || row.Bool(content.ColDeleted) {
		return h.CollectGarbage(ctx, table, uid)
	}

	isPage := table == content.PageTable
	pageID := row.PID()
	if isPage {
		pageID = uid
		h.invalidateRootlines()
	}
	s, ok, err := h.siteOf(ctx, pageID)
	if err != nil {
		return err
	}
	if !ok {
		return h.removeEverywhere(ctx, table, uid)
	}

	uids := []int{uid}
	if isPage && (row.Bool(content.ColExtendToSubpages) || fields.Has(content.ColExtendToSubpages)) {
		subpages, err := h.Records.SubpageIDs(ctx, uid)
		if err != nil {
			return fmt.Errorf("subpages of %d: %w", uid, err)
		}
		uids = append(uids, subpages...)
	}

	hidesSubtree := !visible(row, h.Now())
	for _, id := range uids {
		if frontendGroupsRemoved {
			if _, err := h.Search.DeleteByRecord(ctx, s.Hash(), table, id); err != nil {
				return fmt.Errorf("delete documents of %s:%d: %w", table, id, err)
			}
		}
		if id == uid {
			if _, err := h.data.touchOrRemove(ctx, s, table, id, row); err != nil {
				return err
			}
			continue
		}
		if hidesSubtree {
			if err := h.removeFromSite(ctx, s, table, id); err != nil {
				return err
			}
			continue
		}
		sub, found, err := h.record(ctx, table, id)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if _, err := h.data.touchOrRemove(ctx, s, table, id, sub); err != nil {
			return err
		}
	}

	h.Logger.Debug("garbage_check_done",
		slog.String("table", table),
		slog.Int("uid", uid),
		slog.Int("records", len(uids)),
		slog.Bool("groups_removed", frontendGroupsRemoved))
	return nil
}

func (h *GarbageHandler) removePageTree(ctx context.Context, uid int) error {
	subpages, err := h.Records.SubpageIDs(ctx, uid)
	if err != nil {
		return fmt.Errorf("subpages of %d: %w", uid, err)
	}
	for _, id := range append([]int{uid}, subpages...) {
		if err := h.removeEverywhere(ctx, content.PageTable, id); err != nil {
			return err
		}
	}
	return nil
}
