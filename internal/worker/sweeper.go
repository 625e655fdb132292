package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/searchsync/internal/content"
	"github.com/Aman-CERP/searchsync/internal/queue"
	"github.com/Aman-CERP/searchsync/internal/searchclient"
	"github.com/Aman-CERP/searchsync/internal/site"
)

// SweepResult counts what a sweep removed.
type SweepResult struct {
	Documents int `json:"documents"`
	Items     int `json:"items"`
}

// SweepQueue is the part of the index queue the sweeper uses.
type SweepQueue interface {
	SiteItems(ctx context.Context, root int) ([]queue.Item, error)
	DeleteItemForSite(ctx context.Context, root int, table string, uid int) error
}

// Sweeper removes queue items whose record is gone and documents that no
// queue item accounts for.
type Sweeper struct {
	queue   SweepQueue
	records content.Repository
	search  searchclient.Client
	logger  *slog.Logger
}

var _ GarbageSweeper = (*Sweeper)(nil)

// NewSweeper creates a sweeper.
func NewSweeper(q SweepQueue, records content.Repository, search searchclient.Client, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{queue: q, records: records, search: search, logger: logger}
}

// Sweep cleans one site.
func (s *Sweeper) Sweep(ctx context.Context, st site.Site) (SweepResult, error) {
	var res SweepResult
	hash := st.Hash()

	items, err := s.queue.SiteItems(ctx, st.RootPageID)
	if err != nil {
		return res, fmt.Errorf("list items: %w", err)
	}

	// live maps each queued record to whether it still exists.
	live := make(map[searchclient.RecordKey]bool, len(items))
	for _, it := range items {
		key := searchclient.RecordKey{Type: it.Type, UID: it.UID}
		if _, seen := live[key]; seen {
			continue
		}
		_, err := s.records.GetRecord(ctx, it.Type, it.UID)
		live[key] = err == nil
		if err == nil {
			continue
		}
		if !errors.Is(err, content.ErrRecordNotFound) {
			return res, err
		}
		if err := s.queue.DeleteItemForSite(ctx, st.RootPageID, it.Type, it.UID); err != nil {
			return res, err
		}
		res.Items++
	}

	keys, err := s.search.RecordKeys(ctx, hash)
	if err != nil {
		return res, err
	}
	for _, key := range keys {
		if live[key] {
			continue
		}
		n, err := s.search.DeleteByRecord(ctx, hash, key.Type, key.UID)
		if err != nil {
			return res, err
		}
		res.Documents += n
	}

	s.logger.Debug("garbage_sweep_site",
		slog.Int("root", st.RootPageID),
		slog.Int("documents", res.Documents),
		slog.Int("items", res.Items))
	return res, nil
}
