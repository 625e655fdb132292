package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/searchsync/internal/access"
	"github.com/Aman-CERP/searchsync/internal/content"
	"github.com/Aman-CERP/searchsync/internal/document"
	"github.com/Aman-CERP/searchsync/internal/searchclient"
)

// RecordIndexer indexes pages and plain records from the content repository.
type RecordIndexer struct {
	repo      content.Repository
	rootlines *access.Builder
	docs      *document.Builder
	client    searchclient.Client
	now       func() time.Time
	logger    *slog.Logger
}

// NewRecordIndexer creates a record indexer.
func NewRecordIndexer(repo content.Repository, rootlines *access.Builder, docs *document.Builder, client searchclient.Client, logger *slog.Logger) *RecordIndexer {
	if logger == nil {
		logger = slog.Default()
	}
	if docs == nil {
		docs = document.NewBuilder(nil)
	}
	return &RecordIndexer{
		repo:      repo,
		rootlines: rootlines,
		docs:      docs,
		client:    client,
		now:       time.Now,
		logger:    logger,
	}
}

// Index writes the document of one item. Existing variants of the record are
// replaced so that a change of access groups leaves no stale document behind.
// A record that is missing or not indexable yields false.
func (ix *RecordIndexer) Index(ctx context.Context, req Request) (bool, error) {
	item := req.Item
	row, err := ix.repo.GetRecord(ctx, item.Type, item.UID)
	if errors.Is(err, content.ErrRecordNotFound) {
		ix.logger.Debug("index_record_missing",
			slog.String("table", item.Type),
			slog.Int("uid", item.UID))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s:%d: %w", item.Type, item.UID, err)
	}

	isPage := item.Type == content.PageTable
	policy := content.Policy{}
	if cfg, ok := req.Site.Configuration(item.IndexingConfiguration); ok {
		policy.Doktypes = cfg.Doktypes
	}
	if !content.Indexable(row, isPage, ix.now(), policy) {
		return false, nil
	}

	var rootline access.Rootline
	if isPage {
		rootline = ix.rootlines.ForPage(ctx, item.UID)
	} else {
		rootline = access.ForRecord(row.Groups(content.ColFeGroup))
	}

	doc := ix.docs.Build(row, item, req.Site, rootline, req.Host)

	if _, err := ix.client.DeleteByRecord(ctx, req.Site.Hash(), item.Type, item.UID); err != nil {
		return false, fmt.Errorf("replace %s:%d: %w", item.Type, item.UID, err)
	}
	if err := ix.client.Add(ctx, req.Host, []document.Document{doc}); err != nil {
		return false, fmt.Errorf("add %s:%d: %w", item.Type, item.UID, err)
	}
	return true, nil
}
