package searchclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/searchsync/internal/document"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
)

// pageSize bounds the hits fetched per search request.
const pageSize = 1000

var errClosed = serrors.New(serrors.ErrCodeIndexUnavailable, "search index is closed", nil)

// BleveClient stores documents in a bleve index.
type BleveClient struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
	logger *slog.Logger
}

// NewBleveClient opens or creates the index at path. An empty path keeps the
// index in memory.
func NewBleveClient(path string, logger *slog.Logger) (*BleveClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := buildMapping()

	var (
		index bleve.Index
		err   error
	)
	if path == "" {
		index, err = bleve.NewMemOnly(m)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create index dir: %w", mkErr)
		}
		index, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			index, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeIndexUnavailable, "open search index", err).
			WithDetail("path", path)
	}

	return &BleveClient{index: index, path: path, logger: logger}, nil
}

// buildMapping indexes the identity fields as keywords so they can be matched
// by term queries. Other fields use the default dynamic text mapping.
func buildMapping() mapping.IndexMapping {
	keyword := bleve.NewKeywordFieldMapping()
	numeric := bleve.NewNumericFieldMapping()

	dm := bleve.NewDocumentMapping()
	for _, f := range []string{
		document.FieldID, document.FieldVariantID, document.FieldType,
		document.FieldSiteHash, document.FieldAccess, document.FieldHost,
	} {
		dm.AddFieldMappingsAt(f, keyword)
	}
	for _, f := range []string{
		document.FieldUID, document.FieldPID, document.FieldRootPageID,
		document.FieldChanged, document.FieldIndexed,
	} {
		dm.AddFieldMappingsAt(f, numeric)
	}

	im := bleve.NewIndexMapping()
	im.DefaultMapping = dm
	return im
}

// Add writes documents in a single batch.
func (c *BleveClient) Add(ctx context.Context, host string, docs []document.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}

	batch := c.index.NewBatch()
	for _, doc := range docs {
		id := doc.ID()
		if id == "" {
			return serrors.ValidationError("document has no id", nil)
		}
		if _, ok := doc[document.FieldHost]; !ok && host != "" {
			doc[document.FieldHost] = host
		}
		if err := batch.Index(id, map[string]any(doc)); err != nil {
			return serrors.IndexError("batch document", err).
				WithDetail("id", id)
		}
	}
	if err := c.index.Batch(batch); err != nil {
		return serrors.IndexError("write documents", err)
	}
	c.logger.Debug("search_documents_added",
		slog.String("host", host),
		slog.Int("count", len(docs)))
	return nil
}

// DeleteByRecord removes all documents whose variant id matches the record.
func (c *BleveClient) DeleteByRecord(ctx context.Context, siteHash, typ string, uid int) (int, error) {
	q := bleve.NewConjunctionQuery(
		termQuery(document.FieldSiteHash, siteHash),
		termQuery(document.FieldVariantID, document.VariantID(typ, uid)),
	)
	return c.deleteMatching(ctx, q)
}

// DeleteBySite removes all documents of a site.
func (c *BleveClient) DeleteBySite(ctx context.Context, siteHash string) (int, error) {
	return c.deleteMatching(ctx, termQuery(document.FieldSiteHash, siteHash))
}

// RecordKeys lists the distinct records indexed for a site.
func (c *BleveClient) RecordKeys(ctx context.Context, siteHash string) ([]RecordKey, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, errClosed
	}

	seen := make(map[RecordKey]struct{})
	var keys []RecordKey
	err := c.eachHit(ctx, termQuery(document.FieldSiteHash, siteHash),
		[]string{document.FieldType, document.FieldUID},
		func(_ string, fields map[string]any) {
			typ, _ := fields[document.FieldType].(string)
			uid, _ := fields[document.FieldUID].(float64)
			key := RecordKey{Type: typ, UID: int(uid)}
			if key.Type == "" || key.UID <= 0 {
				return
			}
			if _, ok := seen[key]; ok {
				return
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Count returns the number of stored documents.
func (c *BleveClient) Count() (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, errClosed
	}
	return c.index.DocCount()
}

// Close closes the index. Calling Close twice is a no-op.
func (c *BleveClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.index.Close()
}

func (c *BleveClient) deleteMatching(ctx context.Context, q query.Query) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errClosed
	}

	var ids []string
	if err := c.eachHit(ctx, q, nil, func(id string, _ map[string]any) {
		ids = append(ids, id)
	}); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	batch := c.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := c.index.Batch(batch); err != nil {
		return 0, serrors.IndexError("delete documents", err)
	}
	return len(ids), nil
}

// eachHit pages through all hits of q. Callers hold the lock.
func (c *BleveClient) eachHit(ctx context.Context, q query.Query, fields []string, fn func(id string, fields map[string]any)) error {
	for from := 0; ; from += pageSize {
		req := bleve.NewSearchRequestOptions(q, pageSize, from, false)
		req.Fields = fields
		res, err := c.index.SearchInContext(ctx, req)
		if err != nil {
			return serrors.New(serrors.ErrCodeIndexUnavailable, "search documents", err)
		}
		for _, hit := range res.Hits {
			fn(hit.ID, hit.Fields)
		}
		if len(res.Hits) < pageSize {
			return nil
		}
	}
}

func termQuery(field, value string) *query.TermQuery {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	return q
}
