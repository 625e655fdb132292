// Package searchclient writes documents to the search index.
package searchclient

import (
	"context"

	"github.com/Aman-CERP/searchsync/internal/document"
)

// RecordKey identifies an indexed record by type and uid.
type RecordKey struct {
	Type string
	UID  int
}

// Client is the write side of the search service.
type Client interface {
	// Add writes documents for the given host. Existing documents with the
	// same id are replaced.
	Add(ctx context.Context, host string, docs []document.Document) error

	// DeleteByRecord removes every document variant of a record in a site.
	DeleteByRecord(ctx context.Context, siteHash, typ string, uid int) (int, error)

	// DeleteBySite removes all documents of a site.
	DeleteBySite(ctx context.Context, siteHash string) (int, error)

	// RecordKeys lists the records that have documents in a site.
	RecordKeys(ctx context.Context, siteHash string) ([]RecordKey, error)

	// Count returns the number of documents in the index.
	Count() (uint64, error)

	Close() error
}
