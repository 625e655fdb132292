// Package indexer turns queue items into search documents.
package indexer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/queue"
	"github.com/Aman-CERP/searchsync/internal/site"
)

// DefaultName is the registry name used when a configuration names no indexer.
const DefaultName = "record"

// Request is one unit of indexing work.
type Request struct {
	Item queue.Item
	Site site.Site
	// Host is the domain documents are written for.
	Host string
}

// Indexer indexes a single queue item. A false result without error means
// the item could not be indexed and should be marked as failed.
type Indexer interface {
	Index(ctx context.Context, req Request) (bool, error)
}

// Func adapts a function to the Indexer interface.
type Func func(ctx context.Context, req Request) (bool, error)

// Index calls f.
func (f Func) Index(ctx context.Context, req Request) (bool, error) { return f(ctx, req) }

// Registry maps indexer names to implementations.
type Registry struct {
	mu       sync.RWMutex
	indexers map[string]Indexer
	fallback Indexer
}

// NewRegistry creates a registry whose default indexer is registered under
// DefaultName.
func NewRegistry(fallback Indexer) *Registry {
	r := &Registry{indexers: make(map[string]Indexer), fallback: fallback}
	if fallback != nil {
		r.indexers[DefaultName] = fallback
	}
	return r
}

// Register adds or replaces an indexer.
func (r *Registry) Register(name string, ix Indexer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexers[name] = ix
}

// Get returns the indexer for name. An empty name selects the default.
func (r *Registry) Get(name string) (Indexer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		if r.fallback == nil {
			return nil, serrors.New(serrors.ErrCodeUnknownIndexer, "no default indexer registered", nil)
		}
		return r.fallback, nil
	}
	ix, ok := r.indexers[name]
	if !ok {
		return nil, serrors.New(serrors.ErrCodeUnknownIndexer, fmt.Sprintf("unknown indexer %q", name), nil)
	}
	return ix, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.indexers))
	for n := range r.indexers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every name resolves to an indexer.
func (r *Registry) Validate(names []string) error {
	var unknown []string
	for _, n := range names {
		if _, err := r.Get(n); err != nil {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		return serrors.New(serrors.ErrCodeUnknownIndexer,
			"unknown indexers: "+strings.Join(unknown, ", "), nil).
			WithDetail("registered", strings.Join(r.Names(), ","))
	}
	return nil
}

// Index resolves the item's indexer and runs it.
func (r *Registry) Index(ctx context.Context, req Request) (bool, error) {
	ix, err := r.Get(req.Item.Indexer)
	if err != nil {
		return false, err
	}
	return ix.Index(ctx, req)
}
