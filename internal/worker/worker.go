// Package worker drains the index queue of a site: it indexes each stale
// item, records failures per item and occasionally sweeps stale documents.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/indexer"
	"github.com/Aman-CERP/searchsync/internal/lock"
	"github.com/Aman-CERP/searchsync/internal/queue"
	"github.com/Aman-CERP/searchsync/internal/site"
)

// Defaults.
const (
	DefaultLimit              = 50
	DefaultIndexTimeout       = 30 * time.Second
	DefaultGarbageProbability = 0.01
)

// ErrSiteLocked is returned when another run holds the site's lock.
var ErrSiteLocked = errors.New("site is locked by another worker")

// IndexQueue is the part of the index queue the worker uses.
type IndexQueue interface {
	GetItemsToIndex(ctx context.Context, s site.Site, limit int) ([]queue.Item, error)
	MarkItemAsFailed(ctx context.Context, item queue.Item, message string) error
	UpdateIndexedTime(ctx context.Context, item queue.Item) (bool, error)
	Statistics(ctx context.Context, root int) (queue.Statistics, error)
}

// GarbageSweeper removes documents and items that no longer have a source.
type GarbageSweeper interface {
	Sweep(ctx context.Context, s site.Site) (SweepResult, error)
}

// Cache is state derived from content that must not outlive a run.
type Cache interface {
	Invalidate()
}

// RunResult describes one worker run.
type RunResult struct {
	RunID     string        `json:"run_id"`
	Root      int           `json:"root"`
	Fetched   int           `json:"fetched"`
	Indexed   int           `json:"indexed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Swept     bool          `json:"swept"`
	Cancelled bool          `json:"cancelled"`
	Duration  time.Duration `json:"duration"`
}

// Option configures a Worker.
type Option func(*Worker)

// WithIndexTimeout bounds each item's indexing call. Zero disables the bound.
func WithIndexTimeout(d time.Duration) Option {
	return func(w *Worker) { w.timeout = d }
}

// WithGarbageProbability sets the chance of a sweep after a non-empty batch.
func WithGarbageProbability(p float64) Option {
	return func(w *Worker) { w.SetGarbageProbability(p) }
}

// WithRandom replaces the random source used for the sweep draw.
func WithRandom(fn func() float64) Option {
	return func(w *Worker) { w.random = fn }
}

// WithSweeper sets the garbage sweeper.
func WithSweeper(s GarbageSweeper) Option {
	return func(w *Worker) { w.sweeper = s }
}

// WithCache registers a cache purged at the start of every run. Content may
// change between runs in another process, so nothing cached by an earlier run
// is reused.
func WithCache(c Cache) Option {
	return func(w *Worker) { w.caches = append(w.caches, c) }
}

// WithLockDir enables per-site file locks in dir.
func WithLockDir(dir string) Option {
	return func(w *Worker) { w.lockDir = dir }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// Worker indexes queue items.
type Worker struct {
	queue       IndexQueue
	indexer     indexer.Indexer
	sweeper     GarbageSweeper
	caches      []Cache
	timeout     time.Duration
	probability atomic.Uint64 // float64 bits
	random      func() float64
	lockDir     string
	logger      *slog.Logger
}

// New creates a worker. ix is usually an *indexer.Registry.
func New(q IndexQueue, ix indexer.Indexer, opts ...Option) *Worker {
	w := &Worker{
		queue:       q,
		indexer:     ix,
		timeout: DefaultIndexTimeout,
		random:  rand.Float64,
		logger:  slog.Default(),
	}
	w.SetGarbageProbability(DefaultGarbageProbability)
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetGarbageProbability changes the sweep chance for subsequent runs.
func (w *Worker) SetGarbageProbability(p float64) {
	w.probability.Store(math.Float64bits(p))
}

// GarbageProbability returns the current sweep chance.
func (w *Worker) GarbageProbability() float64 {
	return math.Float64frombits(w.probability.Load())
}

// Run indexes up to limit stale items of a site, oldest change first. An item
// that fails is marked and the run continues. Cancellation is checked between
// items; an item in progress always finishes. Only failing to lock or to
// fetch the batch is returned as an error.
func (w *Worker) Run(ctx context.Context, s site.Site, limit int) (*RunResult, error) {
	start := time.Now()
	res := &RunResult{RunID: uuid.NewString(), Root: s.RootPageID}
	logger := w.logger.With(slog.String("run_id", res.RunID), slog.Int("root", s.RootPageID))

	if w.lockDir != "" {
		l := lock.ForSite(w.lockDir, s.RootPageID)
		ok, err := l.TryLock()
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Info("index_run_skipped_locked", slog.String("lock", l.Path()))
			return nil, fmt.Errorf("%w: root %d", ErrSiteLocked, s.RootPageID)
		}
		defer func() { _ = l.Unlock() }()
	}

	for _, c := range w.caches {
		c.Invalidate()
	}

	if limit <= 0 {
		limit = DefaultLimit
	}
	items, err := w.queue.GetItemsToIndex(ctx, s, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch batch for root %d: %w", s.RootPageID, err)
	}
	res.Fetched = len(items)

	for _, item := range items {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		w.process(ctx, logger, s, item, res)
	}

	if res.Fetched > 0 && !res.Cancelled && w.sweeper != nil && w.random() < w.GarbageProbability() {
		res.Swept = true
		sweep, err := w.sweep(ctx, s)
		if err != nil {
			logger.Warn("garbage_sweep_failed", slog.String("error", err.Error()))
		} else {
			logger.Info("garbage_sweep_done",
				slog.Int("documents", sweep.Documents),
				slog.Int("items", sweep.Items))
		}
	}

	res.Duration = time.Since(start)
	logger.Info("index_run_finished",
		slog.Int("fetched", res.Fetched),
		slog.Int("indexed", res.Indexed),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped),
		slog.Bool("cancelled", res.Cancelled),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// process indexes one item and records the outcome. Queue writes use a
// context detached from cancellation so the outcome is never lost.
func (w *Worker) process(ctx context.Context, logger *slog.Logger, s site.Site, item queue.Item, res *RunResult) {
	writeCtx := context.WithoutCancel(ctx)
	attrs := []any{
		slog.Int64("item_id", item.ID),
		slog.String("type", item.Type),
		slog.Int("uid", item.UID),
		slog.String("configuration", item.IndexingConfiguration),
	}

	ok, err := w.indexItem(ctx, s, item)
	if err == nil && !ok {
		err = serrors.New(serrors.ErrCodeIndexingFailed,
			fmt.Sprintf("%s:%d could not be indexed", item.Type, item.UID), nil)
	}
	if err != nil {
		res.Failed++
		logger.Warn("index_item_failed", append(attrs, slog.String("error", err.Error()))...)
		if markErr := w.queue.MarkItemAsFailed(writeCtx, item, err.Error()); markErr != nil {
			logger.Error("index_item_mark_failed", append(attrs, slog.String("error", markErr.Error()))...)
		}
		return
	}

	updated, err := w.queue.UpdateIndexedTime(writeCtx, item)
	switch {
	case err != nil:
		res.Failed++
		logger.Error("index_item_mark_indexed_failed", append(attrs, slog.String("error", err.Error()))...)
	case !updated:
		res.Skipped++
	default:
		res.Indexed++
		logger.Debug("index_item_done", attrs...)
	}
}

// indexItem runs the indexer under the item timeout. The call is detached
// from run cancellation and recovers panics.
func (w *Worker) indexItem(ctx context.Context, s site.Site, item queue.Item) (ok bool, err error) {
	itemCtx := context.WithoutCancel(ctx)
	if w.timeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(itemCtx, w.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = serrors.New(serrors.ErrCodeIndexingFailed, fmt.Sprintf("indexer panic: %v", r), nil)
		}
	}()

	ok, err = w.indexer.Index(itemCtx, indexer.Request{Item: item, Site: s, Host: s.Host()})
	if err != nil && errors.Is(itemCtx.Err(), context.DeadlineExceeded) {
		err = serrors.New(serrors.ErrCodeIndexTimeout,
			fmt.Sprintf("indexing exceeded %s", w.timeout), err)
	}
	return ok, err
}

// sweep runs the garbage sweeper detached from run cancellation and turns a
// panic into an error.
func (w *Worker) sweep(ctx context.Context, s site.Site) (res SweepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = serrors.New(serrors.ErrCodeIndexingFailed, fmt.Sprintf("garbage sweep panic: %v", r), nil)
		}
	}()
	return w.sweeper.Sweep(context.WithoutCancel(ctx), s)
}

// Progress returns the indexed share of a site's queue in percent, 0 when the
// queue is empty.
func (w *Worker) Progress(ctx context.Context, s site.Site) (float64, error) {
	st, err := w.queue.Statistics(ctx, s.RootPageID)
	if err != nil {
		return 0, err
	}
	return st.Progress(), nil
}
