package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Aman-CERP/searchsync/internal/access"
	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/content"
	"github.com/Aman-CERP/searchsync/internal/document"
	"github.com/Aman-CERP/searchsync/internal/event"
	"github.com/Aman-CERP/searchsync/internal/eventqueue"
	"github.com/Aman-CERP/searchsync/internal/handler"
	"github.com/Aman-CERP/searchsync/internal/indexer"
	"github.com/Aman-CERP/searchsync/internal/monitor"
	"github.com/Aman-CERP/searchsync/internal/queue"
	"github.com/Aman-CERP/searchsync/internal/searchclient"
	"github.com/Aman-CERP/searchsync/internal/site"
	"github.com/Aman-CERP/searchsync/internal/worker"
)

// rootlineCacheSize bounds the number of cached page rootlines.
const rootlineCacheSize = 4096

// app holds the wired components of one CLI invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	content   *content.SQLiteRepository
	queue     *queue.Queue
	events    *eventqueue.Store
	search    *searchclient.BleveClient
	rootlines *access.Builder
	sites     *site.StaticRepository
	registry  *indexer.Registry

	monitoring *config.MonitoringSource
	processor  *monitor.Processor
	router     *monitor.Router
	dispatcher *event.Dispatcher
	drainer    *eventqueue.Worker
	worker     *worker.Worker

	closers []func() error
}

// openApp opens the stores and wires handlers, router and worker.
func openApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &app{cfg: cfg, logger: logger}
	opened := false
	defer func() {
		if !opened {
			_ = a.Close()
		}
	}()

	var err error
	if a.content, err = content.NewSQLiteRepository(cfg.ContentDBPath()); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.content.Close)

	if a.queue, err = queue.Open(cfg.QueueDBPath(), queue.WithLogger(logger)); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.queue.Close)

	codec := event.NewCodec(handler.RequiredFields())
	if a.events, err = eventqueue.Open(cfg.EventDBPath(), codec); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.events.Close)

	if a.search, err = searchclient.NewBleveClient(cfg.IndexPath(), logger); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.search.Close)

	a.rootlines = access.NewBuilder(a.content, rootlineCacheSize, logger)
	a.sites = site.NewStaticRepository(site.FromConfig(cfg.Sites), a.content)

	a.registry = indexer.NewRegistry(indexer.NewRecordIndexer(
		a.content, a.rootlines, document.NewBuilder(time.Now), a.search, logger))
	if err = a.registry.Validate(cfg.IndexerNames()); err != nil {
		return nil, err
	}

	deps := handler.Deps{
		Sites:     a.sites,
		Records:   a.content,
		Queue:     a.queue,
		Search:    a.search,
		Rootlines: a.rootlines,
		Logger:    logger,
	}
	data := handler.NewDataUpdateHandler(deps)
	a.processor = monitor.NewProcessor(data, handler.NewGarbageHandler(deps, data))

	a.monitoring = config.NewMonitoringSource(cfg.MonitoringType())
	a.router = monitor.NewRouter(a.monitoring, a.processor, a.events, nil, logger)
	a.dispatcher = event.NewDispatcher()
	a.router.Register(a.dispatcher)
	a.drainer = eventqueue.NewWorker(a.events, a.processor, logger)

	a.worker = worker.New(a.queue, a.registry,
		worker.WithIndexTimeout(cfg.IndexTimeout()),
		worker.WithGarbageProbability(cfg.Worker.GarbageProbability),
		worker.WithSweeper(worker.NewSweeper(a.queue, a.content, a.search, logger)),
		worker.WithCache(a.rootlines),
		worker.WithLockDir(cfg.LockDir()),
		worker.WithLogger(logger),
	)
	opened = true
	return a, nil
}

// Close closes the stores in reverse opening order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// selectSites returns every site, or the one matching selector by root page
// id or domain.
func (a *app) selectSites(ctx context.Context, selector string) ([]site.Site, error) {
	all, err := a.sites.All(ctx)
	if err != nil {
		return nil, err
	}
	if selector == "" {
		return all, nil
	}
	root, numErr := strconv.Atoi(selector)
	for _, s := range all {
		if s.Domain == selector || (numErr == nil && s.RootPageID == root) {
			return []site.Site{s}, nil
		}
	}
	return nil, fmt.Errorf("no site matches %q", selector)
}

// withApp loads the app for the duration of fn.
func (o *rootOptions) withApp(fn func(a *app) error) error {
	a, err := openApp(o.cfg, o.logger)
	if err != nil {
		return err
	}
	runErr := fn(a)
	if closeErr := a.Close(); closeErr != nil && runErr == nil {
		return closeErr
	}
	return runErr
}
