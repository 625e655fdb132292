// Package daemon runs the periodic drain and index loop.
//
// Each tick first drains the deferred event queue, so that changes recorded in
// delayed monitoring mode reach the index queue, then runs the index queue
// worker over every configured site.
package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/searchsync/internal/eventqueue"
	"github.com/Aman-CERP/searchsync/internal/site"
	"github.com/Aman-CERP/searchsync/internal/worker"
)

// DefaultInterval is used when Options.Interval is not positive.
const DefaultInterval = time.Minute

// Drainer processes queued change events.
type Drainer interface {
	Run(ctx context.Context, limit int) (*eventqueue.DrainResult, error)
}

// SiteRunner indexes the queue of several sites.
type SiteRunner interface {
	RunAll(ctx context.Context, sites []site.Site, limit, concurrency int) ([]worker.SiteRun, error)
}

// SiteLister returns the configured sites.
type SiteLister interface {
	All(ctx context.Context) ([]site.Site, error)
}

// Options configures a Scheduler.
type Options struct {
	Interval    time.Duration
	EventLimit  int
	Limit       int
	Concurrency int
	// PIDFile, when set, is claimed for the lifetime of Run.
	PIDFile *PIDFile
	Logger  *slog.Logger
}

// Limits are the batch sizes a tick uses. They can change while Run is going.
type Limits struct {
	EventLimit  int
	Limit       int
	Concurrency int
}

func (l Limits) withDefaults() Limits {
	if l.Limit <= 0 {
		l.Limit = worker.DefaultLimit
	}
	if l.EventLimit <= 0 {
		l.EventLimit = 100
	}
	if l.Concurrency <= 0 {
		l.Concurrency = 1
	}
	return l
}

// TickResult is the outcome of one scheduler tick.
type TickResult struct {
	Drain    *eventqueue.DrainResult
	Runs     []worker.SiteRun
	DrainErr error
	RunErr   error
}

// Scheduler drains events and runs the worker at a fixed interval.
type Scheduler struct {
	drainer Drainer
	runner  SiteRunner
	sites   SiteLister
	opts    Options
	logger  *slog.Logger

	mu     sync.Mutex
	limits Limits
	cancel context.CancelFunc
	ticks  int
}

// NewScheduler creates a scheduler. drainer may be nil when there is no
// event queue to drain.
func NewScheduler(drainer Drainer, runner SiteRunner, sites SiteLister, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	limits := Limits{EventLimit: opts.EventLimit, Limit: opts.Limit, Concurrency: opts.Concurrency}.withDefaults()
	opts.EventLimit, opts.Limit, opts.Concurrency = limits.EventLimit, limits.Limit, limits.Concurrency
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		drainer: drainer,
		runner:  runner,
		sites:   sites,
		opts:    opts,
		logger:  logger,
		limits:  limits,
	}
}

// SetLimits replaces the limits used from the next tick on. Non-positive
// values fall back to the defaults.
func (s *Scheduler) SetLimits(l Limits) {
	l = l.withDefaults()
	s.mu.Lock()
	s.limits = l
	s.mu.Unlock()
	s.logger.Info("scheduler_limits_updated",
		slog.Int("event_limit", l.EventLimit),
		slog.Int("limit", l.Limit),
		slog.Int("concurrency", l.Concurrency))
}

// Limits returns the limits the next tick uses.
func (s *Scheduler) Limits() Limits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits
}

// Run ticks immediately and then every interval until ctx is done or Stop is
// called. A tick that overruns the interval delays the next one.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.opts.PIDFile != nil {
		if err := s.opts.PIDFile.Claim(); err != nil {
			return err
		}
		defer func() {
			if err := s.opts.PIDFile.Remove(); err != nil {
				s.logger.Warn("pid_file_remove_failed", slog.String("error", err.Error()))
			}
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	limits := s.Limits()
	s.logger.Info("scheduler_started",
		slog.Duration("interval", s.opts.Interval),
		slog.Int("limit", limits.Limit),
		slog.Int("concurrency", limits.Concurrency))

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler_stopped", slog.Int("ticks", s.Ticks()))
			return nil
		case <-ticker.C:
		}
	}
}

// Stop ends a running Run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Ticks returns the number of completed ticks.
func (s *Scheduler) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Tick drains the event queue and runs every site once. Errors are logged and
// returned in the result; they never stop the scheduler.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	var res TickResult
	defer func() {
		s.mu.Lock()
		s.ticks++
		s.mu.Unlock()
	}()

	if ctx.Err() != nil {
		return res
	}
	limits := s.Limits()

	if s.drainer != nil {
		res.Drain, res.DrainErr = s.drainer.Run(ctx, limits.EventLimit)
		if res.DrainErr != nil {
			s.logger.Error("event_drain_failed", slog.String("error", res.DrainErr.Error()))
		}
	}

	if ctx.Err() != nil {
		return res
	}

	sites, err := s.sites.All(ctx)
	if err != nil {
		res.RunErr = err
		s.logger.Error("list_sites_failed", slog.String("error", err.Error()))
		return res
	}
	res.Runs, res.RunErr = s.runner.RunAll(ctx, sites, limits.Limit, limits.Concurrency)
	if res.RunErr != nil {
		s.logger.Error("index_runs_failed", slog.String("error", res.RunErr.Error()))
	}
	return res
}
