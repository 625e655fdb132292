package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/searchsync/internal/monitor"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 200 * time.Millisecond

// MonitoringSource publishes the current monitoring type to the router.
// It is safe for concurrent use.
type MonitoringSource struct {
	current atomic.Int32
}

// NewMonitoringSource creates a source holding t.
func NewMonitoringSource(t monitor.Type) *MonitoringSource {
	s := &MonitoringSource{}
	s.Set(t)
	return s
}

// MonitoringType implements monitor.TypeSource.
func (s *MonitoringSource) MonitoringType() monitor.Type {
	return monitor.Type(s.current.Load())
}

// Set replaces the current type.
func (s *MonitoringSource) Set(t monitor.Type) {
	s.current.Store(int32(t))
}

// Watch reloads the config file at path whenever it changes and calls
// onReload with the new configuration. Invalid files are logged and ignored.
// It blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onReload func(*Config), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors often replace the file instead of writing it.
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config_watch_error", slog.String("error", err.Error()))
		case <-fire:
			fire = nil
			cfg, err := LoadFile(abs)
			if err != nil {
				logger.Warn("config_reload_failed",
					slog.String("path", abs),
					slog.String("error", err.Error()))
				continue
			}
			logger.Info("config_reloaded",
				slog.String("path", abs),
				slog.String("monitoring_type", cfg.Monitoring.Type))
			onReload(cfg)
		}
	}
}
