package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/daemon"
	"github.com/Aman-CERP/searchsync/internal/worker"
)

func newDaemonCmd(opts *rootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Periodically drain events and index every site",
		Long: `Run the scheduler in the foreground. Every interval it drains the event
queue and then indexes one batch per site. Batch limits, concurrency and the
garbage sweep probability are reloaded when the configuration file changes. Stop with Ctrl+C or 'daemon stop'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app) error {
				return runDaemon(cmd.Context(), a, interval)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "Tick interval (default worker.interval)")

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop a running scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pf := daemon.NewPIDFile(daemon.DefaultPIDPath(opts.cfg.Storage.DataDir))
			if !pf.IsRunning() {
				return errors.New("no scheduler running")
			}
			if err := pf.Signal(syscall.SIGTERM); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "stop signal sent")
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether a scheduler is running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pf := daemon.NewPIDFile(daemon.DefaultPIDPath(opts.cfg.Storage.DataDir))
			pid, err := pf.Read()
			if err != nil || !pf.IsRunning() {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "not running")
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "running (pid %d)\n", pid)
			return err
		},
	})

	return cmd
}

func runDaemon(ctx context.Context, a *app, interval time.Duration) error {
	if interval <= 0 {
		interval = a.cfg.Interval()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := daemon.NewScheduler(a.drainer, a.worker, a.sites, daemon.Options{
		Interval:    interval,
		EventLimit:  a.cfg.EventQueue.Limit,
		Limit:       a.cfg.Worker.Limit,
		Concurrency: a.cfg.Worker.Concurrency,
		PIDFile:     daemon.NewPIDFile(daemon.DefaultPIDPath(a.cfg.Storage.DataDir)),
		Logger:      a.logger,
	})

	if path := a.cfg.Path(); path != "" {
		go func() {
			err := config.Watch(ctx, path, func(c *config.Config) {
				applyReload(s, a.worker, c, a.logger)
			}, a.logger)
			if err != nil {
				a.logger.Warn("config_watch_stopped", slog.String("error", err.Error()))
			}
		}()
	}

	return s.Run(ctx)
}

// applyReload pushes the settings read on every tick into a running
// scheduler and worker. Storage, sites and logging need a restart.
func applyReload(s *daemon.Scheduler, w *worker.Worker, c *config.Config, logger *slog.Logger) {
	s.SetLimits(daemon.Limits{
		EventLimit:  c.EventQueue.Limit,
		Limit:       c.Worker.Limit,
		Concurrency: c.Worker.Concurrency,
	})
	w.SetGarbageProbability(c.Worker.GarbageProbability)
	logger.Info("config_reloaded",
		slog.Int("limit", c.Worker.Limit),
		slog.Int("concurrency", c.Worker.Concurrency),
		slog.Int("event_limit", c.EventQueue.Limit),
		slog.Float64("garbage_probability", c.Worker.GarbageProbability))
}
