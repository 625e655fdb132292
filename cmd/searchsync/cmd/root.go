// Package cmd provides the CLI commands for searchsync.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/logging"
	"github.com/Aman-CERP/searchsync/pkg/version"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	debug      bool

	cfg            *config.Config
	logger         *slog.Logger
	loggingCleanup func()
}

// NewRootCmd creates the root command for the searchsync CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "searchsync",
		Short: "Keep a search index in sync with CMS content",
		Long: `searchsync tracks record changes of a content repository and keeps the
search index of every configured site up to date.

Changes are routed according to the monitoring type: handled immediately,
queued for a later 'events drain' or ignored. The index queue is worked
off per site with 'worker run' or continuously with 'daemon'.`,
		Version:           version.Version,
		SilenceUsage:      true,
		PersistentPreRunE: opts.setup,
		PersistentPostRun: func(*cobra.Command, []string) { opts.teardown() },
	}
	cmd.SetVersionTemplate("searchsync version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Configuration file (default ./searchsync.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to stderr")

	cmd.AddCommand(newQueueCmd(opts))
	cmd.AddCommand(newWorkerCmd(opts))
	cmd.AddCommand(newEventsCmd(opts))
	cmd.AddCommand(newEmitCmd(opts))
	cmd.AddCommand(newContentCmd(opts))
	cmd.AddCommand(newDaemonCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// setup loads the configuration and installs the logger.
func (o *rootOptions) setup(cmd *cobra.Command, _ []string) error {
	if skipsSetup(cmd) {
		return nil
	}

	var err error
	if o.configPath != "" {
		o.cfg, err = config.LoadFile(o.configPath)
	} else {
		o.cfg, err = config.Load(".")
	}
	if err != nil {
		return err
	}

	lc := logging.Config{
		Level:         o.cfg.Logging.Level,
		FilePath:      o.cfg.Logging.FilePath,
		MaxSizeMB:     o.cfg.Logging.MaxSizeMB,
		MaxFiles:      o.cfg.Logging.MaxFiles,
		WriteToStderr: o.cfg.Logging.Stderr,
	}
	if o.debug {
		lc.Level = "debug"
		lc.WriteToStderr = true
	}
	logger, cleanup, err := logging.Setup(lc)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.logger = logger
	o.loggingCleanup = cleanup
	slog.SetDefault(logger)

	logger.Debug("config_loaded",
		slog.String("path", o.cfg.Path()),
		slog.String("monitoring", o.cfg.Monitoring.Type),
		slog.Int("sites", len(o.cfg.Sites)))
	return nil
}

func (o *rootOptions) teardown() {
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
}

// skipsSetup reports whether cmd runs without a loaded configuration.
func skipsSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skip_setup"] == "true" {
			return true
		}
	}
	return false
}

var noSetup = map[string]string{"skip_setup": "true"}
