package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/queue"
	"github.com/Aman-CERP/searchsync/internal/site"
	"github.com/Aman-CERP/searchsync/internal/ui"
)

func newQueueCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and populate the index queue",
		Example: `  # Queue every indexable record of every site
  searchsync queue init

  # Watch the progress of one site
  searchsync queue status --site www.example.com --watch`,
	}

	cmd.AddCommand(newQueueInitCmd(opts))
	cmd.AddCommand(newQueueStatusCmd(opts))
	cmd.AddCommand(newQueueErrorsCmd(opts))
	cmd.AddCommand(newQueueResetErrorsCmd(opts))

	return cmd
}

func newQueueInitCmd(opts *rootOptions) *cobra.Command {
	var siteSel, configName string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Fill the index queue from the content repository",
		Long: `Queue every indexable record for the selected sites. Existing items are
kept, so running init again only adds what is missing.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app) error {
				sites, err := a.selectSites(cmd.Context(), siteSel)
				if err != nil {
					return err
				}
				source := queue.NewContentSource(a.content, time.Now)
				out := cmd.OutOrStdout()
				for _, s := range sites {
					result, err := a.queue.Initialize(cmd.Context(), s, configName, source)
					if err != nil {
						return err
					}
					names := make([]string, 0, len(result))
					for name := range result {
						names = append(names, name)
					}
					sort.Strings(names)
					for _, name := range names {
						state := "ok"
						if !result[name] {
							state = "failed"
						}
						fmt.Fprintf(out, "%s %s: %s\n", s.Domain, name, state)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&siteSel, "site", "", "Root page id or domain (default all sites)")
	cmd.Flags().StringVar(&configName, "config-name", "", "Only this indexing configuration")

	return cmd
}

func newQueueStatusCmd(opts *rootOptions) *cobra.Command {
	var (
		siteSel    string
		jsonOutput bool
		watch      bool
		interval   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-site queue progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app) error {
				fetch := func(ctx context.Context) (ui.StatusReport, error) {
					return collectStatus(ctx, a, siteSel)
				}
				out := cmd.OutOrStdout()
				if watch {
					return ui.Watch(cmd.Context(), out, fetch, interval)
				}

				report, err := fetch(cmd.Context())
				if err != nil {
					return err
				}
				renderer := ui.NewStatusRenderer(out, !ui.UseColor(out))
				if jsonOutput {
					return renderer.RenderJSON(report)
				}
				return renderer.Render(report)
			})
		},
	}

	cmd.Flags().StringVar(&siteSel, "site", "", "Root page id or domain (default all sites)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Refresh the status until q is pressed")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Refresh interval for --watch")

	return cmd
}

// collectStatus gathers queue statistics for the selected sites.
func collectStatus(ctx context.Context, a *app, siteSel string) (ui.StatusReport, error) {
	report := ui.StatusReport{
		Monitoring:  a.monitoring.MonitoringType().String(),
		GeneratedAt: time.Now(),
	}

	sites, err := a.selectSites(ctx, siteSel)
	if err != nil {
		return report, err
	}
	for _, s := range sites {
		st, err := a.queue.Statistics(ctx, s.RootPageID)
		if err != nil {
			return report, err
		}
		report.Sites = append(report.Sites, siteStatus(s, st))
	}

	counts, err := a.events.Count(ctx)
	if err != nil {
		return report, err
	}
	report.Events = ui.EventStatus{Queued: counts.Total, Errored: counts.Errored}

	if report.Documents, err = a.search.Count(); err != nil {
		return report, err
	}
	return report, nil
}

func siteStatus(s site.Site, st queue.Statistics) ui.SiteStatus {
	return ui.SiteStatus{
		Domain:   s.Domain,
		Root:     s.RootPageID,
		Total:    st.Total,
		Pending:  st.Pending,
		Indexed:  st.Indexed,
		Failed:   st.Failed,
		Progress: st.Progress(),
	}
}

func newQueueErrorsCmd(opts *rootOptions) *cobra.Command {
	var (
		siteSel    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "errors",
		Short: "List items whose last indexing attempt failed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app) error {
				sites, err := a.selectSites(cmd.Context(), siteSel)
				if err != nil {
					return err
				}
				rows := []ui.ErrorRow{}
				for _, s := range sites {
					items, err := a.queue.GetErrorItems(cmd.Context(), s.RootPageID)
					if err != nil {
						return err
					}
					for _, it := range items {
						rows = append(rows, ui.ErrorRow{
							Root:          it.Root,
							Type:          it.Type,
							UID:           it.UID,
							Configuration: it.IndexingConfiguration,
							Count:         it.ErrorCount,
							Message:       it.Errors,
						})
					}
				}
				out := cmd.OutOrStdout()
				renderer := ui.NewStatusRenderer(out, !ui.UseColor(out))
				if jsonOutput {
					return renderer.RenderJSON(rows)
				}
				return renderer.RenderErrors(rows)
			})
		},
	}

	cmd.Flags().StringVar(&siteSel, "site", "", "Root page id or domain (default all sites)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newQueueResetErrorsCmd(opts *rootOptions) *cobra.Command {
	var siteSel string

	cmd := &cobra.Command{
		Use:   "reset-errors",
		Short: "Clear failures so the items are retried",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app) error {
				sites, err := a.selectSites(cmd.Context(), siteSel)
				if err != nil {
					return err
				}
				var total int64
				for _, s := range sites {
					n, err := a.queue.ResetErrors(cmd.Context(), s.RootPageID)
					if err != nil {
						return err
					}
					total += n
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "reset %d items\n", total)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&siteSel, "site", "", "Root page id or domain (default all sites)")

	return cmd
}
